package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BuildPrompt renders the investigation prompt for alarm. modules lists the
// names pre-bound in the sandbox and toolName is the directive marker name.
func BuildPrompt(alarm Alarm, now time.Time, modules []string, toolName string) string {
	eventJSON, err := json.MarshalIndent(alarm.Raw, "", "  ")
	if err != nil {
		eventJSON = []byte(fmt.Sprintf("%v", alarm.Raw))
	}

	var sb strings.Builder
	sb.WriteString("You are an expert site reliability engineer investigating a monitoring alarm that has triggered and requires investigation.\n\n")

	sb.WriteString("## ALARM CONTEXT\n")
	fmt.Fprintf(&sb, "- **Alarm**: %s (state %s)\n", alarm.Name, alarm.State)
	fmt.Fprintf(&sb, "- **Region**: %s (also available to your code as REGION)\n", alarm.Region)
	fmt.Fprintf(&sb, "- **Current Time**: %s\n", now.UTC().Format(time.RFC3339))
	sb.WriteString("- **Event Details**:\n```json\n")
	sb.Write(eventJSON)
	sb.WriteString("\n```\n\n")

	sb.WriteString(requirements)
	sb.WriteString(outputFormat)
	sb.WriteString(reminders)

	sb.WriteString("## TOOL ACCESS NOTES\n\n")
	fmt.Fprintf(&sb, "You can run code with the %s tool. To call it, reply with the marker line first and a fenced code block right after it, and nothing else:\n\n", toolName)
	fmt.Fprintf(&sb, "TOOL: %s\n```python\n%s```\n\n", toolName, exampleSnippet(modules))
	sb.WriteString("The code runs in a Starlark interpreter (a Python dialect). Import statements are not needed and are removed. ")
	fmt.Fprintf(&sb, "These modules are pre-bound: %s. ", strings.Join(modules, ", "))
	sb.WriteString("Use print() for progress output and assign a value to `result` to return structured findings. ")
	sb.WriteString("Each call starts from a clean namespace; variables do not persist between calls. ")
	sb.WriteString("Execution time and output size are limited, so keep each snippet focused.\n\n")
	for _, m := range modules {
		if note, ok := moduleNotes[m]; ok {
			fmt.Fprintf(&sb, "- `%s`: %s\n", m, note)
		}
	}
	sb.WriteString("\n")
	sb.WriteString("When you have gathered enough evidence, reply with the final report only, with no tool marker.\n")

	return sb.String()
}

var moduleNotes = map[string]string{
	"aws":        "read-only CloudWatch and EC2 calls: describe_alarms(alarm_names=, alarm_name_prefix=, state_value=), describe_alarm_history(alarm_name), get_metric_data(namespace, metric_name, dimensions={}, stat=\"Average\", period=300, minutes=120), filter_log_events(log_group, filter_pattern=, minutes=30, limit=100), describe_instances(instance_ids=, filters={}). Results are lists and dicts with ISO-8601 timestamps.",
	"http":       "http.get(url, headers={}, params={}, timeout=) returns a response with status_code, ok, text, headers and json(); only the configured hosts are reachable.",
	"prometheus": "prometheus.query(expr, time=) and prometheus.query_range(expr, start, end, step) run PromQL against the configured server.",
}

// exampleSnippet picks a call that works with the modules actually bound.
func exampleSnippet(modules []string) string {
	for _, m := range modules {
		if m == "aws" {
			return "alarms = aws.describe_alarms(state_value=\"ALARM\")\nprint(len(alarms), \"alarms firing in\", REGION)\nresult = [a[\"name\"] for a in alarms]\n"
		}
	}
	return "print(\"investigating in\", REGION)\nresult = {\"region\": REGION}\n"
}

const requirements = `## INVESTIGATION REQUIREMENTS

Perform a thorough investigation:

1. **Initial Assessment**
   - Identify the alarming resource and metric
   - Understand the threshold and breach conditions
   - Determine severity and urgency

2. **Data Gathering**
   - Query metrics for trend analysis (last 2-6 hours)
   - Check the current state of the affected resource
   - Look for related alarms or cascading failures

3. **Root Cause Analysis**
   - Identify the specific condition that triggered the alarm
   - Determine the underlying root cause from actual data
   - Assess whether the issue is isolated or part of a larger incident

4. **Impact Assessment**
   - Identify affected services and users
   - Determine the severity level

5. **Historical Context**
   - Check whether this alarm triggered recently
   - Look for patterns and recent changes

6. **Remediation Steps**
   - Identify immediate actions to resolve the issue
   - Suggest preventive measures and monitoring improvements

`

const outputFormat = `## OUTPUT FORMAT

Structure your final response exactly as follows:

### EXECUTIVE SUMMARY
[2-3 sentences: what happened, impact, and required action]

### INVESTIGATION DETAILS
#### Commands Executed:
[The key queries you ran]
#### Key Findings:
[Bullet points of important discoveries]

### ROOT CAUSE ANALYSIS
[Why this alarm triggered, based on your investigation]

### IMPACT ASSESSMENT
- **Affected Resources**:
- **Business Impact**:
- **Severity Level**: [Critical/High/Medium/Low]
- **Users Affected**:

### IMMEDIATE ACTIONS
1. [Specific, actionable remediation steps]

### PREVENTION MEASURES
- [Long-term fixes]

### MONITORING RECOMMENDATIONS
- [Threshold adjustments and additional metrics]

### ADDITIONAL NOTES
[Caveats and follow-up items]

`

const reminders = `## IMPORTANT REMINDERS

- Base all findings on data you actually retrieved. Do not make assumptions.
- Be specific with resource names, error messages and metric values.
- Time-box queries (last 30 minutes for logs, 2 hours for metrics).
- If a query fails, read the error and try an alternative.
- This is a production incident requiring immediate attention.

`
