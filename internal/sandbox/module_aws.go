package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// CloudWatchAPI is the part of the CloudWatch client the aws module calls.
type CloudWatchAPI interface {
	DescribeAlarms(ctx context.Context, in *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
	DescribeAlarmHistory(ctx context.Context, in *cloudwatch.DescribeAlarmHistoryInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmHistoryOutput, error)
	GetMetricData(ctx context.Context, in *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// LogsAPI is the part of the CloudWatch Logs client the aws module calls.
type LogsAPI interface {
	FilterLogEvents(ctx context.Context, in *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// EC2API is the part of the EC2 client the aws module calls.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// AWSClients are the read-only service clients behind the aws module.
type AWSClients struct {
	CloudWatch CloudWatchAPI
	Logs       LogsAPI
	EC2        EC2API
}

// NewAWSClients builds service clients from cfg. A non-empty endpoint
// replaces every service endpoint, for local emulators.
func NewAWSClients(cfg aws.Config, endpoint string) *AWSClients {
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return &AWSClients{
		CloudWatch: cloudwatch.NewFromConfig(cfg, func(o *cloudwatch.Options) { o.BaseEndpoint = base }),
		Logs:       cloudwatchlogs.NewFromConfig(cfg, func(o *cloudwatchlogs.Options) { o.BaseEndpoint = base }),
		EC2:        ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.BaseEndpoint = base }),
	}
}

// LoadAWSClients resolves credentials through the default chain and binds
// the clients to region.
func LoadAWSClients(ctx context.Context, region, endpoint string) (*AWSClients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewAWSClients(cfg, endpoint), nil
}

type awsModule struct {
	clients *AWSClients
}

func newAWSModule(clients *AWSClients) *starlarkstruct.Module {
	m := &awsModule{clients: clients}
	return &starlarkstruct.Module{
		Name: "aws",
		Members: starlark.StringDict{
			"describe_alarms":        starlark.NewBuiltin("aws.describe_alarms", m.describeAlarms),
			"describe_alarm_history": starlark.NewBuiltin("aws.describe_alarm_history", m.describeAlarmHistory),
			"get_metric_data":        starlark.NewBuiltin("aws.get_metric_data", m.getMetricData),
			"filter_log_events":      starlark.NewBuiltin("aws.filter_log_events", m.filterLogEvents),
			"describe_instances":     starlark.NewBuiltin("aws.describe_instances", m.describeInstances),
		},
	}
}

func (m *awsModule) describeAlarms(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var names starlark.Value = starlark.None
	var prefix, state string
	maxRecords := 50
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"alarm_names?", &names, "alarm_name_prefix?", &prefix, "state_value?", &state, "max_records?", &maxRecords); err != nil {
		return nil, err
	}
	alarmNames, err := stringList(names)
	if err != nil {
		return nil, fmt.Errorf("%s: alarm_names: %v", b.Name(), err)
	}

	in := &cloudwatch.DescribeAlarmsInput{
		AlarmNames: alarmNames,
		MaxRecords: aws.Int32(clamp32(maxRecords, 1, 100)),
	}
	if prefix != "" {
		in.AlarmNamePrefix = aws.String(prefix)
	}
	if state != "" {
		in.StateValue = cwtypes.StateValue(strings.ToUpper(state))
	}

	out, err := m.clients.CloudWatch.DescribeAlarms(threadContext(thread), in)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}

	alarms := make([]any, 0, len(out.MetricAlarms))
	for _, a := range out.MetricAlarms {
		alarms = append(alarms, map[string]any{
			"name":               aws.ToString(a.AlarmName),
			"state":              string(a.StateValue),
			"state_reason":       aws.ToString(a.StateReason),
			"state_updated":      isoTime(a.StateUpdatedTimestamp),
			"namespace":          aws.ToString(a.Namespace),
			"metric_name":        aws.ToString(a.MetricName),
			"statistic":          string(a.Statistic),
			"threshold":          aws.ToFloat64(a.Threshold),
			"comparison":         string(a.ComparisonOperator),
			"period":             int64(aws.ToInt32(a.Period)),
			"evaluation_periods": int64(aws.ToInt32(a.EvaluationPeriods)),
			"dimensions":         cwDimensions(a.Dimensions),
			"actions_enabled":    aws.ToBool(a.ActionsEnabled),
		})
	}
	return toStarlark(alarms), nil
}

func (m *awsModule) describeAlarmHistory(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, itemType string
	maxRecords := 20
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"alarm_name", &name, "history_item_type?", &itemType, "max_records?", &maxRecords); err != nil {
		return nil, err
	}

	in := &cloudwatch.DescribeAlarmHistoryInput{
		AlarmName:  aws.String(name),
		MaxRecords: aws.Int32(clamp32(maxRecords, 1, 100)),
		ScanBy:     cwtypes.ScanByTimestampDescending,
	}
	if itemType != "" {
		in.HistoryItemType = cwtypes.HistoryItemType(itemType)
	}

	out, err := m.clients.CloudWatch.DescribeAlarmHistory(threadContext(thread), in)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}

	items := make([]any, 0, len(out.AlarmHistoryItems))
	for _, h := range out.AlarmHistoryItems {
		items = append(items, map[string]any{
			"timestamp": isoTime(h.Timestamp),
			"type":      string(h.HistoryItemType),
			"summary":   aws.ToString(h.HistorySummary),
		})
	}
	return toStarlark(items), nil
}

func (m *awsModule) getMetricData(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var namespace, metricName string
	var dimensions *starlark.Dict
	stat := "Average"
	period, minutes := 300, 120
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"namespace", &namespace, "metric_name", &metricName, "dimensions?", &dimensions,
		"stat?", &stat, "period?", &period, "minutes?", &minutes); err != nil {
		return nil, err
	}

	var dims []cwtypes.Dimension
	if dimensions != nil {
		for _, item := range dimensions.Items() {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(str(item[0])), Value: aws.String(str(item[1]))})
		}
	}

	end := time.Now().UTC()
	in := &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(end.Add(-time.Duration(max(minutes, 1)) * time.Minute)),
		EndTime:   aws.Time(end),
		ScanBy:    cwtypes.ScanByTimestampAscending,
		MetricDataQueries: []cwtypes.MetricDataQuery{{
			Id: aws.String("m1"),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String(namespace),
					MetricName: aws.String(metricName),
					Dimensions: dims,
				},
				Period: aws.Int32(clamp32(period, 1, 86400)),
				Stat:   aws.String(stat),
			},
		}},
	}

	out, err := m.clients.CloudWatch.GetMetricData(threadContext(thread), in)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}

	res := map[string]any{"label": metricName, "status": "", "points": []any{}}
	if len(out.MetricDataResults) > 0 {
		r := out.MetricDataResults[0]
		points := make([]any, 0, len(r.Values))
		for i, v := range r.Values {
			if i >= len(r.Timestamps) {
				break
			}
			points = append(points, map[string]any{"timestamp": isoTime(&r.Timestamps[i]), "value": v})
		}
		if r.Label != nil {
			res["label"] = *r.Label
		}
		res["status"] = string(r.StatusCode)
		res["points"] = points
	}
	return toStarlark(res), nil
}

func (m *awsModule) filterLogEvents(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var logGroup, pattern string
	minutes, limit := 30, 100
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"log_group", &logGroup, "filter_pattern?", &pattern, "minutes?", &minutes, "limit?", &limit); err != nil {
		return nil, err
	}

	end := time.Now()
	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		StartTime:    aws.Int64(end.Add(-time.Duration(max(minutes, 1)) * time.Minute).UnixMilli()),
		EndTime:      aws.Int64(end.UnixMilli()),
		Limit:        aws.Int32(clamp32(limit, 1, 10000)),
	}
	if pattern != "" {
		in.FilterPattern = aws.String(pattern)
	}

	out, err := m.clients.Logs.FilterLogEvents(threadContext(thread), in)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}

	events := make([]any, 0, len(out.Events))
	for _, e := range out.Events {
		var ts *time.Time
		if e.Timestamp != nil {
			t := time.UnixMilli(*e.Timestamp)
			ts = &t
		}
		events = append(events, map[string]any{
			"timestamp": isoTime(ts),
			"stream":    aws.ToString(e.LogStreamName),
			"message":   strings.TrimRight(aws.ToString(e.Message), "\n"),
		})
	}
	return toStarlark(events), nil
}

func (m *awsModule) describeInstances(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ids starlark.Value = starlark.None
	var filters *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "instance_ids?", &ids, "filters?", &filters); err != nil {
		return nil, err
	}
	instanceIDs, err := stringList(ids)
	if err != nil {
		return nil, fmt.Errorf("%s: instance_ids: %v", b.Name(), err)
	}

	in := &ec2.DescribeInstancesInput{InstanceIds: instanceIDs}
	if filters != nil {
		for _, item := range filters.Items() {
			values, err := stringList(item[1])
			if err != nil {
				return nil, fmt.Errorf("%s: filter %s: %v", b.Name(), str(item[0]), err)
			}
			in.Filters = append(in.Filters, ec2types.Filter{Name: aws.String(str(item[0])), Values: values})
		}
	}

	out, err := m.clients.EC2.DescribeInstances(threadContext(thread), in)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}

	instances := []any{}
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			state, zone := "", ""
			if inst.State != nil {
				state = string(inst.State.Name)
			}
			if inst.Placement != nil {
				zone = aws.ToString(inst.Placement.AvailabilityZone)
			}
			tags := make(map[string]string, len(inst.Tags))
			for _, t := range inst.Tags {
				tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
			instances = append(instances, map[string]any{
				"id":                aws.ToString(inst.InstanceId),
				"state":             state,
				"type":              string(inst.InstanceType),
				"availability_zone": zone,
				"launch_time":       isoTime(inst.LaunchTime),
				"private_ip":        aws.ToString(inst.PrivateIpAddress),
				"tags":              tags,
			})
		}
	}
	return toStarlark(instances), nil
}

// stringList accepts None, a string, or a list or tuple of strings.
func stringList(v starlark.Value) ([]string, error) {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.String:
		return []string{string(x)}, nil
	case starlark.Indexable:
		out := make([]string, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			s, ok := starlark.AsString(x.Index(i))
			if !ok {
				return nil, fmt.Errorf("want string elements, got %s", x.Index(i).Type())
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want list of strings, got %s", v.Type())
	}
}

func cwDimensions(dims []cwtypes.Dimension) map[string]string {
	out := make(map[string]string, len(dims))
	for _, d := range dims {
		out[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	return out
}

func isoTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func clamp32(n, lo, hi int) int32 {
	return int32(min(max(n, lo), hi))
}
