// Package triage turns alarm events into investigations: it parses the
// event, suppresses duplicates, runs the orchestrator, stores the report
// and notifies operators.
package triage

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"
)

const (
	// StateAlarm is the only state that is investigated.
	StateAlarm = "ALARM"

	ManualAlarmName  = "Manual Test Alarm"
	UnknownAlarmName = "Unknown Alarm"

	cloudWatchSource = "aws.cloudwatch"
)

// Alarm is the normalised view of an incoming event.
type Alarm struct {
	Name      string
	State     string
	Region    string
	AccountID string
	// Raw is the event exactly as received.
	Raw map[string]any
}

type alarmState struct {
	Value string `mapstructure:"value"`
}

type alarmData struct {
	AlarmName string      `mapstructure:"alarmName"`
	State     *alarmState `mapstructure:"state"`
}

// alarmPayload covers both the alarm-action shape ({alarmData: {...}}) and
// the direct shape ({alarmName, state}).
type alarmPayload struct {
	AlarmName string      `mapstructure:"alarmName"`
	State     *alarmState `mapstructure:"state"`
	AlarmData *alarmData  `mapstructure:"alarmData"`
}

type envelope struct {
	Source    string         `mapstructure:"source"`
	Region    string         `mapstructure:"region"`
	Account   string         `mapstructure:"account"`
	AccountID string         `mapstructure:"accountId"`
	Detail    map[string]any `mapstructure:"detail"`
}

// ParseAlarm extracts the alarm name and state from an event. EventBridge
// events carry the alarm under "detail"; alarm actions carry it under
// "alarmData"; direct invocations carry alarmName and state at the top.
// Anything else is treated as a manual test alarm in ALARM state.
func ParseAlarm(event map[string]any, defaultRegion string) (Alarm, error) {
	var env envelope
	if err := decode(event, &env); err != nil {
		return Alarm{}, fmt.Errorf("decode event envelope: %w", err)
	}

	data := event
	if env.Source == cloudWatchSource && env.Detail != nil {
		data = env.Detail
	}

	var payload alarmPayload
	if err := decode(data, &payload); err != nil {
		return Alarm{}, fmt.Errorf("decode alarm payload: %w", err)
	}

	alarm := Alarm{
		Region:    env.Region,
		AccountID: env.AccountID,
		Raw:       event,
	}
	if alarm.Region == "" {
		alarm.Region = defaultRegion
	}
	if alarm.AccountID == "" {
		alarm.AccountID = env.Account
	}

	switch {
	case payload.AlarmData != nil:
		alarm.Name = payload.AlarmData.AlarmName
		if payload.AlarmData.State != nil {
			alarm.State = payload.AlarmData.State.Value
		}
	case payload.State != nil:
		alarm.Name = payload.AlarmName
		alarm.State = payload.State.Value
	default:
		alarm.Name = ManualAlarmName
		alarm.State = StateAlarm
	}
	if alarm.Name == "" {
		alarm.Name = UnknownAlarmName
	}
	return alarm, nil
}

// ReadEvent decodes one JSON object from r.
func ReadEvent(r io.Reader) (map[string]any, error) {
	var event map[string]any
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return nil, fmt.Errorf("decode event JSON: %w", err)
	}
	if event == nil {
		event = map[string]any{}
	}
	return event, nil
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
