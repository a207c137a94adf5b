// Package notify delivers investigation results to operators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Message is one notification.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

// Webhook posts messages as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a publisher for url.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, logger: logger}
}

// Publish sends msg. Any non-2xx response is an error.
func (w *Webhook) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification webhook returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	w.logger.Info("notification sent", zap.String("subject", msg.Subject))
	return nil
}

// Discard drops every message. It is used when no webhook is configured.
type Discard struct {
	Logger *zap.Logger
}

func (d Discard) Publish(_ context.Context, msg Message) error {
	if d.Logger != nil {
		d.Logger.Info("notification disabled, dropping message", zap.String("subject", msg.Subject))
	}
	return nil
}

// Details describes the alarm a notification is about.
type Details struct {
	AlarmName      string
	AlarmState     string
	Region         string
	AccountID      string
	ReportLocation string
}

// ConsoleURL links to the alarm in the CloudWatch console.
func ConsoleURL(region, alarmName string) string {
	return fmt.Sprintf("https://console.aws.amazon.com/cloudwatch/home?region=%s#alarmsV2:alarm/%s", region, alarmName)
}

// FormatNotification builds the message for a finished investigation.
func FormatNotification(d Details, analysis string) Message {
	var sb strings.Builder
	sb.WriteString("CloudWatch Alarm Investigation Results\n")
	sb.WriteString("======================================\n\n")
	fmt.Fprintf(&sb, "Alarm: %s\nState: %s\nRegion: %s\nAccount: %s\n\n", d.AlarmName, d.AlarmState, orUnknown(d.Region), orUnknown(d.AccountID))
	fmt.Fprintf(&sb, "Console Link: %s\n", ConsoleURL(orUnknown(d.Region), d.AlarmName))
	if d.ReportLocation != "" {
		fmt.Fprintf(&sb, "\nFull Report Location:\n%s\n", d.ReportLocation)
	}
	fmt.Fprintf(&sb, "\n%s\n\nInvestigation & Analysis:\n%s\n\n%s\n\n%s\n", separator, separator, analysis, separator)

	return Message{
		Subject: "CloudWatch Alarm Investigation: " + d.AlarmName,
		Body:    sb.String(),
	}
}

// FormatErrorNotification builds the message sent when the pipeline fails.
func FormatErrorNotification(d Details, err error) Message {
	body := fmt.Sprintf(`CloudWatch Alarm Investigation Error
====================================

Alarm: %s
State: %s

Error Details:
%v

Check the service logs for more information.
`, d.AlarmName, d.AlarmState, err)

	return Message{
		Subject: "Investigation Failed: " + d.AlarmName,
		Body:    body,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
