package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/notify"
	"github.com/Cyclone1070/triage/internal/orchestrator"
	"github.com/Cyclone1070/triage/internal/report"
)

// Investigator runs one investigation.
type Investigator interface {
	Investigate(ctx context.Context, prompt string) orchestrator.InvestigationResult
}

// DedupStore decides whether an alarm was investigated recently.
type DedupStore interface {
	Claim(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error)
}

// ReportStore persists investigation artifacts.
type ReportStore interface {
	Save(ctx context.Context, result orchestrator.InvestigationResult, meta report.Metadata) (*report.Locations, error)
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// Status values of an Outcome.
const (
	StatusInvestigated = "investigated"
	StatusSkipped      = "skipped"
	StatusDuplicate    = "duplicate"
	StatusFailed       = "failed"
)

// Outcome summarises what Handle did with one event.
type Outcome struct {
	InvestigationID string            `json:"investigation_id,omitempty"`
	Alarm           string            `json:"alarm"`
	State           string            `json:"state"`
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
	SinceSeconds    float64           `json:"since_seconds,omitempty"`
	Iterations      int               `json:"iterations,omitempty"`
	AnalysisLength  int               `json:"analysis_length,omitempty"`
	ReportLocation  *report.Locations `json:"report_location,omitempty"`

	Result *orchestrator.InvestigationResult `json:"-"`
}

// Options configures a Service.
type Options struct {
	Window   time.Duration
	Region   string
	Model    string
	Modules  []string
	ToolName string
}

// Service is the alarm pipeline. Dedup and Reports may be nil to disable them.
type Service struct {
	Investigator Investigator
	Dedup        DedupStore
	Reports      ReportStore
	Publisher    Publisher

	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service. A nil publisher drops notifications.
func NewService(inv Investigator, dedup DedupStore, reports ReportStore, pub Publisher, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = notify.Discard{Logger: logger}
	}
	return &Service{
		Investigator: inv,
		Dedup:        dedup,
		Reports:      reports,
		Publisher:    pub,
		opts:         opts,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// Handle processes one alarm event. Skips and duplicates are not errors.
// The returned error is non-nil only when the event cannot be parsed or the
// notification cannot be delivered; report storage failures are logged and
// otherwise ignored.
func (s *Service) Handle(ctx context.Context, event map[string]any) (Outcome, error) {
	alarm, err := ParseAlarm(event, s.opts.Region)
	if err != nil {
		return Outcome{Status: StatusFailed, Message: err.Error()}, err
	}

	out := Outcome{Alarm: alarm.Name, State: alarm.State}
	logger := s.logger.With(zap.String("alarm", alarm.Name), zap.String("state", alarm.State))

	if alarm.State != StateAlarm {
		logger.Info("skipping non-ALARM state")
		s.metrics.IncSkipped("state")
		out.Status = StatusSkipped
		out.Message = "Skipped non-alarm state: " + alarm.State
		return out, nil
	}

	now := s.now()
	if s.Dedup != nil {
		claimed, since, err := s.Dedup.Claim(ctx, alarm.Name, now, s.opts.Window)
		switch {
		case err != nil:
			logger.Warn("dedup check failed, investigating anyway", zap.Error(err))
		case !claimed:
			logger.Info("skipping duplicate investigation", zap.Duration("since", since))
			s.metrics.IncSkipped("duplicate")
			out.Status = StatusDuplicate
			out.SinceSeconds = since.Seconds()
			out.Message = fmt.Sprintf("Already investigated %.0f seconds ago", since.Seconds())
			return out, nil
		}
	}

	out.InvestigationID = uuid.NewString()
	logger = logger.With(zap.String("investigation_id", out.InvestigationID))
	logger.Info("starting investigation")

	prompt := BuildPrompt(alarm, now, s.opts.Modules, s.opts.ToolName)
	result := s.Investigator.Investigate(ctx, prompt)
	out.Result = &result
	out.Iterations = result.IterationCount
	out.AnalysisLength = len(result.Report)

	details := notify.Details{
		AlarmName:  alarm.Name,
		AlarmState: alarm.State,
		Region:     alarm.Region,
		AccountID:  alarm.AccountID,
	}

	if s.Reports != nil {
		loc, err := s.Reports.Save(ctx, result, report.Metadata{
			InvestigationID: out.InvestigationID,
			AlarmName:       alarm.Name,
			AlarmState:      alarm.State,
			Region:          alarm.Region,
			AccountID:       alarm.AccountID,
			Model:           s.opts.Model,
			Event:           alarm.Raw,
		})
		if err != nil {
			logger.Error("failed to save report", zap.Error(err))
			s.metrics.IncReportFailure()
		} else {
			out.ReportLocation = loc
			details.ReportLocation = loc.JSON
		}
	}

	if err := s.Publisher.Publish(ctx, notify.FormatNotification(details, result.Report)); err != nil {
		logger.Error("failed to send notification", zap.Error(err))
		s.metrics.IncNotificationFailure()
		s.notifyFailure(ctx, logger, details, err)
		out.Status = StatusFailed
		out.Message = err.Error()
		return out, fmt.Errorf("notify: %w", err)
	}

	logger.Info("investigation delivered", zap.Int("iterations", result.IterationCount))
	out.Status = StatusInvestigated
	return out, nil
}

// notifyFailure makes one best-effort attempt to report cause.
func (s *Service) notifyFailure(ctx context.Context, logger *zap.Logger, details notify.Details, cause error) {
	if errors.Is(cause, context.Canceled) {
		return
	}
	if err := s.Publisher.Publish(ctx, notify.FormatErrorNotification(details, cause)); err != nil {
		logger.Error("failed to send error notification", zap.Error(err))
	}
}
