// Package status sends a periodic status report to one conversation.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/prompt"
)

// Sender delivers the report. *agent.Humanizer implements it.
type Sender interface {
	Text(ctx context.Context, id bus.ConversationID, text string) error
}

// Counter reports how many sessions are known.
type Counter interface {
	Len() int
}

type Config struct {
	Target      bus.ConversationID
	Schedule    string // see ToCronExpr
	Sender      Sender
	Sessions    Counter
	DefaultMode string // label of the default model key
	Location    *time.Location
	// SendOnStart sends one report as soon as Run starts.
	SendOnStart bool
}

type Service struct {
	cfg       Config
	scheduler *robfigcron.Cron
	now       func() time.Time

	mu  sync.Mutex
	ctx context.Context
}

// NewService validates the schedule and registers the report job.
func NewService(cfg Config) (*Service, error) {
	if cfg.Sender == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("status: sender and session counter are required")
	}
	if cfg.Target.Channel == "" || cfg.Target.ChatID == "" {
		return nil, fmt.Errorf("status: target conversation is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	expr, err := ToCronExpr(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		scheduler: robfigcron.New(robfigcron.WithLocation(cfg.Location)),
		now:       time.Now,
		ctx:       context.Background(),
	}
	if _, err := s.scheduler.AddFunc(expr, s.tick); err != nil {
		return nil, fmt.Errorf("status: failed to register job: %w", err)
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.cfg.SendOnStart {
		s.tick()
	}
	s.scheduler.Start()
	slog.Info("status: report scheduled", "target", s.cfg.Target, "schedule", s.cfg.Schedule)

	<-ctx.Done()
	<-s.scheduler.Stop().Done()
	return nil
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err := s.Report(ctx); err != nil {
		slog.Error("status: report failed", "target", s.cfg.Target, "err", err)
	}
}

// Report sends one status report now.
func (s *Service) Report(ctx context.Context) error {
	return s.cfg.Sender.Text(ctx, s.cfg.Target, s.Message())
}

// Message renders the report text.
func (s *Service) Message() string {
	return fmt.Sprintf(reportFormat,
		s.now().In(s.cfg.Location).Format(prompt.TimeLayout),
		s.cfg.DefaultMode,
		s.cfg.Sessions.Len(),
	)
}

const reportFormat = `*🚨 AGENT MOLE STATUS REPORT 🚨*
Bot is active and connected.

*Report time:* %s
*Default mode:* %s
*Active sessions:* %d
*Connection:* ✅ Open

*Instructions:* Send a message to continue the investigation.`
