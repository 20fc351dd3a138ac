package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/types"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
)

// sender is the per-URL delivery surface, satisfied by shoutrrr's
// router and replaced in tests.
type sender interface {
	Send(message string, params *types.Params) []error
}

type service struct {
	url    string
	sender sender
}

// ShoutrrrSink delivers events to one or more notification services
// in parallel. Every configured URL gets its own sender so a broken
// service never blocks the others.
type ShoutrrrSink struct {
	cfg      config.NotificationConfig
	services []service
	logger   *slog.Logger
}

// NewShoutrrrSink parses the configured service URLs. URLs that fail
// to parse are a configuration error, caught at startup rather than at
// delivery time.
func NewShoutrrrSink(cfg config.NotificationConfig, logger *slog.Logger) (*ShoutrrrSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Title == "" {
		cfg.Title = "Notion Backup"
	}

	services := make([]service, 0, len(cfg.URLs))
	for _, raw := range cfg.URLs {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		s, err := shoutrrr.CreateSender(url)
		if err != nil {
			return nil, apperrors.ErrConfigInvalid("notifications.urls",
				fmt.Sprintf("cannot parse %s: %v", MaskURL(url), err))
		}
		services = append(services, service{url: url, sender: s})
	}

	logger.Debug("notification sink ready",
		"services", len(services), "urls", MaskURLs(cfg.URLs))
	return &ShoutrrrSink{cfg: cfg, services: services, logger: logger}, nil
}

// Send fans the event out to every configured service. An error is
// returned when any delivery fails, but deliveries to the remaining
// services still proceed.
func (s *ShoutrrrSink) Send(ctx context.Context, event Event) error {
	if !s.cfg.Enabled {
		return nil
	}
	if !wantOutcome(s.cfg.Level, event.Outcome) {
		s.logger.Debug("notification suppressed by level",
			"level", s.cfg.Level, "outcome", event.Outcome)
		return nil
	}
	if len(s.services) == 0 {
		return apperrors.ErrNotifyFailed(fmt.Errorf("no notification URLs configured"))
	}

	body := event.Message
	if body == "" {
		body = FormatBody(event)
	}
	if err := s.deliver(ctx, body); err != nil {
		return err
	}
	s.logger.Info("notification sent", "services", len(s.services), "outcome", event.Outcome)
	return nil
}

// TestConnection sends a short probe message through every service,
// regardless of the configured level.
func (s *ShoutrrrSink) TestConnection(ctx context.Context) error {
	if len(s.services) == 0 {
		return apperrors.ErrNotifyFailed(fmt.Errorf("no notification URLs configured"))
	}
	return s.deliver(ctx, "Test notification from notion-backup")
}

func (s *ShoutrrrSink) deliver(ctx context.Context, body string) error {
	params := &types.Params{"title": s.cfg.Title}

	g, _ := errgroup.WithContext(ctx)
	for _, svc := range s.services {
		g.Go(func() error {
			for _, err := range svc.sender.Send(body, params) {
				if err != nil {
					s.logger.Warn("notification delivery failed",
						"service", MaskURL(svc.url), "error", err)
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return apperrors.ErrNotifyFailed(err)
	}
	return nil
}

// NoopSink swallows every event. Used when notifications are disabled
// and in dry runs.
type NoopSink struct{}

func (NoopSink) Send(context.Context, Event) error    { return nil }
func (NoopSink) TestConnection(context.Context) error { return nil }

// NewSink builds the configured notification sink.
func NewSink(cfg config.NotificationConfig, logger *slog.Logger) (Sink, error) {
	if !cfg.Enabled || len(cfg.URLs) == 0 {
		return NoopSink{}, nil
	}
	return NewShoutrrrSink(cfg, logger)
}
