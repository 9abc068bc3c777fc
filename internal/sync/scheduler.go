package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"
)

// Poller is the slice of the Coordinator the scheduler drives.
type Poller interface {
	PollRides(ctx context.Context) error
	PollNotifications(ctx context.Context) error
}

// SchedulerConfig tunes the polling cadence. Zero values use the defaults.
type SchedulerConfig struct {
	RidesInterval         time.Duration
	NotificationsInterval time.Duration
}

const (
	defaultRidesInterval         = 3 * time.Second
	defaultNotificationsInterval = 5 * time.Second
)

// Scheduler drives the two poll cycles at independent cadences. Each tick
// launches its cycle asynchronously; the coordinator's per-stream in-flight
// gate turns a tick that lands mid-cycle into a skip rather than a queue, so
// a slow server never piles up requests.
type Scheduler struct {
	poller Poller
	cfg    SchedulerConfig
	log    *slog.Logger

	mu      stdsync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(poller Poller, cfg SchedulerConfig, log *slog.Logger) *Scheduler {
	if cfg.RidesInterval <= 0 {
		cfg.RidesInterval = defaultRidesInterval
	}
	if cfg.NotificationsInterval <= 0 {
		cfg.NotificationsInterval = defaultNotificationsInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		poller: poller,
		cfg:    cfg,
		log:    log.With("component", "scheduler"),
	}
}

// Start launches both cycles, each with an immediate first tick. It returns
// an error if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.cfg.RidesInterval, s.poller.PollRides)
	go s.loop(ctx, s.stopCh, s.cfg.NotificationsInterval, s.poller.PollNotifications)
	return nil
}

// Stop prevents further ticks. An in-flight cycle is not aborted; its
// response still applies to the snapshot when it resolves.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// loop ticks one stream until the scheduler stops or ctx is cancelled. Cycle
// errors are already recorded and published by the coordinator; the loop
// never stops ticking on a transient failure.
func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, interval time.Duration, cycle func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go func() { _ = cycle(ctx) }()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			go func() { _ = cycle(ctx) }()
		}
	}
}
