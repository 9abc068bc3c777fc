package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cabsync/cabsync/internal/config"
	"github.com/cabsync/cabsync/internal/events"
	"github.com/cabsync/cabsync/internal/gateway"
	"github.com/cabsync/cabsync/internal/lifecycle"
	"github.com/cabsync/cabsync/internal/logging"
	"github.com/cabsync/cabsync/internal/push"
	"github.com/cabsync/cabsync/internal/sync"
)

// Options configure the cabsync session.
type Options struct {
	ConfigPath string
	Role       string // overrides the config file role when set
	PollEvery  int    // seconds; overrides the rides cadence when > 0
}

// Run wires the sync layer from config and keeps it running until the
// context is cancelled, logging snapshot changes as they happen. This is the
// whole presentation layer of the CLI: it only consumes the coordinator's
// outputs.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Role != "" {
		cfg.Role = opts.Role
	}
	if opts.PollEvery > 0 {
		cfg.RidesPoll = time.Duration(opts.PollEvery) * time.Second
	}

	log := logging.NewLogger(cfg.LogLevel)

	role, err := lifecycle.ParseRole(cfg.Role)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}

	client, err := gateway.NewClient(cfg.GatewayURL, gateway.StaticToken(cfg.Token))
	if err != nil {
		return fmt.Errorf("init gateway client: %w", err)
	}

	bus := events.NewBus()
	store := sync.NewStore(log)
	coordinator := sync.NewCoordinator(client, role, store, bus, log)

	sources := []sync.Source{
		sync.NewScheduler(coordinator, sync.SchedulerConfig{
			RidesInterval:         cfg.RidesPoll,
			NotificationsInterval: cfg.NotificationsPoll,
		}, log),
	}
	if cfg.PushURL != "" {
		pushCfg := push.Config{
			URL:         cfg.PushURL,
			MaxAttempts: cfg.ReconnectAttempts,
			RetryDelay:  cfg.ReconnectDelay,
			Exponential: cfg.ExponentialBackoff,
		}
		if cfg.Token != "" {
			pushCfg.Header = map[string][]string{"Authorization": {"Bearer " + cfg.Token}}
		}
		manager := push.NewManager(pushCfg, bus, log)
		sources = append(sources, sync.NewPushSource(manager, coordinator))
	}

	cancelSubs := subscribeLogging(bus, store, log)
	defer func() {
		for _, cancel := range cancelSubs {
			cancel()
		}
	}()

	for _, source := range sources {
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("start source: %w", err)
		}
	}
	defer func() {
		for _, source := range sources {
			source.Stop()
		}
	}()

	log.Info("cabsync running", "role", role, "gateway", cfg.GatewayURL, "push", cfg.PushURL != "")
	<-ctx.Done()
	return nil
}

// subscribeLogging prints snapshot changes, the CLI's stand-in for a real
// presentation collaborator.
func subscribeLogging(bus *events.Bus, store *sync.Store, log *slog.Logger) []func() {
	return []func(){
		bus.Subscribe(sync.TopicRidesUpdated, func(payload any) {
			update, ok := payload.(sync.RidesUpdated)
			if !ok {
				return
			}
			for _, id := range update.RideIDs {
				if ride, found := store.Ride(id); found {
					log.Info("ride updated", "ride", id, "status", ride.Status, "fulfiller", ride.Fulfiller)
				}
			}
		}),
		bus.Subscribe(sync.TopicNotificationsAdded, func(payload any) {
			added, ok := payload.(sync.NotificationsAdded)
			if !ok {
				return
			}
			snap := store.Snapshot()
			log.Info("notifications", "new", len(added.NotificationIDs), "unread", snap.UnreadCount())
		}),
		bus.Subscribe(push.TopicGiveUp, func(payload any) {
			log.Warn("push channel unavailable, polling only")
		}),
	}
}
