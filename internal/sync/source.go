package sync

import (
	"context"

	"github.com/cabsync/cabsync/internal/push"
)

// Source is a transport that feeds server data into the coordinator. The
// polling scheduler and the push channel both implement it; a deployment may
// run either or both, since the coordinator's merge rules are idempotent
// across the two.
type Source interface {
	Start(ctx context.Context) error
	Stop()
}

// Compile-time checks that both transports satisfy Source.
var (
	_ Source = (*Scheduler)(nil)
	_ Source = (*PushSource)(nil)
)

// PushSource adapts a push.Manager into a Source and routes its frames into
// the coordinator.
type PushSource struct {
	manager     *push.Manager
	coordinator *Coordinator
	cancels     []func()
}

// NewPushSource pairs a manager with the coordinator it feeds.
func NewPushSource(manager *push.Manager, coordinator *Coordinator) *PushSource {
	return &PushSource{manager: manager, coordinator: coordinator}
}

// Start subscribes the coordinator to the push topics and opens the channel.
func (s *PushSource) Start(ctx context.Context) error {
	s.cancels = s.coordinator.subscribePush(ctx)
	return s.manager.Connect(ctx)
}

// Stop closes the channel and drops the subscriptions. In-flight frame
// handling completes; only future delivery stops.
func (s *PushSource) Stop() {
	s.manager.Disconnect()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}
