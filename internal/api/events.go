package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"vcamd/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of pipeline, device, and status changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"pipeline-state":  events.PipelineStateChangedEvent{},
		"pipeline-crash":  events.PipelineCrashedEvent{},
		"device-hotplug":  events.DeviceHotplugEvent{},
		"status-changed":  events.StatusChangedEvent{},
		"device-recovery": events.DeviceRecoveryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.PipelineStateChangedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.PipelineCrashedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.DeviceHotplugEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StatusChangedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.DeviceRecoveryEvent](s.options.EventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
