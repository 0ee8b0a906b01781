package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/report-service/internal/api/dto"
	"github.com/spec-kit/report-service/internal/events"
	"github.com/spec-kit/report-service/internal/observability"
	"github.com/spec-kit/report-service/internal/service"
	"github.com/spec-kit/report-service/internal/ws"
)

// BroadcastWorker translates domain events into room broadcasts. It is
// the only writer feeding the hub, so room updates stay ordered the
// way events were published.
type BroadcastWorker struct {
	hub     *ws.Hub
	svc     *service.TicketService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBroadcastWorker returns a new worker instance.
func NewBroadcastWorker(hub *ws.Hub, svc *service.TicketService, metrics *observability.Metrics, logger *zap.Logger) *BroadcastWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BroadcastWorker{hub: hub, svc: svc, metrics: metrics, logger: logger}
}

// Start registers the worker on the dispatcher.
func (w *BroadcastWorker) Start(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, w.handleCreated)
	dispatcher.Subscribe(events.EventTicketMessageAdded, w.handleMessageAdded)
	dispatcher.Subscribe(events.EventTicketStatusChanged, w.handleStatusChanged)
	dispatcher.Subscribe(events.EventTicketClosed, w.handleClosed)
}

func (w *BroadcastWorker) handleCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload)
	}

	w.buffer(RoomFeed, map[string]any{
		"type":     "reportOpened",
		"id":       event.TicketID,
		"reporter": payload.Reporter,
		"subject":  payload.Subject,
		"ts":       event.Timestamp.UnixMilli(),
	})
	w.bufferLine(event.Timestamp, fmt.Sprintf("%s opened report %s: %s",
		payload.Reporter.Name, event.TicketID, payload.Subject))
	w.refreshStats(ctx)
	return nil
}

func (w *BroadcastWorker) handleMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload)
	}

	// Messages bypass the flush cycle; viewers of the report see them
	// as they land.
	w.hub.SendDirect(ws.SubRoomPath(RoomReport, event.TicketID), "reportMessage",
		dto.NewMessageResponse(payload.Message))
	w.metrics.RecordBroadcast(RoomReport)

	w.buffer(RoomFeed, map[string]any{
		"type":   "reportMessage",
		"id":     event.TicketID,
		"author": payload.Message.Author(),
		"ts":     event.Timestamp.UnixMilli(),
	})
	return nil
}

func (w *BroadcastWorker) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload)
	}

	w.buffer(RoomFeed, map[string]any{
		"type":      "reportStatus",
		"id":        event.TicketID,
		"oldStatus": payload.OldStatus,
		"newStatus": payload.NewStatus,
		"ts":        event.Timestamp.UnixMilli(),
	})
	w.bufferLine(event.Timestamp, fmt.Sprintf("report %s moved from %s to %s",
		event.TicketID, payload.OldStatus, payload.NewStatus))
	w.refreshStats(ctx)
	return nil
}

func (w *BroadcastWorker) handleClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload)
	}

	w.bufferLine(event.Timestamp, fmt.Sprintf("%s closed report %s",
		payload.Actor.Name, event.TicketID))
	w.refreshStats(ctx)
	return nil
}

func (w *BroadcastWorker) refreshStats(ctx context.Context) {
	stats, err := w.svc.Stats(ctx)
	if err != nil {
		w.logger.Warn("stats refresh failed", zap.Error(err))
		return
	}
	if err := w.hub.Publish(RoomStats, stats); err != nil {
		w.logger.Warn("stats publish failed", zap.Error(err))
		return
	}
	w.metrics.RecordBroadcast(RoomStats)
}

func (w *BroadcastWorker) buffer(room string, value any) {
	if err := w.hub.Buffer(room, value); err != nil {
		w.logger.Warn("room buffer failed", zap.String("room", room), zap.Error(err))
		return
	}
	w.metrics.RecordBroadcast(room)
}

func (w *BroadcastWorker) bufferLine(ts time.Time, line string) {
	w.buffer(RoomAuditLog, fmt.Sprintf("\n[%s] %s", ts.UTC().Format("15:04:05"), line))
}
