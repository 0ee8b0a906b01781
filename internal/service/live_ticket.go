package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/events"
	"github.com/spec-kit/report-service/internal/repository"
	apperrors "github.com/spec-kit/report-service/pkg/util"
)

// ClosingMessageBody is appended to a ticket's thread when it is closed.
const ClosingMessageBody = "Ticket has been closed"

// LiveTicket is the in-memory representation of one active ticket. It
// owns its persistence calls and announces mutations through the
// injected notifier. A per-ticket mutex makes each mutation atomic;
// distinct tickets mutate in parallel.
type LiveTicket struct {
	mu       sync.Mutex
	data     domain.Ticket
	repo     repository.TicketRepository
	notifier events.Dispatcher
}

func newLiveTicket(data domain.Ticket, repo repository.TicketRepository, notifier events.Dispatcher) *LiveTicket {
	return &LiveTicket{data: data, repo: repo, notifier: notifier}
}

// ID returns the ticket's identifier.
func (t *LiveTicket) ID() string {
	return t.data.ID
}

// Snapshot returns a copy of the current ticket state. The message
// slice is copied so callers never alias live state.
func (t *LiveTicket) Snapshot() domain.Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *LiveTicket) snapshotLocked() domain.Ticket {
	copied := t.data
	copied.Messages = append([]domain.Message(nil), t.data.Messages...)
	return copied
}

// AppendMessage appends to the thread. Ordering is validate, persist,
// mutate memory, broadcast: a persistence failure leaves both the
// in-memory state and the subscribers untouched. When promote is set
// and the ticket is still open, the status advances to in-progress.
func (t *LiveTicket) AppendMessage(ctx context.Context, body string, author domain.Member, promote bool) (domain.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(ctx, body, author, promote)
}

func (t *LiveTicket) appendLocked(ctx context.Context, body string, author domain.Member, promote bool) (domain.Message, error) {
	if t.data.Status.Terminal() {
		return domain.Message{}, apperrors.NewTicketClosed(t.data.ID)
	}

	ts := time.Now().UnixMilli()
	// Keep the per-ticket sequence non-decreasing even if the wall
	// clock steps backwards.
	if ts < t.data.LastActionAt {
		ts = t.data.LastActionAt
	}
	msg := domain.Message{
		Body:          body,
		AuthorLicense: author.License,
		AuthorName:    author.Name,
		Timestamp:     ts,
	}

	promoted := promote && t.data.Status == domain.TicketStatusOpen

	if err := t.repo.InsertMessage(ctx, t.data.ID, msg); err != nil {
		return domain.Message{}, apperrors.NewStorageError(err)
	}
	if err := t.repo.UpdateLastAction(ctx, t.data.ID, ts); err != nil {
		return domain.Message{}, apperrors.NewStorageError(err)
	}
	if promoted {
		if err := t.repo.UpdateStatus(ctx, t.data.ID, domain.TicketStatusInProgress); err != nil {
			return domain.Message{}, apperrors.NewStorageError(err)
		}
	}

	t.data.Messages = append(t.data.Messages, msg)
	t.data.LastActionAt = ts

	t.publish(ctx, events.EventTicketMessageAdded, events.TicketMessageAddedPayload{Message: msg})
	if promoted {
		oldStatus := t.data.Status
		t.data.Status = domain.TicketStatusInProgress
		t.publish(ctx, events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: t.data.Status,
		})
	}
	return msg, nil
}

// Close appends the closing message and marks the ticket resolved.
// Resolved is terminal: a closed ticket accepts no further mutations.
func (t *LiveTicket) Close(ctx context.Context, actor domain.Member) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.data.Status.Terminal() {
		return apperrors.NewTicketClosed(t.data.ID)
	}
	if _, err := t.appendLocked(ctx, ClosingMessageBody, actor, false); err != nil {
		return err
	}
	if err := t.repo.UpdateStatus(ctx, t.data.ID, domain.TicketStatusResolved); err != nil {
		return apperrors.NewStorageError(err)
	}

	oldStatus := t.data.Status
	t.data.Status = domain.TicketStatusResolved

	t.publish(ctx, events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: domain.TicketStatusResolved,
	})
	t.publish(ctx, events.EventTicketClosed, events.TicketClosedPayload{Actor: actor})
	return nil
}

func (t *LiveTicket) publish(ctx context.Context, eventType events.EventType, payload any) {
	if t.notifier == nil {
		return
	}
	_ = t.notifier.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  t.data.ID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
