package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/events"
	"github.com/spec-kit/report-service/internal/repository"
	"github.com/spec-kit/report-service/internal/search"
	apperrors "github.com/spec-kit/report-service/pkg/util"
)

// TicketService owns the entity cache: the process-wide set of live
// tickets. It is the single source of truth for "is this ticket
// currently active". Construction injects the store and the notifier
// so nothing in here reaches through globals.
type TicketService struct {
	mu       sync.Mutex
	active   map[string]*LiveTicket
	repo     repository.TicketRepository
	notifier events.Dispatcher
	logger   *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Notifier   events.Dispatcher
	Logger     *zap.Logger
}

// SearchResult is one page of the query surface. Items carry no
// message threads; the detail fetch loads those.
type SearchResult struct {
	Tickets       []domain.Ticket
	HasReachedEnd bool
}

// NewTicketService constructs the service with an empty cache.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		active:   make(map[string]*LiveTicket),
		repo:     deps.TicketRepo,
		notifier: deps.Notifier,
		logger:   logger,
	}
}

// LoadUnresolved warm-boots the cache with every non-resolved ticket
// from the store, so a restarted process resumes serving active
// tickets from memory.
func (s *TicketService) LoadUnresolved(ctx context.Context) error {
	tickets, err := s.repo.ListUnresolved(ctx)
	if err != nil {
		return apperrors.NewStorageError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range tickets {
		s.active[ticket.ID] = newLiveTicket(ticket, s.repo, s.notifier)
	}
	if len(tickets) > 0 {
		s.logger.Info("loaded active tickets", zap.Int("count", len(tickets)))
	}
	return nil
}

// CreateTicket allocates an ID, seeds the thread with the initial
// message, persists synchronously, and registers the live entity.
func (s *TicketService) CreateTicket(ctx context.Context, reporter domain.Member, subject, initialMessage string) (*domain.Ticket, error) {
	subject = strings.TrimSpace(subject)
	initialMessage = strings.TrimSpace(initialMessage)
	if reporter.License == "" || subject == "" || initialMessage == "" {
		return nil, apperrors.NewValidationError("reporter license, subject and message required", nil)
	}

	now := time.Now().UnixMilli()
	ticket := domain.Ticket{
		ID:              uuid.NewString(),
		ReporterLicense: reporter.License,
		ReporterName:    reporter.Name,
		Subject:         subject,
		Status:          domain.TicketStatusOpen,
		Messages: []domain.Message{{
			Body:          initialMessage,
			AuthorLicense: reporter.License,
			AuthorName:    reporter.Name,
			Timestamp:     now,
		}},
		OpenedAt:     now,
		LastActionAt: now,
	}

	if err := s.repo.Create(ctx, &ticket); err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	live := newLiveTicket(ticket, s.repo, s.notifier)
	s.mu.Lock()
	s.active[ticket.ID] = live
	s.mu.Unlock()

	if s.notifier != nil {
		_ = s.notifier.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketCreated,
			TicketID:  ticket.ID,
			Timestamp: time.Now(),
			Payload:   events.TicketCreatedPayload{Reporter: ticket.Reporter(), Subject: ticket.Subject},
		})
	}

	snapshot := live.Snapshot()
	return &snapshot, nil
}

// GetTicket returns the ticket and whether it is currently active. A
// cache miss hydrates from the store in two queries and returns the
// ticket detached; resolved tickets never re-enter the cache.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, bool, error) {
	if live := s.lookup(id); live != nil {
		snapshot := live.Snapshot()
		return &snapshot, true, nil
	}

	ticket, err := s.hydrate(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return ticket, false, nil
}

// AppendMessage appends to a ticket's thread. Privileged authors
// promote an open ticket to in-progress. A store-resident, non-resolved
// ticket missing from the cache is re-cached before mutating.
func (s *TicketService) AppendMessage(ctx context.Context, id, body string, author domain.Member, isPrivileged bool) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	if author.License == "" {
		return nil, apperrors.NewValidationError("author license required", nil)
	}

	live := s.lookup(id)
	if live == nil {
		ticket, err := s.hydrate(ctx, id)
		if err != nil {
			return nil, err
		}
		if ticket.Status.Terminal() {
			return nil, apperrors.NewTicketClosed(id)
		}
		live = s.recache(*ticket)
	}

	msg, err := live.AppendMessage(ctx, body, author, isPrivileged)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CloseTicket closes a live ticket: appends the closing message, marks
// it resolved, and evicts the cache entry so the store becomes the
// system of record. Closing an unknown or already-closed ticket fails
// with NOT_FOUND; close is deliberately not idempotent.
func (s *TicketService) CloseTicket(ctx context.Context, id string, actor domain.Member) error {
	live := s.lookup(id)
	if live == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}

	if err := live.Close(ctx, actor); err != nil {
		if apperrors.IsTicketClosed(err) {
			// Lost a close race; report the same outcome as an
			// already-evicted ticket.
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return err
	}

	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
	return nil
}

// Stats aggregates ticket counts by status from the store, covering
// both cached and evicted tickets.
func (s *TicketService) Stats(ctx context.Context) (*domain.TicketStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return stats, nil
}

// Search runs the query surface. Without a search term the page comes
// straight from a keyset query; with one, the fuzzy ranker prefilters
// the status-restricted candidate set and sort/cursor logic applies to
// the survivors. Write-through persistence makes the store a complete
// view of the collection.
func (s *TicketService) Search(ctx context.Context, params search.Params) (*SearchResult, error) {
	if params.Value != "" && params.Field == search.FieldID {
		return s.searchByID(ctx, params)
	}

	if params.Value == "" {
		tickets, hasReachedEnd, err := s.repo.SearchPage(ctx, repository.PageFilter{
			Statuses: params.Statuses,
			SortKey:  sortColumn(params.SortKey),
			Desc:     params.Desc,
			Cursor:   params.Cursor,
			Limit:    params.Limit,
		})
		if err != nil {
			return nil, apperrors.NewStorageError(err)
		}
		return &SearchResult{Tickets: tickets, HasReachedEnd: hasReachedEnd}, nil
	}

	candidates, err := s.repo.ListByStatus(ctx, params.Statuses, sortColumn(params.SortKey), params.Desc)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	matched := search.Rank(candidates, params.Field, params.Value)
	search.SortTickets(matched, params.SortKey, params.Desc)
	page, hasReachedEnd := search.Paginate(matched, params.SortKey, params.Desc, params.Cursor, params.Limit)
	return &SearchResult{Tickets: page, HasReachedEnd: hasReachedEnd}, nil
}

func (s *TicketService) searchByID(ctx context.Context, params search.Params) (*SearchResult, error) {
	ticket, _, err := s.GetTicket(ctx, params.Value)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return &SearchResult{HasReachedEnd: true}, nil
		}
		return nil, err
	}
	if len(params.Statuses) > 0 {
		allowed := false
		for _, status := range params.Statuses {
			if ticket.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return &SearchResult{HasReachedEnd: true}, nil
		}
	}
	ticket.Messages = nil
	return &SearchResult{Tickets: []domain.Ticket{*ticket}, HasReachedEnd: true}, nil
}

func (s *TicketService) lookup(id string) *LiveTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *TicketService) recache(ticket domain.Ticket) *LiveTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[ticket.ID]; ok {
		return existing
	}
	live := newLiveTicket(ticket, s.repo, s.notifier)
	s.active[ticket.ID] = live
	return live
}

func (s *TicketService) hydrate(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

func sortColumn(key search.SortKey) repository.SortColumn {
	if key == search.SortLastAction {
		return repository.SortByLastAction
	}
	return repository.SortByOpened
}
