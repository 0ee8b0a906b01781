package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/persistence"
)

// SortColumn names a sortable tickets column.
type SortColumn string

const (
	SortByOpened     SortColumn = "ts_opened"
	SortByLastAction SortColumn = "ts_lastaction"
)

// PageFilter captures the store-side portion of a search: status
// restriction, sort order, and keyset cursor. The page query fetches
// limit+1 rows so the caller can detect the end of the list without a
// count query.
type PageFilter struct {
	Statuses []domain.TicketStatus
	SortKey  SortColumn
	Desc     bool
	Cursor   *int64
	Limit    int
}

// TicketRepository encapsulates ticket persistence over the embedded store.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	InsertMessage(ctx context.Context, ticketID string, msg domain.Message) error
	UpdateLastAction(ctx context.Context, ticketID string, ts int64) error
	UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error
	ListUnresolved(ctx context.Context) ([]domain.Ticket, error)
	ListByStatus(ctx context.Context, statuses []domain.TicketStatus, sortKey SortColumn, desc bool) ([]domain.Ticket, error)
	SearchPage(ctx context.Context, filter PageFilter) ([]domain.Ticket, bool, error)
	Stats(ctx context.Context) (*domain.TicketStats, error)
}

type ticketRepository struct {
	store *persistence.Store
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(store *persistence.Store) TicketRepository {
	return &ticketRepository{store: store}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	err := r.store.Insert(ctx, "tickets", map[string]any{
		"id":               ticket.ID,
		"reporter_license": ticket.ReporterLicense,
		"reporter_name":    ticket.ReporterName,
		"subject":          ticket.Subject,
		"status":           string(ticket.Status),
		"ts_opened":        ticket.OpenedAt,
		"ts_lastaction":    ticket.LastActionAt,
	})
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	for _, msg := range ticket.Messages {
		if err := r.InsertMessage(ctx, ticket.ID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, reporter_license, reporter_name, subject, status, ts_opened, ts_lastaction
        FROM tickets WHERE id = ?`
	var ticket domain.Ticket
	var status string
	err := r.store.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.ReporterLicense,
		&ticket.ReporterName,
		&ticket.Subject,
		&status,
		&ticket.OpenedAt,
		&ticket.LastActionAt,
	)
	if err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	if !ticket.Status.Valid() {
		return nil, fmt.Errorf("ticket %s: unknown status %q", ticket.ID, status)
	}

	messages, err := r.listMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Messages = messages
	return &ticket, nil
}

func (r *ticketRepository) listMessages(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT author_license, author_name, message, timestamp
        FROM ticket_messages WHERE ticket_id = ? ORDER BY timestamp ASC, id ASC`
	rows, err := r.store.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.AuthorLicense, &msg.AuthorName, &msg.Body, &msg.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketRepository) InsertMessage(ctx context.Context, ticketID string, msg domain.Message) error {
	err := r.store.Insert(ctx, "ticket_messages", map[string]any{
		"ticket_id":      ticketID,
		"author_license": msg.AuthorLicense,
		"author_name":    msg.AuthorName,
		"message":        msg.Body,
		"timestamp":      msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *ticketRepository) UpdateLastAction(ctx context.Context, ticketID string, ts int64) error {
	return r.store.Exec(ctx, `UPDATE tickets SET ts_lastaction = ? WHERE id = ?`, ts, ticketID)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	return r.store.Exec(ctx, `UPDATE tickets SET status = ? WHERE id = ?`, string(status), ticketID)
}

// ListUnresolved returns every non-resolved ticket with its messages,
// grouped in two queries. Used for the warm boot of the entity cache.
func (r *ticketRepository) ListUnresolved(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := r.scanTicketRows(ctx, `
        SELECT id, reporter_license, reporter_name, subject, status, ts_opened, ts_lastaction
        FROM tickets WHERE status != ? ORDER BY ts_opened ASC`, string(domain.TicketStatusResolved))
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	ids := make([]any, len(tickets))
	placeholders := make([]string, len(tickets))
	index := make(map[string]int, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
		placeholders[i] = "?"
		index[tickets[i].ID] = i
	}

	query := fmt.Sprintf(`
        SELECT ticket_id, author_license, author_name, message, timestamp
        FROM ticket_messages WHERE ticket_id IN (%s) ORDER BY timestamp ASC, id ASC`,
		strings.Join(placeholders, ","))
	rows, err := r.store.Query(ctx, query, ids...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticketID string
		var msg domain.Message
		if err := rows.Scan(&ticketID, &msg.AuthorLicense, &msg.AuthorName, &msg.Body, &msg.Timestamp); err != nil {
			return nil, err
		}
		if i, ok := index[ticketID]; ok {
			tickets[i].Messages = append(tickets[i].Messages, msg)
		}
	}
	return tickets, rows.Err()
}

// ListByStatus returns status-filtered tickets (without messages) in the
// requested order. The fuzzy search path uses it as the candidate set.
func (r *ticketRepository) ListByStatus(ctx context.Context, statuses []domain.TicketStatus, sortKey SortColumn, desc bool) ([]domain.Ticket, error) {
	query, args := buildTicketQuery(statuses, sortKey, desc, nil, 0)
	return r.scanTicketRows(ctx, query, args...)
}

// SearchPage returns one page plus the sentinel-row end marker.
func (r *ticketRepository) SearchPage(ctx context.Context, filter PageFilter) ([]domain.Ticket, bool, error) {
	query, args := buildTicketQuery(filter.Statuses, filter.SortKey, filter.Desc, filter.Cursor, filter.Limit+1)
	tickets, err := r.scanTicketRows(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	hasReachedEnd := len(tickets) <= filter.Limit
	if !hasReachedEnd {
		tickets = tickets[:filter.Limit]
	}
	return tickets, hasReachedEnd, nil
}

func buildTicketQuery(statuses []domain.TicketStatus, sortKey SortColumn, desc bool, cursor *int64, limit int) (string, []any) {
	base := `SELECT id, reporter_license, reporter_name, subject, status, ts_opened, ts_lastaction
             FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, string(status))
			placeholders[i] = "?"
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	if sortKey != SortByOpened && sortKey != SortByLastAction {
		sortKey = SortByOpened
	}
	if cursor != nil {
		operator := ">"
		if desc {
			operator = "<"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", sortKey, operator))
		args = append(args, *cursor)
	}

	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	// Secondary sort on rowid keeps ties in insertion order.
	query := fmt.Sprintf("%s WHERE %s ORDER BY %s %s, rowid %s",
		base, strings.Join(clauses, " AND "), sortKey, direction, direction)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return query, args
}

func (r *ticketRepository) scanTicketRows(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		var status string
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ReporterLicense,
			&ticket.ReporterName,
			&ticket.Subject,
			&status,
			&ticket.OpenedAt,
			&ticket.LastActionAt,
		); err != nil {
			return nil, err
		}
		ticket.Status = domain.TicketStatus(status)
		if !ticket.Status.Valid() {
			return nil, fmt.Errorf("ticket %s: unknown status %q", ticket.ID, status)
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Stats(ctx context.Context) (*domain.TicketStats, error) {
	const query = `
        SELECT
            COUNT(*) FILTER (WHERE status = 'open') AS unanswered,
            COUNT(*) FILTER (WHERE status = 'in-progress') AS inprogress,
            COUNT(*) FILTER (WHERE status = 'resolved') AS resolved,
            COUNT(*) AS total
        FROM tickets`
	var stats domain.TicketStats
	err := r.store.QueryRow(ctx, query).Scan(&stats.Unanswered, &stats.InProgress, &stats.Resolved, &stats.Total)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &stats, nil
}
