package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/persistence"
)

func newTestRepo(t *testing.T) TicketRepository {
	t.Helper()
	store, err := persistence.NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewTicketRepository(store)
}

func makeTicket(id string, status domain.TicketStatus, opened int64) *domain.Ticket {
	return &domain.Ticket{
		ID:              id,
		ReporterLicense: "license:abc",
		ReporterName:    "joe",
		Subject:         "subject " + id,
		Status:          status,
		Messages: []domain.Message{{
			Body:          "first",
			AuthorLicense: "license:abc",
			AuthorName:    "joe",
			Timestamp:     opened,
		}},
		OpenedAt:     opened,
		LastActionAt: opened,
	}
}

func TestCreateAndGetByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, makeTicket("t-1", domain.TicketStatusOpen, 1000)))

	got, err := repo.GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "subject t-1", got.Subject)
	assert.Equal(t, domain.TicketStatusOpen, got.Status)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "first", got.Messages[0].Body)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestGetByID_RejectsUnknownStatusRow(t *testing.T) {
	store, err := persistence.NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	repo := NewTicketRepository(store)
	ctx := context.Background()

	// A row written outside the lifecycle carries a status no code path
	// produces; reading it back must fail rather than leak the value.
	require.NoError(t, store.Insert(ctx, "tickets", map[string]any{
		"id":               "t-bad",
		"reporter_license": "license:abc",
		"reporter_name":    "joe",
		"subject":          "subject",
		"status":           "escalated",
		"ts_opened":        int64(1000),
		"ts_lastaction":    int64(1000),
	}))

	_, err = repo.GetByID(ctx, "t-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "escalated"`)

	_, err = repo.ListUnresolved(ctx)
	require.Error(t, err)
}

func TestInsertMessage_OrderedByTimestampThenRowid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, makeTicket("t-1", domain.TicketStatusOpen, 1000)))

	// Two messages share one timestamp; insertion order must hold.
	msgs := []domain.Message{
		{Body: "second", AuthorLicense: "a", Timestamp: 2000},
		{Body: "third", AuthorLicense: "a", Timestamp: 2000},
		{Body: "fourth", AuthorLicense: "a", Timestamp: 3000},
	}
	for _, msg := range msgs {
		require.NoError(t, repo.InsertMessage(ctx, "t-1", msg))
	}

	got, err := repo.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "first", got.Messages[0].Body)
	assert.Equal(t, "second", got.Messages[1].Body)
	assert.Equal(t, "third", got.Messages[2].Body)
	assert.Equal(t, "fourth", got.Messages[3].Body)
}

func TestUpdateStatusAndLastAction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, makeTicket("t-1", domain.TicketStatusOpen, 1000)))
	require.NoError(t, repo.UpdateStatus(ctx, "t-1", domain.TicketStatusInProgress))
	require.NoError(t, repo.UpdateLastAction(ctx, "t-1", 5000))

	got, err := repo.GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, got.Status)
	assert.Equal(t, int64(5000), got.LastActionAt)
	assert.Equal(t, int64(1000), got.OpenedAt)
}

func TestListUnresolved_LoadsThreads(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, makeTicket("t-open", domain.TicketStatusOpen, 1000)))
	require.NoError(t, repo.Create(ctx, makeTicket("t-progress", domain.TicketStatusInProgress, 2000)))
	require.NoError(t, repo.Create(ctx, makeTicket("t-done", domain.TicketStatusResolved, 3000)))
	require.NoError(t, repo.InsertMessage(ctx, "t-progress", domain.Message{
		Body: "reply", AuthorLicense: "web-panel", Timestamp: 2500,
	}))

	tickets, err := repo.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "t-open", tickets[0].ID)
	assert.Equal(t, "t-progress", tickets[1].ID)
	require.Len(t, tickets[1].Messages, 2)
	assert.Equal(t, "reply", tickets[1].Messages[1].Body)
}

func TestListUnresolved_EmptyStore(t *testing.T) {
	repo := newTestRepo(t)

	tickets, err := repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestSearchPage_SentinelAndCursor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ticket := makeTicket(fmt.Sprintf("t-%d", i), domain.TicketStatusOpen, int64(1000+i*10))
		require.NoError(t, repo.Create(ctx, ticket))
	}

	page, end, err := repo.SearchPage(ctx, PageFilter{SortKey: SortByOpened, Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.False(t, end)
	assert.Equal(t, "t-4", page[0].ID)

	cursor := page[1].OpenedAt
	page, end, err = repo.SearchPage(ctx, PageFilter{SortKey: SortByOpened, Desc: true, Cursor: &cursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.False(t, end)
	assert.Equal(t, "t-2", page[0].ID)

	cursor = page[1].OpenedAt
	page, end, err = repo.SearchPage(ctx, PageFilter{SortKey: SortByOpened, Desc: true, Cursor: &cursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, end)
	assert.Equal(t, "t-0", page[0].ID)
}

func TestSearchPage_StatusRestriction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, makeTicket("t-open", domain.TicketStatusOpen, 1000)))
	require.NoError(t, repo.Create(ctx, makeTicket("t-done", domain.TicketStatusResolved, 2000)))

	page, end, err := repo.SearchPage(ctx, PageFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusResolved},
		SortKey:  SortByOpened,
		Desc:     true,
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, end)
	assert.Equal(t, "t-done", page[0].ID)
	assert.Nil(t, page[0].Messages, "search rows carry no thread")
}

func TestSearchPage_TiesKeepInsertionOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"t-a", "t-b", "t-c"} {
		require.NoError(t, repo.Create(ctx, makeTicket(id, domain.TicketStatusOpen, 1000)))
	}

	page, _, err := repo.SearchPage(ctx, PageFilter{SortKey: SortByOpened, Desc: false, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "t-a", page[0].ID)
	assert.Equal(t, "t-b", page[1].ID)
	assert.Equal(t, "t-c", page[2].ID)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	require.NoError(t, repo.Create(ctx, makeTicket("t-1", domain.TicketStatusOpen, 1000)))
	require.NoError(t, repo.Create(ctx, makeTicket("t-2", domain.TicketStatusOpen, 1000)))
	require.NoError(t, repo.Create(ctx, makeTicket("t-3", domain.TicketStatusInProgress, 1000)))
	require.NoError(t, repo.Create(ctx, makeTicket("t-4", domain.TicketStatusResolved, 1000)))

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Unanswered)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.Resolved)
}
