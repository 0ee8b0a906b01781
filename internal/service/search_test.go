package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/search"
)

func seedTicket(t *testing.T, svc *TicketService, id, subject, reporterName string, status domain.TicketStatus, opened, lastAction int64) {
	t.Helper()
	ticket := &domain.Ticket{
		ID:              id,
		ReporterLicense: "license:" + reporterName,
		ReporterName:    reporterName,
		Subject:         subject,
		Status:          status,
		Messages: []domain.Message{{
			Body:          "seed",
			AuthorLicense: "license:" + reporterName,
			AuthorName:    reporterName,
			Timestamp:     opened,
		}},
		OpenedAt:     opened,
		LastActionAt: lastAction,
	}
	require.NoError(t, svc.repo.Create(context.Background(), ticket))
}

func TestSearch_NoTerm_PagesWithCursor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		opened := int64(1000 + i*10)
		seedTicket(t, svc, fmt.Sprintf("t-%d", i), fmt.Sprintf("subject %d", i), "joe",
			domain.TicketStatusOpen, opened, opened)
	}

	params := search.Params{SortKey: search.SortOpened, Desc: true, Limit: 2}
	page1, err := svc.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, page1.Tickets, 2)
	assert.False(t, page1.HasReachedEnd)
	assert.Equal(t, "t-4", page1.Tickets[0].ID)
	assert.Equal(t, "t-3", page1.Tickets[1].ID)

	cursor := page1.Tickets[1].OpenedAt
	params.Cursor = &cursor
	page2, err := svc.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, page2.Tickets, 2)
	assert.False(t, page2.HasReachedEnd)
	assert.Equal(t, "t-2", page2.Tickets[0].ID)
	assert.Equal(t, "t-1", page2.Tickets[1].ID)

	cursor = page2.Tickets[1].OpenedAt
	page3, err := svc.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, page3.Tickets, 1)
	assert.True(t, page3.HasReachedEnd)
	assert.Equal(t, "t-0", page3.Tickets[0].ID)

	// Re-running a page off the same cursor returns the same rows.
	cursor = page1.Tickets[1].OpenedAt
	again, err := svc.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, page2.Tickets, again.Tickets)
}

func TestSearch_ExactLimitReportsEnd(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		opened := int64(1000 + i)
		seedTicket(t, svc, fmt.Sprintf("t-%d", i), "subject", "joe",
			domain.TicketStatusOpen, opened, opened)
	}

	result, err := svc.Search(ctx, search.Params{SortKey: search.SortOpened, Desc: true, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, result.Tickets, 3)
	assert.True(t, result.HasReachedEnd, "a page that drains the set reports the end")
}

func TestSearch_StatusFilter(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	seedTicket(t, svc, "t-open", "a", "joe", domain.TicketStatusOpen, 1000, 1000)
	seedTicket(t, svc, "t-progress", "b", "joe", domain.TicketStatusInProgress, 1001, 1001)
	seedTicket(t, svc, "t-resolved", "c", "joe", domain.TicketStatusResolved, 1002, 1002)

	result, err := svc.Search(ctx, search.Params{
		Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
		SortKey:  search.SortOpened,
		Desc:     false,
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 2)
	assert.Equal(t, "t-open", result.Tickets[0].ID)
	assert.Equal(t, "t-progress", result.Tickets[1].ID)
}

func TestSearch_SortByLastAction(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	seedTicket(t, svc, "t-a", "a", "joe", domain.TicketStatusOpen, 1000, 5000)
	seedTicket(t, svc, "t-b", "b", "joe", domain.TicketStatusOpen, 2000, 3000)

	result, err := svc.Search(ctx, search.Params{SortKey: search.SortLastAction, Desc: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 2)
	assert.Equal(t, "t-a", result.Tickets[0].ID, "last action beats opened order")
}

func TestSearch_FuzzySubject(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	seedTicket(t, svc, "t-1", "stuck under the map", "joe", domain.TicketStatusOpen, 1000, 1000)
	seedTicket(t, svc, "t-2", "vehicle despawned", "ana", domain.TicketStatusOpen, 1001, 1001)
	seedTicket(t, svc, "t-3", "stuck in interior", "bob", domain.TicketStatusOpen, 1002, 1002)

	result, err := svc.Search(ctx, search.Params{
		Value:   "stuck",
		Field:   search.FieldSubject,
		SortKey: search.SortOpened,
		Desc:    true,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 2)
	assert.True(t, result.HasReachedEnd)
	// Survivors come back in sort-key order, not match-score order.
	assert.Equal(t, "t-3", result.Tickets[0].ID)
	assert.Equal(t, "t-1", result.Tickets[1].ID)
}

func TestSearch_FuzzyReporterMatchesNameOrLicense(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	seedTicket(t, svc, "t-1", "a", "joe", domain.TicketStatusOpen, 1000, 1000)
	seedTicket(t, svc, "t-2", "b", "ana", domain.TicketStatusOpen, 1001, 1001)

	byName, err := svc.Search(ctx, search.Params{
		Value: "joe", Field: search.FieldReporter,
		SortKey: search.SortOpened, Desc: true, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, byName.Tickets, 1)
	assert.Equal(t, "t-1", byName.Tickets[0].ID)

	byLicense, err := svc.Search(ctx, search.Params{
		Value: "license:ana", Field: search.FieldReporter,
		SortKey: search.SortOpened, Desc: true, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, byLicense.Tickets, 1)
	assert.Equal(t, "t-2", byLicense.Tickets[0].ID)
}

func TestSearch_ByID(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTicket(ctx, reporter, "subject", "message")
	require.NoError(t, err)

	result, err := svc.Search(ctx, search.Params{
		Value: created.ID, Field: search.FieldID,
		SortKey: search.SortOpened, Desc: true, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 1)
	assert.True(t, result.HasReachedEnd)
	assert.Equal(t, created.ID, result.Tickets[0].ID)
	assert.Nil(t, result.Tickets[0].Messages, "search rows carry no thread")

	// Unknown IDs are an empty page, not an error.
	result, err = svc.Search(ctx, search.Params{
		Value: "no-such-id", Field: search.FieldID,
		SortKey: search.SortOpened, Desc: true, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Tickets)
	assert.True(t, result.HasReachedEnd)

	// A status filter that excludes the ticket hides it.
	result, err = svc.Search(ctx, search.Params{
		Value: created.ID, Field: search.FieldID,
		Statuses: []domain.TicketStatus{domain.TicketStatusResolved},
		SortKey:  search.SortOpened, Desc: true, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Tickets)
}

func TestSearch_FuzzyPageCursor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		opened := int64(1000 + i*10)
		seedTicket(t, svc, fmt.Sprintf("t-%d", i), "connection timeout", "joe",
			domain.TicketStatusOpen, opened, opened)
	}

	params := search.Params{
		Value: "timeout", Field: search.FieldSubject,
		SortKey: search.SortOpened, Desc: true, Limit: 2,
	}
	page1, err := svc.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, page1.Tickets, 2)
	assert.False(t, page1.HasReachedEnd)

	cursor := page1.Tickets[1].OpenedAt
	params.Cursor = &cursor
	page2, err := svc.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, page2.Tickets, 2)
	assert.True(t, page2.HasReachedEnd)
	assert.Equal(t, "t-1", page2.Tickets[0].ID)
	assert.Equal(t, "t-0", page2.Tickets[1].ID)
}
