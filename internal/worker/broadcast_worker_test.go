package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/report-service/internal/api/dto"
	"github.com/spec-kit/report-service/internal/auth"
	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/events"
	"github.com/spec-kit/report-service/internal/observability"
	"github.com/spec-kit/report-service/internal/persistence"
	"github.com/spec-kit/report-service/internal/repository"
	"github.com/spec-kit/report-service/internal/service"
	"github.com/spec-kit/report-service/internal/ws"
)

type emitted struct {
	Event string
	Data  any
}

type fakeConn struct {
	mu    sync.Mutex
	id    string
	auth  *auth.Principal
	emits []emitted
}

func (c *fakeConn) ID() string              { return c.id }
func (c *fakeConn) Authority() ws.Authority { return c.auth }
func (c *fakeConn) Close()                  {}

func (c *fakeConn) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{Event: event, Data: data})
	return nil
}

func (c *fakeConn) received() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.emits...)
}

func newAdminConn(id string) *fakeConn {
	return &fakeConn{id: id, auth: &auth.Principal{AdminName: id, Permissions: []string{auth.PermReports}}}
}

type fixture struct {
	svc *service.TicketService
	hub *ws.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := persistence.NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dispatcher := events.NewInMemoryDispatcher()
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewTicketRepository(store),
		Notifier:   dispatcher,
	})
	hub := ws.NewHub(nil, ws.DefaultFlushInterval, BuildRooms(svc)...)
	NewBroadcastWorker(hub, svc, observability.NewMetrics(), nil).Start(dispatcher)
	return &fixture{svc: svc, hub: hub}
}

var (
	reporter = domain.Member{Name: "joe", License: "license:aaa111"}
	admin    = domain.Member{Name: "tabarra", License: "web-panel"}
)

func eventsOf(conn *fakeConn, name string) []emitted {
	var out []emitted
	for _, e := range conn.received() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func TestWorker_CreateFansOutToRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := newAdminConn("a1")
	require.NoError(t, f.hub.Subscribe(conn, []string{RoomStats, RoomFeed, RoomAuditLog}, nil))

	ticket, err := f.svc.CreateTicket(ctx, reporter, "stuck under the map", "help")
	require.NoError(t, err)
	f.hub.Flush()

	statsEvents := eventsOf(conn, "stats")
	require.NotEmpty(t, statsEvents)
	stats := statsEvents[len(statsEvents)-1].Data.(*domain.TicketStats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Unanswered)

	feedEvents := eventsOf(conn, "feed")
	require.Len(t, feedEvents, 1)
	batch := feedEvents[0].Data.([]any)
	require.Len(t, batch, 1)
	entry := batch[0].(map[string]any)
	assert.Equal(t, "reportOpened", entry["type"])
	assert.Equal(t, ticket.ID, entry["id"])

	logEvents := eventsOf(conn, "auditlog")
	require.Len(t, logEvents, 1)
	assert.Contains(t, logEvents[0].Data.(string), "joe opened report "+ticket.ID)
}

func TestWorker_MessageDeliversDirectToSubRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, reporter, "subject", "help")
	require.NoError(t, err)

	watcher := newAdminConn("a1")
	require.NoError(t, f.hub.Subscribe(watcher, []string{RoomReport}, map[string]string{"reportId": ticket.ID}))

	// Joining delivers the current detail snapshot.
	initial := eventsOf(watcher, "report")
	require.Len(t, initial, 1)
	detail := initial[0].Data.(dto.ReportDetail)
	assert.Equal(t, ticket.ID, detail.ID)
	require.Len(t, detail.Messages, 1)

	other, err := f.svc.CreateTicket(ctx, reporter, "other", "help")
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, ticket.ID, "on my way", admin, true)
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, other.ID, "unrelated", admin, true)
	require.NoError(t, err)

	// No flush needed: message delivery is immediate and scoped to the
	// watched report.
	direct := eventsOf(watcher, "reportMessage")
	require.Len(t, direct, 1)
	msg := direct[0].Data.(dto.MessageResponse)
	assert.Equal(t, "on my way", msg.Message)
	assert.Equal(t, admin.License, msg.AuthorLicense)
}

func TestWorker_CloseUpdatesStatsAndLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, reporter, "subject", "help")
	require.NoError(t, err)

	conn := newAdminConn("a1")
	require.NoError(t, f.hub.Subscribe(conn, []string{RoomStats, RoomAuditLog}, nil))

	require.NoError(t, f.svc.CloseTicket(ctx, ticket.ID, admin))
	f.hub.Flush()

	statsEvents := eventsOf(conn, "stats")
	require.NotEmpty(t, statsEvents)
	stats := statsEvents[len(statsEvents)-1].Data.(*domain.TicketStats)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 0, stats.Unanswered)

	logEvents := eventsOf(conn, "auditlog")
	require.Len(t, logEvents, 1)
	assert.Contains(t, logEvents[0].Data.(string), "tabarra closed report "+ticket.ID)
}

func TestWorker_StatsRoomInitialData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTicket(ctx, reporter, "subject", "help")
	require.NoError(t, err)

	conn := newAdminConn("a1")
	require.NoError(t, f.hub.Subscribe(conn, []string{RoomStats}, nil))

	initial := eventsOf(conn, "stats")
	require.Len(t, initial, 1)
	stats := initial[0].Data.(*domain.TicketStats)
	assert.Equal(t, 1, stats.Total)
}

// Joining a report sub-room snapshots the live ticket while appends on
// the same ticket broadcast through the hub. The two paths must not
// wait on each other's locks.
func TestWorker_SubscribeDuringAppendDoesNotWedge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, reporter, "subject", "help")
	require.NoError(t, err)

	const iterations = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				conn := newAdminConn("watcher")
				assert.NoError(t, f.hub.Subscribe(conn, []string{RoomReport}, map[string]string{"reportId": ticket.ID}))
				f.hub.Unsubscribe(conn)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				_, err := f.svc.AppendMessage(ctx, ticket.ID, "still here", admin, true)
				assert.NoError(t, err)
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("concurrent subscribe and append wedged")
	}
}

func TestWorker_ReportRoomUnknownID(t *testing.T) {
	f := newFixture(t)

	conn := newAdminConn("a1")
	require.NoError(t, f.hub.Subscribe(conn, []string{RoomReport}, map[string]string{"reportId": "missing"}))

	initial := eventsOf(conn, "report")
	require.Len(t, initial, 1)
	payload, ok := initial[0].Data.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, payload["error"], "not found")
}
