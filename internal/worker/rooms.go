package worker

import (
	"context"
	"time"

	"github.com/spec-kit/report-service/internal/api/dto"
	"github.com/spec-kit/report-service/internal/auth"
	"github.com/spec-kit/report-service/internal/service"
	"github.com/spec-kit/report-service/internal/ws"
)

// Room names understood by the hub. Subscribers request them by name
// on the websocket handshake.
const (
	RoomReport   = "report"
	RoomStats    = "stats"
	RoomFeed     = "feed"
	RoomAuditLog = "auditlog"
)

const initialDataTimeout = 2 * time.Second

// BuildRooms declares the broadcast rooms backed by the ticket service.
func BuildRooms(svc *service.TicketService) []*ws.Room {
	return []*ws.Room{
		{
			Name:          RoomReport,
			EventName:     "report",
			Permission:    auth.PermReports,
			Kind:          ws.BufferSnapshot,
			Parameterized: true,
			ParamKey:      "reportId",
			InitialData: func(query map[string]string) any {
				ctx, cancel := context.WithTimeout(context.Background(), initialDataTimeout)
				defer cancel()
				ticket, _, err := svc.GetTicket(ctx, query["reportId"])
				if err != nil {
					return map[string]string{"error": err.Error()}
				}
				return dto.NewReportDetail(ticket)
			},
		},
		{
			Name:       RoomStats,
			EventName:  "stats",
			Permission: auth.PermReports,
			Kind:       ws.BufferSnapshot,
			InitialData: func(map[string]string) any {
				ctx, cancel := context.WithTimeout(context.Background(), initialDataTimeout)
				defer cancel()
				stats, err := svc.Stats(ctx)
				if err != nil {
					return map[string]string{"error": err.Error()}
				}
				return stats
			},
		},
		{
			Name:       RoomFeed,
			EventName:  "feed",
			Permission: auth.PermReports,
			Kind:       ws.BufferList,
		},
		{
			Name:       RoomAuditLog,
			EventName:  "auditlog",
			Permission: auth.PermReports,
			Kind:       ws.BufferText,
		},
	}
}
