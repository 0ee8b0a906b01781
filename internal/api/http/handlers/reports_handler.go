package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/report-service/internal/api/dto"
	"github.com/spec-kit/report-service/internal/auth"
	"github.com/spec-kit/report-service/internal/domain"
	"github.com/spec-kit/report-service/internal/persistence"
	"github.com/spec-kit/report-service/internal/search"
	"github.com/spec-kit/report-service/internal/service"
	apperrors "github.com/spec-kit/report-service/pkg/util"
)

// WebPanelLicense attributes panel-side actions that have no in-game
// identity behind them.
const WebPanelLicense = "web-panel"

// ReportsHandler exposes the report endpoints.
type ReportsHandler struct {
	service  *service.TicketService
	presence *persistence.Redis
}

// NewReportsHandler constructs handler.
func NewReportsHandler(ticketService *service.TicketService, presence *persistence.Redis) *ReportsHandler {
	return &ReportsHandler{service: ticketService, presence: presence}
}

// CreateReport POST /reports.
func (h *ReportsHandler) CreateReport(c *fiber.Ctx) error {
	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	reporter := domain.Member{Name: req.ReporterName, License: req.ReporterLicense}
	ticket, err := h.service.CreateTicket(c.UserContext(), reporter, req.Subject, req.Message)
	if err != nil {
		return err
	}
	h.presence.MarkOnline(c.UserContext(), reporter.License)
	return c.Status(http.StatusCreated).JSON(dto.NewReportDetail(ticket))
}

// GetReport GET /reports/:id.
func (h *ReportsHandler) GetReport(c *fiber.Ctx) error {
	ticket, _, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewReportDetail(ticket))
}

// SendMessage POST /reports/:id/messages.
func (h *ReportsHandler) SendMessage(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.NewValidationError("message required", nil)
	}

	author, isPrivileged := h.resolveAuthor(c, req)
	msg, err := h.service.AppendMessage(c.UserContext(), c.Params("id"), req.Message, author, isPrivileged)
	if err != nil {
		return err
	}
	if !isPrivileged {
		h.presence.MarkOnline(c.UserContext(), author.License)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": dto.NewMessageResponse(*msg),
	})
}

// CloseReport POST /reports/:id/close.
func (h *ReportsHandler) CloseReport(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("admin required")
	}
	actor := domain.Member{Name: principal.AdminName, License: WebPanelLicense}
	if err := h.service.CloseTicket(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.JSON(dto.CloseResponse{Success: true})
}

// SearchReports GET /reports/search.
func (h *ReportsHandler) SearchReports(c *fiber.Ctx) error {
	params, err := search.Parse(search.RawParams{
		SearchValue: c.Query("searchValue"),
		SearchType:  c.Query("searchType"),
		Filters:     c.Query("filters"),
		SortingKey:  c.Query("sortingKey"),
		SortingDesc: c.Query("sortingDesc"),
		Offset:      c.Query("offsetParam"),
	})
	if err != nil {
		return err
	}

	result, err := h.service.Search(c.UserContext(), params)
	if err != nil {
		return err
	}

	reports := make([]dto.ReportSummary, 0, len(result.Tickets))
	for i := range result.Tickets {
		reports = append(reports, h.reportSummary(c, &result.Tickets[i]))
	}
	return c.JSON(dto.SearchResponse{Reports: reports, HasReachedEnd: result.HasReachedEnd})
}

// GetStats GET /reports/stats.
func (h *ReportsHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.StatsResponse{
		Total:      stats.Total,
		Resolved:   stats.Resolved,
		Unanswered: stats.Unanswered,
		InProgress: stats.InProgress,
	})
}

func (h *ReportsHandler) resolveAuthor(c *fiber.Ctx, req dto.SendMessageRequest) (domain.Member, bool) {
	if req.AuthorLicense != "" {
		return domain.Member{Name: req.AuthorName, License: req.AuthorLicense}, false
	}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		return domain.Member{Name: principal.AdminName, License: WebPanelLicense}, true
	}
	return domain.Member{}, false
}

func (h *ReportsHandler) reportSummary(c *fiber.Ctx, ticket *domain.Ticket) dto.ReportSummary {
	return dto.ReportSummary{
		ID:      ticket.ID,
		Subject: ticket.Subject,
		Reporter: dto.ReporterInfo{
			License: ticket.ReporterLicense,
			Name:    ticket.ReporterName,
			Online:  h.presence.IsOnline(c.UserContext(), ticket.ReporterLicense),
		},
		Status:       string(ticket.Status),
		TsOpened:     ticket.OpenedAt,
		TsLastAction: ticket.LastActionAt,
	}
}

