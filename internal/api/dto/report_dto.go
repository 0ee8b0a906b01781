package dto

import "github.com/spec-kit/report-service/internal/domain"

// CreateReportRequest is the payload for opening a new report.
type CreateReportRequest struct {
	ReporterName    string `json:"reporterName"`
	ReporterLicense string `json:"reporterLicense"`
	Subject         string `json:"subject"`
	Message         string `json:"message"`
}

// SendMessageRequest appends to a report thread. When the author fields
// are present the message is attributed to that in-game reporter;
// otherwise it is attributed to the authenticated admin and promotes an
// open report to in-progress.
type SendMessageRequest struct {
	Message       string `json:"message"`
	AuthorName    string `json:"authorName,omitempty"`
	AuthorLicense string `json:"authorLicense,omitempty"`
}

// ReporterInfo mirrors the reports table reporter column.
type ReporterInfo struct {
	License string `json:"license"`
	Name    string `json:"name"`
	Online  bool   `json:"online"`
}

// ReportSummary is one row of the reports table.
type ReportSummary struct {
	ID           string       `json:"id"`
	Subject      string       `json:"subject"`
	Reporter     ReporterInfo `json:"reporter"`
	Status       string       `json:"status"`
	TsOpened     int64        `json:"tsOpened"`
	TsLastAction int64        `json:"tsLastAction"`
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	Message       string `json:"message"`
	AuthorLicense string `json:"author_license"`
	AuthorName    string `json:"author_name"`
	Timestamp     int64  `json:"timestamp"`
}

// ReportDetail is the full report payload used by the modal and the
// sub-room initial snapshot.
type ReportDetail struct {
	ID              string            `json:"id"`
	ReporterLicense string            `json:"reporter_license"`
	ReporterName    string            `json:"reporter_name"`
	Subject         string            `json:"subject"`
	Status          string            `json:"status"`
	Messages        []MessageResponse `json:"messages"`
	TsOpened        int64             `json:"ts_opened"`
	TsLastAction    int64             `json:"ts_lastaction"`
}

// SearchResponse is one page of the reports table.
type SearchResponse struct {
	Reports       []ReportSummary `json:"reports"`
	HasReachedEnd bool            `json:"hasReachedEnd"`
}

// StatsResponse aggregates report counts for the page callouts.
type StatsResponse struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unanswered int `json:"unanswered"`
	InProgress int `json:"inprogress"`
}

// CloseResponse acknowledges a close.
type CloseResponse struct {
	Success bool `json:"success"`
}

// NewReportDetail maps a ticket snapshot onto the wire shape.
func NewReportDetail(ticket *domain.Ticket) ReportDetail {
	messages := make([]MessageResponse, 0, len(ticket.Messages))
	for _, msg := range ticket.Messages {
		messages = append(messages, NewMessageResponse(msg))
	}
	return ReportDetail{
		ID:              ticket.ID,
		ReporterLicense: ticket.ReporterLicense,
		ReporterName:    ticket.ReporterName,
		Subject:         ticket.Subject,
		Status:          string(ticket.Status),
		Messages:        messages,
		TsOpened:        ticket.OpenedAt,
		TsLastAction:    ticket.LastActionAt,
	}
}

// NewMessageResponse maps one message onto the wire shape.
func NewMessageResponse(msg domain.Message) MessageResponse {
	return MessageResponse{
		Message:       msg.Body,
		AuthorLicense: msg.AuthorLicense,
		AuthorName:    msg.AuthorName,
		Timestamp:     msg.Timestamp,
	}
}
