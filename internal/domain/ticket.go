package domain

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved
}

// Ticket is the aggregate for in-game reports. Timestamps are unix
// milliseconds; LastActionAt is never below OpenedAt, and the message
// sequence is never empty (creation seeds the first message).
type Ticket struct {
	ID              string       `json:"id"`
	ReporterLicense string       `json:"reporter_license"`
	ReporterName    string       `json:"reporter_name"`
	Subject         string       `json:"subject"`
	Status          TicketStatus `json:"status"`
	Messages        []Message    `json:"messages"`
	OpenedAt        int64        `json:"ts_opened"`
	LastActionAt    int64        `json:"ts_lastaction"`
}

// Reporter returns the reporting party as a Member.
func (t *Ticket) Reporter() Member {
	return Member{Name: t.ReporterName, License: t.ReporterLicense}
}

// TicketStats aggregates ticket counts by status across the whole store.
type TicketStats struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unanswered int `json:"unanswered"`
	InProgress int `json:"inprogress"`
}
