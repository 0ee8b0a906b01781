package search

import (
	"strconv"
	"strings"

	"github.com/spec-kit/report-service/internal/domain"
	apperrors "github.com/spec-kit/report-service/pkg/util"
)

// DefaultPageSize matches the panel table page length.
const DefaultPageSize = 100

// Field designates which ticket attribute a search term runs against.
type Field string

const (
	FieldSubject  Field = "subject"
	FieldReporter Field = "reporter"
	FieldID       Field = "id"
)

// SortKey names a sortable ticket attribute in wire form.
type SortKey string

const (
	SortOpened     SortKey = "tsOpened"
	SortLastAction SortKey = "tsLastAction"
)

// Params is a validated search request. Zero-value Statuses means no
// status restriction; a nil Cursor starts from the first page.
type Params struct {
	Value    string
	Field    Field
	Statuses []domain.TicketStatus
	SortKey  SortKey
	Desc     bool
	Cursor   *int64
	Limit    int
}

// RawParams carries the untrusted query-string values.
type RawParams struct {
	SearchValue string
	SearchType  string
	Filters     string
	SortingKey  string
	SortingDesc string
	Offset      string
}

// Parse validates raw parameters into Params. All rejection happens
// here, before anything touches the cache or the store.
func Parse(raw RawParams) (Params, error) {
	params := Params{
		Value: strings.TrimSpace(raw.SearchValue),
		Limit: DefaultPageSize,
	}

	if params.Value != "" {
		switch Field(raw.SearchType) {
		case FieldSubject, FieldReporter, FieldID:
			params.Field = Field(raw.SearchType)
		default:
			return Params{}, apperrors.NewInvalidQuery("unknown search field", map[string]any{"searchType": raw.SearchType})
		}
	}

	statuses, err := parseStatusFilters(raw.Filters)
	if err != nil {
		return Params{}, err
	}
	params.Statuses = statuses

	switch raw.SortingKey {
	case "", string(SortOpened):
		params.SortKey = SortOpened
	case string(SortLastAction):
		params.SortKey = SortLastAction
	default:
		return Params{}, apperrors.NewInvalidQuery("unknown sorting key", map[string]any{"sortingKey": raw.SortingKey})
	}

	switch raw.SortingDesc {
	case "", "true":
		params.Desc = true
	case "false":
		params.Desc = false
	default:
		return Params{}, apperrors.NewInvalidQuery("sortingDesc must be true or false", nil)
	}

	if raw.Offset != "" {
		cursor, err := strconv.ParseInt(raw.Offset, 10, 64)
		if err != nil {
			return Params{}, apperrors.NewInvalidQuery("offset must be an integer timestamp", nil)
		}
		params.Cursor = &cursor
	}

	return params, nil
}

func parseStatusFilters(raw string) ([]domain.TicketStatus, error) {
	if raw == "" {
		return nil, nil
	}
	seen := map[domain.TicketStatus]bool{}
	var statuses []domain.TicketStatus
	for _, token := range strings.Split(raw, ",") {
		var status domain.TicketStatus
		switch token {
		case "statusOpen":
			status = domain.TicketStatusOpen
		case "statusInProgress":
			status = domain.TicketStatusInProgress
		case "statusResolved":
			status = domain.TicketStatusResolved
		default:
			return nil, apperrors.NewInvalidQuery("unknown status filter", map[string]any{"filter": token})
		}
		if !seen[status] {
			seen[status] = true
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
