package search

import (
	"sort"
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/spec-kit/report-service/internal/domain"
)

func init() {
	algo.Init("default")
}

// Score returns the fzf match score of pattern against text, zero when
// the pattern does not match. Matching is case-insensitive and tolerates
// non-contiguous characters.
func Score(text, pattern string) int {
	if pattern == "" {
		return 0
	}
	chars := util.ToChars([]byte(text))
	result, _ := algo.FuzzyMatchV2(false, true, true, &chars, []rune(strings.ToLower(pattern)), false, nil)
	return result.Score
}

// Rank filters tickets to those matching the search term on the given
// field and orders them by descending match score. The relevance order
// is only a prefilter: callers re-sort the survivors by their own sort
// key before paginating.
func Rank(tickets []domain.Ticket, field Field, value string) []domain.Ticket {
	if value == "" {
		return tickets
	}

	type scored struct {
		ticket domain.Ticket
		score  int
	}
	var matches []scored
	for _, ticket := range tickets {
		score := 0
		switch field {
		case FieldSubject:
			score = Score(ticket.Subject, value)
		case FieldReporter:
			score = Score(ticket.ReporterName, value)
			if licenseScore := Score(ticket.ReporterLicense, value); licenseScore > score {
				score = licenseScore
			}
		case FieldID:
			if strings.EqualFold(ticket.ID, value) {
				score = 1
			}
		}
		if score > 0 {
			matches = append(matches, scored{ticket: ticket, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	result := make([]domain.Ticket, len(matches))
	for i, m := range matches {
		result[i] = m.ticket
	}
	return result
}

// SortTickets orders tickets by the given key, ties kept in the incoming
// (insertion) order.
func SortTickets(tickets []domain.Ticket, key SortKey, desc bool) {
	value := func(t domain.Ticket) int64 {
		if key == SortLastAction {
			return t.LastActionAt
		}
		return t.OpenedAt
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		if desc {
			return value(tickets[i]) > value(tickets[j])
		}
		return value(tickets[i]) < value(tickets[j])
	})
}

// Paginate applies the keyset cursor and the sentinel-extra-row check to
// an already sorted candidate list.
func Paginate(tickets []domain.Ticket, key SortKey, desc bool, cursor *int64, limit int) ([]domain.Ticket, bool) {
	value := func(t domain.Ticket) int64 {
		if key == SortLastAction {
			return t.LastActionAt
		}
		return t.OpenedAt
	}

	filtered := tickets
	if cursor != nil {
		filtered = filtered[:0:0]
		for _, t := range tickets {
			if desc && value(t) < *cursor {
				filtered = append(filtered, t)
			} else if !desc && value(t) > *cursor {
				filtered = append(filtered, t)
			}
		}
	}

	hasReachedEnd := len(filtered) <= limit
	if !hasReachedEnd {
		filtered = filtered[:limit]
	}
	return filtered, hasReachedEnd
}
