package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/repository"
)

// Search paging limits.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
	// MaxSearchPage keeps the row offset well inside int range; no pool is
	// larger than the 10^6 possible numbers.
	MaxSearchPage = 10_000
)

// TicketSearch is the raw search input.  Status is matched case-insensitively.
type TicketSearch struct {
	RoundID uint64
	Pattern string
	Status  string
	Page    int
	Limit   int
}

// TicketPage is one page of search results.
type TicketPage struct {
	Items []model.Ticket `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// InventoryService exposes read access to tickets.  It has no mutation
// methods; ticket status only changes through checkout and order
// transitions.
type InventoryService struct {
	d Deps
}

// NewInventoryService returns an InventoryService over d.
func NewInventoryService(d Deps) *InventoryService {
	return &InventoryService{d: d.withDefaults()}
}

// Search validates q and returns one page of tickets ordered by id.
func (s *InventoryService) Search(ctx context.Context, q TicketSearch) (TicketPage, error) {
	rq, err := normalizeSearch(q)
	if err != nil {
		return TicketPage{}, err
	}
	items, total, err := s.d.Tickets.Search(ctx, rq)
	if err != nil {
		return TicketPage{}, fmt.Errorf("search tickets: %w", err)
	}
	return TicketPage{Items: items, Total: total, Page: rq.Page, Limit: rq.Limit}, nil
}

// GetByID returns a ticket or ErrTicketNotFound.
func (s *InventoryService) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	t, err := s.d.Tickets.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return t, fmt.Errorf("%w: %d", ErrTicketNotFound, id)
	}
	return t, err
}

func normalizeSearch(q TicketSearch) (repository.TicketQuery, error) {
	out := repository.TicketQuery{RoundID: q.RoundID, Page: q.Page, Limit: q.Limit}
	if q.Pattern != "" {
		if !model.ValidPattern(q.Pattern) {
			return out, invalid("pattern must be %d characters of digits or %q", model.NumberLength, model.PatternWildcard)
		}
		// a pattern without wildcards is an exact lookup; LIKE handles both
		out.Pattern = q.Pattern
	}
	if q.Status != "" {
		st := model.TicketStatus(strings.ToUpper(strings.TrimSpace(q.Status)))
		if !st.Valid() {
			return out, invalid("unknown ticket status %q", q.Status)
		}
		out.Status = st
	}
	if out.Page < 0 || out.Limit < 0 {
		return out, invalid("page and limit must not be negative")
	}
	if out.Page > MaxSearchPage {
		return out, invalid("page must be at most %d", MaxSearchPage)
	}
	if out.Page == 0 {
		out.Page = 1
	}
	if out.Limit == 0 {
		out.Limit = DefaultSearchLimit
	}
	if out.Limit > MaxSearchLimit {
		out.Limit = MaxSearchLimit
	}
	return out, nil
}
