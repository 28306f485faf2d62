package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

func TestNormalizeSearch(t *testing.T) {
	q, err := normalizeSearch(TicketSearch{RoundID: 1, Pattern: "__3456", Status: " available "})
	require.NoError(t, err)
	assert.Equal(t, "__3456", q.Pattern)
	assert.Equal(t, model.TicketAvailable, q.Status)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultSearchLimit, q.Limit)

	q, err = normalizeSearch(TicketSearch{Page: 3, Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, MaxSearchLimit, q.Limit)

	q, err = normalizeSearch(TicketSearch{Page: MaxSearchPage, Limit: MaxSearchLimit})
	require.NoError(t, err)
	assert.Equal(t, MaxSearchPage, q.Page)
}

func TestNormalizeSearchRejects(t *testing.T) {
	for name, in := range map[string]TicketSearch{
		"short pattern":  {Pattern: "12345"},
		"letters":        {Pattern: "12a456"},
		"percent":        {Pattern: "12%456"},
		"unknown status": {Status: "LOST"},
		"negative page":  {Page: -1},
		"negative limit": {Limit: -5},
		"page too large": {Page: MaxSearchPage + 1},
		"page overflow":  {Page: int(^uint(0) >> 1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := normalizeSearch(in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSearchReturnsPage(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `tickets`")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(12))
	rows := sqlmock.NewRows(ticketCols)
	ticketRow(rows, 11, 1, "003456", "AVAILABLE")
	ticketRow(rows, 12, 1, "993456", "AVAILABLE")
	mock.ExpectQuery("FROM `tickets`").WillReturnRows(rows)

	page, err := NewInventoryService(d).Search(context.Background(), TicketSearch{RoundID: 1, Pattern: "__3456", Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "003456", page.Items[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryGetByIDNotFound(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectQuery("FROM tickets WHERE id = \\?").WillReturnRows(sqlmock.NewRows(ticketCols))

	_, err := NewInventoryService(d).GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}
