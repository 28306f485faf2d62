package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/prize"
)

type fakePayouts map[prize.Tier]decimal.Decimal

func (f fakePayouts) Payout(t prize.Tier) decimal.Decimal { return f[t] }

const drawnJSON = `{"first_prize":"123456","nearby":["123455","123457"],"front_three":["999"],"back_three":["456"],"two_digit":["56"]}`

func roundRows(id uint64, status string, sellClose time.Time, winning interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(roundCols).AddRow(id, "round", sellClose.Add(time.Hour), sellClose.Add(-48*time.Hour), sellClose,
		status, winning, nil, "80.00", 100, 2, t0, t0)
}

func sampleWinning() model.WinningNumbers {
	return model.WinningNumbers{
		FirstPrize: "123456",
		Nearby:     []string{"123455", "123457"},
		FrontThree: []string{"999"},
		BackThree:  []string{"456"},
		TwoDigit:   []string{"56"},
	}
}

func TestRecordDrawClassifiesSoldTickets(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rounds WHERE id = \\? FOR UPDATE").WillReturnRows(roundRows(1, "CLOSED", t0.Add(-time.Hour), nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets WHERE round_id = \\? AND status = \\?").
		WithArgs(1, "RESERVED").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectExec("UPDATE rounds SET status = \\?, winning_numbers = \\?").
		WithArgs("DRAWN", sqlmock.AnyArg(), t0, 1, "CLOSED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sold := sqlmock.NewRows(ticketCols)
	ticketRow(sold, 1, 1, "123456", "SOLD")
	ticketRow(sold, 2, 1, "000456", "SOLD")
	ticketRow(sold, 3, 1, "777777", "SOLD")
	mock.ExpectQuery("FROM tickets WHERE round_id = \\? AND status = \\? ORDER BY id").
		WithArgs(1, "SOLD").
		WillReturnRows(sold)
	mock.ExpectExec("INSERT INTO prize_results").
		WithArgs(1, 1, "123456", "first", 1, 2, "000456", "back3", 1, 3, "777777", "none").
		WillReturnResult(sqlmock.NewResult(1, 3))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("round.drawn", "round.drawn:1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tiers, err := NewDrawService(d, fakePayouts{}).RecordDraw(context.Background(), 1, sampleWinning())
	require.NoError(t, err)
	assert.Equal(t, map[uint64]prize.Tier{1: prize.TierFirst, 2: prize.TierBack3, 3: prize.TierNone}, tiers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDrawClosesEndedRound(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rounds WHERE id = \\? FOR UPDATE").WillReturnRows(roundRows(1, "OPEN", t0, nil))
	mock.ExpectExec("UPDATE rounds SET status = \\? WHERE id = \\? AND status = \\?").
		WithArgs("CLOSED", 1, "OPEN").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectExec("UPDATE rounds SET status = \\?, winning_numbers = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM tickets WHERE round_id = \\? AND status = \\?").WillReturnRows(sqlmock.NewRows(ticketCols))
	mock.ExpectExec("INSERT INTO outbox").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tiers, err := NewDrawService(d, fakePayouts{}).RecordDraw(context.Background(), 1, sampleWinning())
	require.NoError(t, err)
	assert.Empty(t, tiers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDrawRejects(t *testing.T) {
	cases := []struct {
		name    string
		rows    func() *sqlmock.Rows
		reserve int
		want    error
	}{
		{"still selling", func() *sqlmock.Rows { return roundRows(1, "OPEN", t0.Add(time.Hour), nil) }, -1, ErrRoundNotClosed},
		{"already drawn", func() *sqlmock.Rows { return roundRows(1, "DRAWN", t0.Add(-time.Hour), drawnJSON) }, -1, ErrRoundAlreadyDrawn},
		{"not found", func() *sqlmock.Rows { return sqlmock.NewRows(roundCols) }, -1, ErrRoundNotFound},
		{"reserved tickets", func() *sqlmock.Rows { return roundRows(1, "CLOSED", t0.Add(-time.Hour), nil) }, 2, ErrRoundNotClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, mock, _ := newTestDeps(t)
			mock.ExpectBegin()
			mock.ExpectQuery("FROM rounds WHERE id = \\? FOR UPDATE").WillReturnRows(tc.rows())
			if tc.reserve >= 0 {
				mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets").
					WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(tc.reserve))
			}
			mock.ExpectRollback()

			_, err := NewDrawService(d, fakePayouts{}).RecordDraw(context.Background(), 1, sampleWinning())
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecordDrawValidatesNumbers(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	wn := sampleWinning()
	wn.BackThree = []string{"45"}

	_, err := NewDrawService(d, fakePayouts{}).RecordDraw(context.Background(), 1, wn)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRoundRequiresDrawnRound(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectQuery("FROM rounds WHERE id = \\?").WillReturnRows(roundRows(1, "CLOSED", t0, nil))

	_, err := NewDrawService(d, fakePayouts{}).MatchRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRoundNotDrawn)
}

func TestMatchRoundUsesStoredNumbers(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectQuery("FROM rounds WHERE id = \\?").WillReturnRows(roundRows(1, "DRAWN", t0, drawnJSON))
	sold := sqlmock.NewRows(ticketCols)
	ticketRow(sold, 4, 1, "123457", "SOLD")
	ticketRow(sold, 5, 1, "999000", "SOLD")
	ticketRow(sold, 6, 1, "000056", "SOLD")
	mock.ExpectQuery("FROM tickets WHERE round_id = \\? AND status = \\?").WillReturnRows(sold)

	tiers, err := NewDrawService(d, fakePayouts{}).MatchRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, prize.TierNearby, tiers[4])
	assert.Equal(t, prize.TierFront3, tiers[5])
	assert.Equal(t, prize.TierTwo, tiers[6])
}

func TestMatchResultsAttachesPayouts(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	mock.ExpectQuery("FROM rounds WHERE id = \\?").WillReturnRows(roundRows(1, "DRAWN", t0, drawnJSON))
	mock.ExpectQuery("FROM prize_results WHERE round_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "round_id", "ticket_id", "number", "tier", "created_at"}).
			AddRow(1, 1, 1, "123456", "first", t0).
			AddRow(2, 1, 3, "777777", "none", t0))

	payouts := fakePayouts{prize.TierFirst: decimal.NewFromInt(6_000_000)}
	results, err := NewDrawService(d, payouts).MatchResults(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Payout.Equal(decimal.NewFromInt(6_000_000)))
	assert.True(t, results[1].Payout.IsZero())
}

func TestRecordDrawOutlivesShortTxTimeout(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	d.TxTimeout = 50 * time.Millisecond
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rounds WHERE id = \\? FOR UPDATE").WillReturnRows(roundRows(1, "CLOSED", t0.Add(-time.Hour), nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectExec("UPDATE rounds SET status = \\?, winning_numbers = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	sold := sqlmock.NewRows(ticketCols)
	ticketRow(sold, 1, 1, "123456", "SOLD")
	mock.ExpectQuery("FROM tickets WHERE round_id = \\? AND status = \\? ORDER BY id").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sold)
	mock.ExpectExec("INSERT INTO prize_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO outbox").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tiers, err := NewDrawService(d, fakePayouts{}).RecordDraw(context.Background(), 1, sampleWinning())
	require.NoError(t, err)
	assert.Equal(t, prize.TierFirst, tiers[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDrawHonoursBulkTxTimeout(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	d.BulkTxTimeout = 50 * time.Millisecond
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rounds WHERE id = \\? FOR UPDATE").
		WillDelayFor(time.Second).
		WillReturnRows(roundRows(1, "CLOSED", t0.Add(-time.Hour), nil))

	started := time.Now()
	_, err := NewDrawService(d, fakePayouts{}).RecordDraw(context.Background(), 1, sampleWinning())
	require.Error(t, err)
	assert.Less(t, time.Since(started), time.Second)
}
