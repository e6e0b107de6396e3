package reconciliation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTenant = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTx(t *testing.T, id string, amount string, date time.Time) BankTransaction {
	t.Helper()
	tx, err := NewBankTransaction(testTenant, decimal.RequireFromString(amount), date, "REF-"+id, "statement line")
	require.NoError(t, err)
	tx.ID = uuid.MustParse(id)
	return *tx
}

func newPayment(t *testing.T, id string, amount string, date time.Time) Payment {
	t.Helper()
	p, err := NewPayment(testTenant, decimal.RequireFromString(amount), date, "INV-"+id[len(id)-4:])
	require.NoError(t, err)
	p.ID = uuid.MustParse(id)
	return *p
}

const (
	tx1 = "aaaaaaaa-0000-0000-0000-000000000001"
	tx2 = "aaaaaaaa-0000-0000-0000-000000000002"
	tx3 = "aaaaaaaa-0000-0000-0000-000000000003"
	p1  = "bbbbbbbb-0000-0000-0000-000000000001"
	p2  = "bbbbbbbb-0000-0000-0000-000000000002"
	p3  = "bbbbbbbb-0000-0000-0000-000000000003"
)

func TestNewMatcher_Defaults(t *testing.T) {
	m := NewMatcher()
	assert.True(t, m.Tolerance().IsZero())
	assert.True(t, m.absolutePass)
	assert.Equal(t, 0, m.WindowDays())

	m = NewMatcher(WithAmountTolerance(decimal.RequireFromString("-1")), WithCandidateWindow(-2))
	assert.True(t, m.Tolerance().IsZero())
	assert.Equal(t, 0, m.WindowDays())
}

func TestMatcher_FindCandidates(t *testing.T) {
	m := NewMatcher()
	tx := newTx(t, tx1, "250.00", day(2024, 3, 10))

	t.Run("closest date ranks first", func(t *testing.T) {
		payments := []Payment{
			newPayment(t, p1, "250.00", day(2024, 3, 13)),
			newPayment(t, p2, "250.00", day(2024, 3, 9)),
		}
		candidates := m.FindCandidates(&tx, payments)
		require.Len(t, candidates, 2)
		assert.Equal(t, uuid.MustParse(p2), candidates[0].Payment.ID)
		assert.Equal(t, 1, candidates[0].DateDistanceDays)
		assert.Equal(t, uuid.MustParse(p1), candidates[1].Payment.ID)
		assert.Equal(t, 3, candidates[1].DateDistanceDays)
	})

	t.Run("equal distance ordered by payment id", func(t *testing.T) {
		payments := []Payment{
			newPayment(t, p3, "250.00", day(2024, 3, 11)),
			newPayment(t, p1, "250.00", day(2024, 3, 9)),
		}
		candidates := m.FindCandidates(&tx, payments)
		require.Len(t, candidates, 2)
		assert.Equal(t, uuid.MustParse(p1), candidates[0].Payment.ID)
		assert.Equal(t, uuid.MustParse(p3), candidates[1].Payment.ID)
	})

	t.Run("amount must be exact", func(t *testing.T) {
		payments := []Payment{newPayment(t, p1, "249.99", day(2024, 3, 10))}
		assert.Empty(t, m.FindCandidates(&tx, payments))
	})

	t.Run("absolute value pass only when signed pass is empty", func(t *testing.T) {
		debit := newTx(t, tx2, "-250.00", day(2024, 3, 10))
		payments := []Payment{newPayment(t, p1, "250.00", day(2024, 3, 10))}

		candidates := m.FindCandidates(&debit, payments)
		require.Len(t, candidates, 1)
		assert.True(t, candidates[0].AbsoluteMatch)

		strict := NewMatcher(WithAbsoluteAmountPass(false))
		assert.Empty(t, strict.FindCandidates(&debit, payments))
	})

	t.Run("tolerance admits close amounts", func(t *testing.T) {
		lenient := NewMatcher(WithAmountTolerance(decimal.RequireFromString("0.05")))
		payments := []Payment{
			newPayment(t, p1, "249.97", day(2024, 3, 10)),
			newPayment(t, p2, "250.00", day(2024, 3, 10)),
		}
		candidates := lenient.FindCandidates(&tx, payments)
		require.Len(t, candidates, 2)
		assert.Equal(t, uuid.MustParse(p2), candidates[0].Payment.ID, "smaller difference wins on the same date")
	})

	t.Run("window excludes distant payments", func(t *testing.T) {
		windowed := NewMatcher(WithCandidateWindow(7))
		payments := []Payment{
			newPayment(t, p1, "250.00", day(2024, 3, 25)),
			newPayment(t, p2, "250.00", day(2024, 3, 3)),
		}
		candidates := windowed.FindCandidates(&tx, payments)
		require.Len(t, candidates, 1)
		assert.Equal(t, uuid.MustParse(p2), candidates[0].Payment.ID)
	})
}

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher()
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	t.Run("amount mismatch is rejected without mutation", func(t *testing.T) {
		tx := newTx(t, tx1, "1000.00", day(2024, 1, 10))
		p := newPayment(t, p1, "999.99", day(2024, 1, 10))

		err := m.Match(&tx, &p, at)
		assert.ErrorIs(t, err, ErrAmountMismatch)
		assert.Nil(t, tx.MatchedPaymentID)
		assert.Nil(t, tx.MatchedAt)
	})

	t.Run("already matched transaction is rejected", func(t *testing.T) {
		tx := newTx(t, tx1, "100.00", day(2024, 1, 10))
		first := newPayment(t, p1, "100.00", day(2024, 1, 10))
		second := newPayment(t, p2, "100.00", day(2024, 1, 10))

		require.NoError(t, m.Match(&tx, &first, at))
		err := m.Match(&tx, &second, at)
		assert.ErrorIs(t, err, ErrAlreadyMatched)
		assert.Equal(t, first.ID, *tx.MatchedPaymentID)
	})

	t.Run("match unmatch match cycle", func(t *testing.T) {
		tx := newTx(t, tx1, "100.00", day(2024, 1, 10))
		p := newPayment(t, p1, "100.00", day(2024, 1, 11))

		require.NoError(t, m.Match(&tx, &p, at))
		assert.True(t, tx.Unmatch())
		assert.False(t, tx.Unmatch(), "second unmatch is a no-op")
		require.NoError(t, m.Match(&tx, &p, at))
		require.NotNil(t, tx.MatchedPaymentID)
		assert.Equal(t, p.ID, *tx.MatchedPaymentID)
		assert.Equal(t, at, *tx.MatchedAt)
	})
}

func TestMatcher_PlanAutoMatch(t *testing.T) {
	m := NewMatcher()

	t.Run("equidistant tie is left unmatched", func(t *testing.T) {
		txs := []BankTransaction{newTx(t, tx1, "5000", day(2024, 1, 10))}
		payments := []Payment{
			newPayment(t, p1, "5000", day(2024, 1, 9)),
			newPayment(t, p2, "5000", day(2024, 1, 11)),
		}

		plan := m.PlanAutoMatch(txs, payments)
		assert.Empty(t, plan.Pairs)
		assert.Equal(t, []uuid.UUID{uuid.MustParse(tx1)}, plan.Unmatched)
		assert.Equal(t, []uuid.UUID{uuid.MustParse(tx1)}, plan.Ambiguous)
	})

	t.Run("payments are consumed in date order", func(t *testing.T) {
		txs := []BankTransaction{
			newTx(t, tx2, "300", day(2024, 2, 6)),
			newTx(t, tx1, "300", day(2024, 2, 5)),
		}
		payments := []Payment{newPayment(t, p1, "300", day(2024, 2, 5))}

		plan := m.PlanAutoMatch(txs, payments)
		require.Len(t, plan.Pairs, 1)
		assert.Equal(t, Pair{TransactionID: uuid.MustParse(tx1), PaymentID: uuid.MustParse(p1)}, plan.Pairs[0])
		assert.Equal(t, []uuid.UUID{uuid.MustParse(tx2)}, plan.Unmatched)
		assert.Empty(t, plan.Ambiguous)
	})

	t.Run("consumed payment breaks a later tie", func(t *testing.T) {
		txs := []BankTransaction{
			newTx(t, tx1, "80", day(2024, 4, 1)),
			newTx(t, tx2, "80", day(2024, 4, 3)),
		}
		payments := []Payment{
			newPayment(t, p1, "80", day(2024, 4, 1)),
			newPayment(t, p2, "80", day(2024, 4, 5)),
		}

		plan := m.PlanAutoMatch(txs, payments)
		assert.Equal(t, []Pair{
			{TransactionID: uuid.MustParse(tx1), PaymentID: uuid.MustParse(p1)},
			{TransactionID: uuid.MustParse(tx2), PaymentID: uuid.MustParse(p2)},
		}, plan.Pairs)
		assert.Empty(t, plan.Unmatched)
	})

	t.Run("matched and ignored transactions are skipped", func(t *testing.T) {
		matched := newTx(t, tx1, "10", day(2024, 5, 1))
		require.NoError(t, matched.MatchTo(uuid.MustParse(p3), time.Now()))
		ignored := newTx(t, tx2, "10", day(2024, 5, 1))
		ignored.SetIgnored(true)
		open := newTx(t, tx3, "10", day(2024, 5, 1))

		plan := m.PlanAutoMatch([]BankTransaction{matched, ignored, open}, []Payment{newPayment(t, p1, "10", day(2024, 5, 2))})
		assert.Equal(t, []Pair{{TransactionID: uuid.MustParse(tx3), PaymentID: uuid.MustParse(p1)}}, plan.Pairs)
		assert.Empty(t, plan.Unmatched)
	})
}
