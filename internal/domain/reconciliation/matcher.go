package reconciliation

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Candidate is a payment proposed for a bank transaction
type Candidate struct {
	Payment          Payment
	DateDistanceDays int
	AmountDifference decimal.Decimal
	// AbsoluteMatch is set when the amounts only agree after dropping the sign
	AbsoluteMatch bool
}

// Pair is a transaction/payment association chosen by auto-matching
type Pair struct {
	TransactionID uuid.UUID
	PaymentID     uuid.UUID
}

// AutoMatchPlan is the outcome of planning an auto-match run
type AutoMatchPlan struct {
	Pairs []Pair
	// Unmatched holds transactions with no candidate or an ambiguous tie
	Unmatched []uuid.UUID
	// Ambiguous is the subset of Unmatched left alone because of a tie
	Ambiguous []uuid.UUID
}

// Matcher proposes and validates transaction/payment matches
type Matcher struct {
	tolerance    decimal.Decimal
	absolutePass bool
	windowDays   int
}

// MatcherOption configures a Matcher
type MatcherOption func(*Matcher)

// WithAmountTolerance allows amounts to differ by at most tolerance.
// Negative values are ignored.
func WithAmountTolerance(tolerance decimal.Decimal) MatcherOption {
	return func(m *Matcher) {
		if !tolerance.IsNegative() {
			m.tolerance = tolerance
		}
	}
}

// WithAbsoluteAmountPass toggles the fallback pass comparing absolute amounts
func WithAbsoluteAmountPass(enabled bool) MatcherOption {
	return func(m *Matcher) {
		m.absolutePass = enabled
	}
}

// WithCandidateWindow drops candidates more than days away from the
// transaction date. Zero disables the window.
func WithCandidateWindow(days int) MatcherOption {
	return func(m *Matcher) {
		if days >= 0 {
			m.windowDays = days
		}
	}
}

// NewMatcher creates a Matcher. By default amounts must be exactly equal,
// the absolute-value pass is enabled and there is no date window.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		tolerance:    decimal.Zero,
		absolutePass: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tolerance returns the configured amount tolerance
func (m *Matcher) Tolerance() decimal.Decimal {
	return m.tolerance
}

// WindowDays returns the candidate date window, zero when unbounded
func (m *Matcher) WindowDays() int {
	return m.windowDays
}

// amountsMatch compares amounts under the primary rule, then, if enabled,
// the absolute-value rule.
func (m *Matcher) amountsMatch(txAmount, paymentAmount decimal.Decimal) (diff decimal.Decimal, absolute bool, ok bool) {
	diff = txAmount.Sub(paymentAmount).Abs()
	if diff.LessThanOrEqual(m.tolerance) {
		return diff, false, true
	}
	if !m.absolutePass {
		return diff, false, false
	}
	diff = txAmount.Abs().Sub(paymentAmount.Abs()).Abs()
	if diff.LessThanOrEqual(m.tolerance) {
		return diff, true, true
	}
	return diff, false, false
}

// FindCandidates returns the payments that could match tx, best first:
// closest payment date, then smallest amount difference, then lowest id.
// Payments matching on the signed amount win; the absolute-value pass is
// only consulted when the signed pass finds nothing.
func (m *Matcher) FindCandidates(tx *BankTransaction, payments []Payment) []Candidate {
	var primary, secondary []Candidate
	for i := range payments {
		p := payments[i]
		distance := daysBetween(tx.TransactionDate, p.PaymentDate)
		if m.windowDays > 0 && distance > m.windowDays {
			continue
		}
		diff, absolute, ok := m.amountsMatch(tx.Amount, p.Amount)
		if !ok {
			continue
		}
		c := Candidate{
			Payment:          p,
			DateDistanceDays: distance,
			AmountDifference: diff,
			AbsoluteMatch:    absolute,
		}
		if absolute {
			secondary = append(secondary, c)
		} else {
			primary = append(primary, c)
		}
	}

	candidates := primary
	if len(candidates) == 0 {
		candidates = secondary
	}
	sortCandidates(candidates)
	return candidates
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.DateDistanceDays != b.DateDistanceDays {
			return a.DateDistanceDays < b.DateDistanceDays
		}
		if cmp := a.AmountDifference.Cmp(b.AmountDifference); cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(a.Payment.ID[:], b.Payment.ID[:]) < 0
	})
}

// sameRank reports whether two candidates cannot be told apart
func sameRank(a, b Candidate) bool {
	return a.DateDistanceDays == b.DateDistanceDays && a.AmountDifference.Equal(b.AmountDifference)
}

// Match validates the pair and links tx to payment. The payment must not
// be matched elsewhere; that is enforced by the repository.
func (m *Matcher) Match(tx *BankTransaction, payment *Payment, at time.Time) error {
	if tx.IsMatched() {
		return ErrAlreadyMatched
	}
	if _, _, ok := m.amountsMatch(tx.Amount, payment.Amount); !ok {
		return ErrAmountMismatch
	}
	return tx.MatchTo(payment.ID, at)
}

// PlanAutoMatch walks the unmatched, non-ignored transactions by date then
// id and picks the top candidate for each, skipping ties. A payment is used
// at most once per plan.
func (m *Matcher) PlanAutoMatch(txs []BankTransaction, payments []Payment) AutoMatchPlan {
	pending := lo.Filter(txs, func(tx BankTransaction, _ int) bool {
		return !tx.IsMatched() && !tx.Ignored
	})
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})

	consumed := make(map[uuid.UUID]struct{})
	plan := AutoMatchPlan{}
	for i := range pending {
		tx := &pending[i]
		available := lo.Filter(payments, func(p Payment, _ int) bool {
			_, used := consumed[p.ID]
			return !used
		})
		candidates := m.FindCandidates(tx, available)
		if len(candidates) == 0 {
			plan.Unmatched = append(plan.Unmatched, tx.ID)
			continue
		}
		if len(candidates) > 1 && sameRank(candidates[0], candidates[1]) {
			plan.Unmatched = append(plan.Unmatched, tx.ID)
			plan.Ambiguous = append(plan.Ambiguous, tx.ID)
			continue
		}
		best := candidates[0].Payment.ID
		consumed[best] = struct{}{}
		plan.Pairs = append(plan.Pairs, Pair{TransactionID: tx.ID, PaymentID: best})
	}
	return plan
}
