package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testTenantID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testNow      = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
)

func jan(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	ledger  *memoryLedger
	runner  *countingRunner
	archive *storage.MemoryStatementArchive
	svc     *Service
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  newMemoryLedger(),
		runner:  &countingRunner{},
		archive: storage.NewMemoryStatementArchive(),
	}
	base := []ServiceOption{
		WithClock(func() time.Time { return testNow }),
		WithTransactionRunner(f.runner),
		WithStatementArchive(f.archive),
	}
	f.svc = NewService(
		memoryTxRepo{f.ledger},
		memoryPaymentRepo{f.ledger},
		memorySessionRepo{f.ledger},
		append(base, opts...)...,
	)
	return f
}

func (f *fixture) addTx(t *testing.T, amount string, date time.Time, ref string) reconciliation.BankTransaction {
	t.Helper()
	tx, err := reconciliation.NewBankTransaction(testTenantID, decimal.RequireFromString(amount), date, ref, "")
	require.NoError(t, err)
	require.NoError(t, memoryTxRepo{f.ledger}.CreateBatch(context.Background(), []*reconciliation.BankTransaction{tx}))
	return *tx
}

func (f *fixture) addPayment(t *testing.T, amount string, date time.Time) reconciliation.Payment {
	t.Helper()
	p, err := reconciliation.NewPayment(testTenantID, decimal.RequireFromString(amount), date, "INV-"+amount)
	require.NoError(t, err)
	require.NoError(t, memoryPaymentRepo{f.ledger}.Save(context.Background(), p))
	return *p
}

func (f *fixture) openSession(t *testing.T, start, end time.Time, opening, closing string) *SessionResponse {
	t.Helper()
	resp, err := f.svc.CreateSession(context.Background(), testTenantID, CreateSessionRequest{
		StartDate:      start,
		EndDate:        end,
		OpeningBalance: decimal.RequireFromString(opening),
		ClosingBalance: decimal.RequireFromString(closing),
	})
	require.NoError(t, err)
	return resp
}

// =============================================================================
// Match / unmatch
// =============================================================================

func TestMatch_Success(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "1000.00", jan(10), "REF-1")
	p := f.addPayment(t, "1000.00", jan(9))

	result, err := f.svc.Match(context.Background(), testTenantID, tx.ID, p.ID)
	require.NoError(t, err)

	assert.Equal(t, &ActionResult{Success: true, Message: "Transaction matched", MatchedCount: 1}, result)
	stored := f.ledger.tx(tx.ID)
	require.NotNil(t, stored.MatchedPaymentID)
	assert.Equal(t, p.ID, *stored.MatchedPaymentID)
	assert.Equal(t, testNow, *stored.MatchedAt)
}

func TestMatch_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "1000.00", jan(10), "REF-1")
	p := f.addPayment(t, "999.99", jan(10))

	_, err := f.svc.Match(context.Background(), testTenantID, tx.ID, p.ID)
	assert.ErrorIs(t, err, reconciliation.ErrAmountMismatch)
	assert.Nil(t, f.ledger.tx(tx.ID).MatchedPaymentID)
}

func TestMatch_AlreadyMatched(t *testing.T) {
	f := newFixture(t)
	first := f.addTx(t, "50.00", jan(10), "A")
	second := f.addTx(t, "50.00", jan(10), "B")
	p := f.addPayment(t, "50.00", jan(10))
	other := f.addPayment(t, "50.00", jan(11))

	_, err := f.svc.Match(context.Background(), testTenantID, first.ID, p.ID)
	require.NoError(t, err)

	t.Run("transaction already has a payment", func(t *testing.T) {
		_, err := f.svc.Match(context.Background(), testTenantID, first.ID, other.ID)
		assert.ErrorIs(t, err, reconciliation.ErrAlreadyMatched)
	})

	t.Run("payment held by another transaction", func(t *testing.T) {
		_, err := f.svc.Match(context.Background(), testTenantID, second.ID, p.ID)
		assert.ErrorIs(t, err, reconciliation.ErrAlreadyMatched)
		assert.Nil(t, f.ledger.tx(second.ID).MatchedPaymentID)
	})
}

func TestMatch_NotFound(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "10.00", jan(10), "A")
	p := f.addPayment(t, "10.00", jan(10))

	_, err := f.svc.Match(context.Background(), testTenantID, uuid.New(), p.ID)
	assert.ErrorIs(t, err, reconciliation.ErrTransactionNotFound)

	_, err = f.svc.Match(context.Background(), testTenantID, tx.ID, uuid.New())
	assert.ErrorIs(t, err, reconciliation.ErrPaymentNotFound)

	_, err = f.svc.Match(context.Background(), uuid.New(), tx.ID, p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMatch_AbsoluteAmountPass(t *testing.T) {
	f := newFixture(t)
	refund := f.addTx(t, "-75.00", jan(10), "RF")
	p := f.addPayment(t, "75.00", jan(10))

	_, err := f.svc.Match(context.Background(), testTenantID, refund.ID, p.ID)
	require.NoError(t, err)

	strict := newFixture(t, WithMatcher(reconciliation.NewMatcher(reconciliation.WithAbsoluteAmountPass(false))))
	refund = strict.addTx(t, "-75.00", jan(10), "RF")
	p = strict.addPayment(t, "75.00", jan(10))
	_, err = strict.svc.Match(context.Background(), testTenantID, refund.ID, p.ID)
	assert.ErrorIs(t, err, reconciliation.ErrAmountMismatch)
}

func TestMatchUnmatchMatchCycle(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "420.00", jan(15), "CYCLE")
	p := f.addPayment(t, "420.00", jan(15))
	ctx := context.Background()

	_, err := f.svc.Match(ctx, testTenantID, tx.ID, p.ID)
	require.NoError(t, err)

	result, err := f.svc.Unmatch(ctx, testTenantID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "Transaction unmatched", result.Message)
	assert.Nil(t, f.ledger.tx(tx.ID).MatchedPaymentID)

	_, err = f.svc.Match(ctx, testTenantID, tx.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, *f.ledger.tx(tx.ID).MatchedPaymentID)
}

func TestUnmatch_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "10.00", jan(10), "A")

	for i := 0; i < 2; i++ {
		result, err := f.svc.Unmatch(context.Background(), testTenantID, tx.ID)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "Transaction was not matched", result.Message)
	}

	_, err := f.svc.Unmatch(context.Background(), testTenantID, uuid.New())
	assert.ErrorIs(t, err, reconciliation.ErrTransactionNotFound)
}

func TestSetIgnored(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "-3.50", jan(10), "FEE")

	resp, err := f.svc.SetIgnored(context.Background(), testTenantID, tx.ID, true)
	require.NoError(t, err)
	assert.True(t, resp.Ignored)
	assert.Equal(t, "ignored", resp.Status)
	assert.True(t, f.ledger.tx(tx.ID).Ignored)

	resp, err = f.svc.SetIgnored(context.Background(), testTenantID, tx.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "unmatched", resp.Status)
}

// =============================================================================
// Suggestions and auto-match
// =============================================================================

func TestSuggestions_ClosestDateFirst(t *testing.T) {
	f := newFixture(t)
	tx := f.addTx(t, "200.00", jan(10), "S")
	far := f.addPayment(t, "200.00", jan(13))
	near := f.addPayment(t, "200.00", jan(11))
	f.addPayment(t, "201.00", jan(10))

	candidates, err := f.svc.Suggestions(context.Background(), testTenantID, tx.ID)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, near.ID, candidates[0].Payment.ID)
	assert.Equal(t, 1, candidates[0].DateDistanceDays)
	assert.Equal(t, far.ID, candidates[1].Payment.ID)
	assert.Equal(t, 3, candidates[1].DateDistanceDays)
}

func TestSuggestions_RespectsWindowAndSkipsMatchedPayments(t *testing.T) {
	f := newFixture(t, WithMatcher(reconciliation.NewMatcher(reconciliation.WithCandidateWindow(5))))
	tx := f.addTx(t, "80.00", jan(10), "S")
	held := f.addPayment(t, "80.00", jan(10))
	f.addPayment(t, "80.00", jan(20))
	other := f.addTx(t, "80.00", jan(9), "T")
	_, err := f.svc.Match(context.Background(), testTenantID, other.ID, held.ID)
	require.NoError(t, err)

	candidates, err := f.svc.Suggestions(context.Background(), testTenantID, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestAutoMatch_MatchesUniqueCandidates(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")

	a := f.addTx(t, "100.00", jan(5), "A")
	b := f.addTx(t, "250.00", jan(6), "B")
	f.addTx(t, "999.00", jan(7), "none")
	ignored := f.addTx(t, "100.00", jan(8), "I")
	_, err := f.svc.SetIgnored(context.Background(), testTenantID, ignored.ID, true)
	require.NoError(t, err)

	pa := f.addPayment(t, "100.00", jan(4))
	pb := f.addPayment(t, "250.00", jan(6))

	result, err := f.svc.AutoMatch(context.Background(), testTenantID, session.ID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.MatchedCount)
	assert.Equal(t, 1, result.UnmatchedCount)
	assert.Equal(t, pa.ID, *f.ledger.tx(a.ID).MatchedPaymentID)
	assert.Equal(t, pb.ID, *f.ledger.tx(b.ID).MatchedPaymentID)
	assert.Nil(t, f.ledger.tx(ignored.ID).MatchedPaymentID)
}

func TestAutoMatch_LeavesTiesUnmatched(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")
	tx := f.addTx(t, "100.00", jan(10), "TIE")
	f.addPayment(t, "100.00", jan(9))
	f.addPayment(t, "100.00", jan(11))

	result, err := f.svc.AutoMatch(context.Background(), testTenantID, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, result.MatchedCount)
	assert.Equal(t, 1, result.UnmatchedCount)
	assert.Nil(t, f.ledger.tx(tx.ID).MatchedPaymentID)
}

func TestAutoMatch_CountsFailuresAsUnmatched(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")
	ok := f.addTx(t, "10.00", jan(3), "OK")
	broken := f.addTx(t, "20.00", jan(4), "BROKEN")
	f.addPayment(t, "10.00", jan(3))
	f.addPayment(t, "20.00", jan(4))
	f.ledger.markErrs[broken.ID] = errors.New("connection reset")

	result, err := f.svc.AutoMatch(context.Background(), testTenantID, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.MatchedCount)
	assert.Equal(t, 1, result.UnmatchedCount)
	assert.NotNil(t, f.ledger.tx(ok.ID).MatchedPaymentID)
}

func TestAutoMatch_RunsInOneTransaction(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")
	f.addTx(t, "10.00", jan(3), "A")
	f.addTx(t, "20.00", jan(4), "B")
	f.addPayment(t, "10.00", jan(3))
	f.addPayment(t, "20.00", jan(4))

	result, err := f.svc.AutoMatch(context.Background(), testTenantID, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.MatchedCount)
	assert.Equal(t, 1, f.runner.calls)
	assert.Equal(t, 1, f.ledger.sessionLocks)
}

func TestAutoMatch_CompletedSession(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")
	_, err := f.svc.CompleteSession(context.Background(), testTenantID, session.ID)
	require.NoError(t, err)

	_, err = f.svc.AutoMatch(context.Background(), testTenantID, session.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.svc.AutoMatch(context.Background(), testTenantID, uuid.New())
	assert.ErrorIs(t, err, reconciliation.ErrSessionNotFound)
}

// =============================================================================
// Sessions
// =============================================================================

func TestGetSession_Summary(t *testing.T) {
	f := newFixture(t)
	matched := f.addTx(t, "700.00", jan(3), "IN")
	fee := f.addTx(t, "-200.00", jan(20), "OUT")
	f.addTx(t, "50.00", jan(25), "OPEN")
	f.addTx(t, "5.00", time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), "OUTSIDE")
	p := f.addPayment(t, "700.00", jan(3))
	_, err := f.svc.Match(context.Background(), testTenantID, matched.ID, p.ID)
	require.NoError(t, err)
	_, err = f.svc.SetIgnored(context.Background(), testTenantID, fee.ID, true)
	require.NoError(t, err)

	created := f.openSession(t, jan(1), jan(31), "1000.00", "1550.00")
	resp, err := f.svc.GetSession(context.Background(), testTenantID, created.ID)
	require.NoError(t, err)

	require.NotNil(t, resp.Summary)
	assert.Equal(t, "2024-01-01", resp.StartDate)
	assert.Equal(t, "open", resp.Status)
	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Matched)
	assert.Equal(t, 1, resp.Summary.Ignored)
	assert.Equal(t, 1, resp.Summary.Unmatched)
	assert.True(t, decimal.RequireFromString("550").Equal(resp.Summary.StatementTotal))
	assert.True(t, resp.Summary.Difference.IsZero())
}

func TestCreateSession_InvalidRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateSession(context.Background(), testTenantID, CreateSessionRequest{StartDate: jan(10), EndDate: jan(1)})
	assert.ErrorIs(t, err, reconciliation.ErrInvalidDateRange)
}

func TestCompleteSession(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")
	tx := f.addTx(t, "12.00", jan(12), "X")
	ctx := context.Background()

	_, err := f.svc.CompleteSession(ctx, testTenantID, session.ID)
	assert.ErrorIs(t, err, reconciliation.ErrSessionIncomplete)

	_, err = f.svc.SetIgnored(ctx, testTenantID, tx.ID, true)
	require.NoError(t, err)

	resp, err := f.svc.CompleteSession(ctx, testTenantID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.CompletedAt)
	assert.Equal(t, testNow, *resp.CompletedAt)
	assert.Equal(t, 2, f.runner.calls)
	assert.Equal(t, 2, f.ledger.sessionLocks)
	assert.Equal(t, 2, f.ledger.rangeLocks, "the completeness check reads locked lines")

	_, err = f.svc.CompleteSession(ctx, testTenantID, session.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestListSessionTransactions(t *testing.T) {
	f := newFixture(t)
	session := f.openSession(t, jan(1), jan(31), "0", "0")
	later := f.addTx(t, "2.00", jan(20), "B")
	earlier := f.addTx(t, "1.00", jan(2), "A")
	_, err := f.svc.SetIgnored(context.Background(), testTenantID, later.ID, true)
	require.NoError(t, err)

	all, err := f.svc.ListSessionTransactions(context.Background(), testTenantID, session.ID, reconciliation.TransactionStatusAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, earlier.ID, all[0].ID)

	ignored, err := f.svc.ListSessionTransactions(context.Background(), testTenantID, session.ID, reconciliation.TransactionStatusIgnored)
	require.NoError(t, err)
	require.Len(t, ignored, 1)
	assert.Equal(t, later.ID, ignored[0].ID)

	_, err = f.svc.ListSessionTransactions(context.Background(), testTenantID, session.ID, "pending")
	assert.Error(t, err)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	f.openSession(t, jan(1), jan(15), "0", "0")
	f.openSession(t, jan(16), jan(31), "0", "0")

	sessions, total, err := f.svc.ListSessions(context.Background(), testTenantID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 2)
	assert.Nil(t, sessions[0].Summary)
}

// =============================================================================
// Statement import
// =============================================================================

const sampleCSV = "date,amount,reference,description\n" +
	"2024-01-10,1000.00,INV-1001,Acme payment\n" +
	"2024-01-11,-250.50,CHK-77,Office rent\n" +
	"2024-01-12,abc,X,broken\n"

func TestImportStatement_CSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.ImportStatement(ctx, testTenantID, ImportStatementRequest{Filename: "january.csv", Data: []byte(sampleCSV)})
	require.NoError(t, err)

	assert.Equal(t, "csv", result.Format)
	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Duplicates)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "amount", result.Errors[0].Column)

	assert.Equal(t, storage.StatementKey(testTenantID, result.BatchID, "january.csv"), result.ArchiveKey)
	archived, err := f.archive.Get(ctx, result.ArchiveKey)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(archived))

	txs, err := memoryTxRepo{f.ledger}.FindInRange(ctx, testTenantID, jan(1), jan(31), reconciliation.TransactionStatusAll)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "INV-1001", txs[0].ReferenceNumber)
	assert.Equal(t, result.BatchID, *txs[0].ImportBatchID)
	assert.True(t, decimal.RequireFromString("-250.50").Equal(txs[1].Amount))
}

func TestImportStatement_SkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := ImportStatementRequest{Filename: "january.csv", Data: []byte(sampleCSV)}

	_, err := f.svc.ImportStatement(ctx, testTenantID, req)
	require.NoError(t, err)
	again, err := f.svc.ImportStatement(ctx, testTenantID, req)
	require.NoError(t, err)

	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, again.Duplicates)
	assert.Empty(t, again.ArchiveKey)
	assert.Equal(t, 1, f.archive.Len())
}

func TestImportStatement_FileErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  ImportStatementRequest
		code string
	}{
		{"unknown format", ImportStatementRequest{Filename: "statement.pdf", Data: []byte("%PDF-1.7")}, "UNSUPPORTED_FORMAT"},
		{"forced unknown format", ImportStatementRequest{Filename: "a.csv", Data: []byte("x"), Format: "qif"}, "UNSUPPORTED_FORMAT"},
		{"empty file", ImportStatementRequest{Filename: "empty.csv", Data: []byte("  \n")}, "VALIDATION_ERROR"},
		{"missing columns", ImportStatementRequest{Filename: "bad.csv", Data: []byte("reference,description\nA,B\n")}, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ImportStatement(context.Background(), testTenantID, tt.req)
			de, ok := shared.AsDomainError(err)
			require.True(t, ok, "expected domain error, got %v", err)
			assert.Equal(t, tt.code, de.Code)
		})
	}
	assert.Equal(t, 0, f.archive.Len())
}

type MockStatementArchive struct {
	mock.Mock
}

func (m *MockStatementArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func TestImportStatement_ArchiveFailureKeepsImport(t *testing.T) {
	archive := new(MockStatementArchive)
	archive.On("Put", mock.Anything, mock.Anything, mock.Anything, "text/csv").Return(errors.New("bucket unavailable"))
	f := newFixture(t, WithStatementArchive(archive))

	result, err := f.svc.ImportStatement(context.Background(), testTenantID, ImportStatementRequest{Filename: "january.csv", Data: []byte(sampleCSV)})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.ArchiveKey)
	archive.AssertExpectations(t)
}

// =============================================================================
// Payments
// =============================================================================

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.RecordPayment(context.Background(), testTenantID, RecordPaymentRequest{
		Amount:           decimal.RequireFromString("150.00"),
		PaymentDate:      time.Date(2024, 1, 5, 15, 30, 0, 0, time.UTC),
		InvoiceReference: "INV-2024-0001",
		RefundedAmount:   decimal.RequireFromString("20.00"),
		Method:           "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", resp.PaymentDate)
	assert.True(t, decimal.RequireFromString("130").Equal(resp.NetAmount))

	_, err = f.svc.RecordPayment(context.Background(), testTenantID, RecordPaymentRequest{Amount: decimal.Zero, PaymentDate: jan(1)})
	assert.ErrorIs(t, err, reconciliation.ErrInvalidPayment)

	_, err = f.svc.RecordPayment(context.Background(), testTenantID, RecordPaymentRequest{
		Amount:         decimal.RequireFromString("10"),
		PaymentDate:    jan(1),
		RefundedAmount: decimal.RequireFromString("11"),
	})
	assert.ErrorIs(t, err, reconciliation.ErrInvalidPayment)

	list, total, err := f.svc.ListPayments(context.Background(), testTenantID, reconciliation.PaymentFilter{Filter: shared.DefaultFilter()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, resp.ID, list[0].ID)
}
