package verify

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microgate-project/microgate/internal/domain"
	"github.com/microgate-project/microgate/internal/ledger"
	"github.com/microgate-project/microgate/internal/store"
)

const (
	testWallet = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testPayer  = "0x1111111111111111111111111111111111111111"
	testHash   = "0x" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type fakeLedger struct {
	facts       *domain.TransactionFacts
	factsErr    error
	height      uint64
	heightErr   error
	factsCalls  atomic.Int32
	heightCalls atomic.Int32
}

func (f *fakeLedger) TransactionFacts(_ context.Context, _ string) (*domain.TransactionFacts, error) {
	f.factsCalls.Add(1)
	if f.factsErr != nil {
		return nil, f.factsErr
	}
	return f.facts, nil
}

func (f *fakeLedger) ChainHeight(_ context.Context) (uint64, error) {
	f.heightCalls.Add(1)
	return f.height, f.heightErr
}

type countingStore struct {
	store.ReplayStore
	lookups atomic.Int32
}

func (c *countingStore) Lookup(ctx context.Context, txHash string) (*domain.ReplayRecord, error) {
	c.lookups.Add(1)
	return c.ReplayStore.Lookup(ctx, txHash)
}

func goodFacts() *domain.TransactionFacts {
	return &domain.TransactionFacts{
		Hash:        testHash,
		Succeeded:   true,
		From:        testPayer,
		To:          testWallet,
		AmountWei:   big.NewInt(100000000000000),
		BlockNumber: 1000,
		ChainID:     big.NewInt(84532),
	}
}

func testParams() Params {
	return Params{
		PayTo:            testWallet,
		MinAmountWei:     big.NewInt(100000000000000),
		ChainID:          84532,
		MinConfirmations: 1,
	}
}

func newTestVerifier(l *fakeLedger, s store.ReplayStore) *Verifier {
	return New(testParams(), l, s, nil)
}

func TestVerifyAcceptsValidPayment(t *testing.T) {
	l := &fakeLedger{facts: goodFacts(), height: 1001}
	v := newTestVerifier(l, store.NewMemoryStore())

	verdict, err := v.Verify(context.Background(), testHash)
	require.NoError(t, err)
	require.True(t, verdict.Accepted)
	assert.False(t, verdict.Cached)
	assert.Equal(t, testPayer, verdict.Payer)
	assert.Equal(t, "100000000000000", verdict.AmountWei.String())
	assert.Equal(t, uint64(1), verdict.Confirmations)
	assert.Equal(t, uint64(1000), verdict.BlockNumber)
}

func TestVerifyMalformedReferenceShortCircuits(t *testing.T) {
	cases := []struct {
		name string
		ref  string
	}{
		{"empty", ""},
		{"no prefix", strings.Repeat("a", 64)},
		{"too short", "0x" + strings.Repeat("a", 63)},
		{"too long", "0x" + strings.Repeat("a", 65)},
		{"non hex", "0x" + strings.Repeat("g", 64)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := &fakeLedger{facts: goodFacts(), height: 1001}
			s := &countingStore{ReplayStore: store.NewMemoryStore()}
			v := newTestVerifier(l, s)

			verdict, err := v.Verify(context.Background(), tc.ref)
			require.NoError(t, err)
			require.False(t, verdict.Accepted)
			assert.Equal(t, domain.ReasonInvalidReferenceFormat, verdict.Reason)

			// Malformed input must never reach the store or the chain.
			assert.Zero(t, s.lookups.Load())
			assert.Zero(t, l.factsCalls.Load())
			assert.Zero(t, l.heightCalls.Load())
		})
	}
}

func TestVerifyAmountBoundary(t *testing.T) {
	t.Run("exact minimum accepts", func(t *testing.T) {
		l := &fakeLedger{facts: goodFacts(), height: 1001}
		v := newTestVerifier(l, store.NewMemoryStore())

		verdict, err := v.Verify(context.Background(), testHash)
		require.NoError(t, err)
		assert.True(t, verdict.Accepted)
	})

	t.Run("one wei short rejects", func(t *testing.T) {
		facts := goodFacts()
		facts.AmountWei = big.NewInt(99999999999999)
		l := &fakeLedger{facts: facts, height: 1001}
		v := newTestVerifier(l, store.NewMemoryStore())

		verdict, err := v.Verify(context.Background(), testHash)
		require.NoError(t, err)
		require.False(t, verdict.Accepted)
		assert.Equal(t, domain.ReasonInsufficientAmount, verdict.Reason)
	})
}

func TestVerifyConfirmationBoundary(t *testing.T) {
	t.Run("exact minimum accepts", func(t *testing.T) {
		l := &fakeLedger{facts: goodFacts(), height: 1001}
		v := newTestVerifier(l, store.NewMemoryStore())

		verdict, err := v.Verify(context.Background(), testHash)
		require.NoError(t, err)
		require.True(t, verdict.Accepted)
		assert.Equal(t, uint64(1), verdict.Confirmations)
	})

	t.Run("one short rejects then later accepts", func(t *testing.T) {
		l := &fakeLedger{facts: goodFacts(), height: 1000}
		s := store.NewMemoryStore()
		v := newTestVerifier(l, s)

		verdict, err := v.Verify(context.Background(), testHash)
		require.NoError(t, err)
		require.False(t, verdict.Accepted)
		assert.Equal(t, domain.ReasonInsufficientConfirmations, verdict.Reason)

		// Not sticky: the same reference succeeds once the chain advances.
		l.height = 1001
		verdict, err = v.Verify(context.Background(), testHash)
		require.NoError(t, err)
		assert.True(t, verdict.Accepted)
	})
}

func TestVerifyPermanentRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.TransactionFacts)
		reason domain.RejectionReason
	}{
		{"reverted transaction", func(f *domain.TransactionFacts) { f.Succeeded = false }, domain.ReasonTransactionFailed},
		{"wrong recipient", func(f *domain.TransactionFacts) { f.To = testPayer }, domain.ReasonWrongRecipient},
		{"wrong chain", func(f *domain.TransactionFacts) { f.ChainID = big.NewInt(1) }, domain.ReasonWrongChain},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts := goodFacts()
			tc.mutate(facts)
			l := &fakeLedger{facts: facts, height: 1001}
			v := newTestVerifier(l, store.NewMemoryStore())

			verdict, err := v.Verify(context.Background(), testHash)
			require.NoError(t, err)
			require.False(t, verdict.Accepted)
			assert.Equal(t, tc.reason, verdict.Reason)
			assert.True(t, verdict.Reason.Sticky())
		})
	}
}

func TestVerifyRecipientCompareIsCaseInsensitive(t *testing.T) {
	facts := goodFacts()
	facts.To = strings.ToUpper(strings.TrimPrefix(testWallet, "0x"))
	facts.To = "0x" + facts.To
	l := &fakeLedger{facts: facts, height: 1001}
	v := newTestVerifier(l, store.NewMemoryStore())

	verdict, err := v.Verify(context.Background(), testHash)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)
}

func TestVerifyUnknownTransactionIsRetryable(t *testing.T) {
	l := &fakeLedger{factsErr: ledger.ErrTxNotFound}
	v := newTestVerifier(l, store.NewMemoryStore())

	verdict, err := v.Verify(context.Background(), testHash)
	require.NoError(t, err)
	require.False(t, verdict.Accepted)
	assert.Equal(t, domain.ReasonLedgerLookupFailed, verdict.Reason)
	assert.False(t, verdict.Reason.Sticky())

	// Once the transaction lands, the same reference verifies cleanly.
	l.factsErr = nil
	l.facts = goodFacts()
	l.height = 1001
	verdict, err = v.Verify(context.Background(), testHash)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)
}

func TestVerifyFailsClosedOnLedgerError(t *testing.T) {
	l := &fakeLedger{factsErr: errors.New("rpc: connection refused")}
	v := newTestVerifier(l, store.NewMemoryStore())

	verdict, err := v.Verify(context.Background(), testHash)
	require.Error(t, err)
	assert.Nil(t, verdict)
}

func TestVerifyFailsClosedOnHeightError(t *testing.T) {
	l := &fakeLedger{facts: goodFacts(), heightErr: errors.New("rpc: timeout")}
	v := newTestVerifier(l, store.NewMemoryStore())

	verdict, err := v.Verify(context.Background(), testHash)
	require.Error(t, err)
	assert.Nil(t, verdict)
}

func TestVerifyReplaysCachedAcceptance(t *testing.T) {
	payload := json.RawMessage(`{"secret":"cached"}`)
	s := store.NewMemoryStore()
	created, err := s.InsertIfAbsent(context.Background(), &domain.ReplayRecord{
		TxHash:         testHash,
		Status:         domain.StatusAccepted,
		PayerAddress:   testPayer,
		AmountWei:      "100000000000000",
		ChainID:        84532,
		Confirmations:  3,
		BlockNumber:    1000,
		Endpoint:       "/api/premium-data",
		CachedResponse: payload,
	})
	require.NoError(t, err)
	require.True(t, created)

	l := &fakeLedger{facts: goodFacts(), height: 1001}
	v := newTestVerifier(l, s)

	verdict, err := v.Verify(context.Background(), testHash)
	require.NoError(t, err)
	require.True(t, verdict.Accepted)
	assert.True(t, verdict.Cached)
	assert.Equal(t, testPayer, verdict.Payer)
	assert.JSONEq(t, string(payload), string(verdict.CachedResponse))

	// The replayed verdict must cost zero ledger calls.
	assert.Zero(t, l.factsCalls.Load())
	assert.Zero(t, l.heightCalls.Load())
}

func TestVerifyHashNormalization(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := s.InsertIfAbsent(context.Background(), &domain.ReplayRecord{
		TxHash:    testHash,
		Status:    domain.StatusAccepted,
		AmountWei: "100000000000000",
	})
	require.NoError(t, err)

	l := &fakeLedger{}
	v := newTestVerifier(l, s)

	// Same hash with uppercase hex digits must hit the same record.
	verdict, err := v.Verify(context.Background(), strings.ToUpper(testHash[2:]))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonInvalidReferenceFormat, verdict.Reason)

	verdict, err = v.Verify(context.Background(), "0x"+strings.ToUpper(testHash[2:]))
	require.NoError(t, err)
	require.True(t, verdict.Accepted)
	assert.True(t, verdict.Cached)
}

func TestVerifyStickyRejectionBecomesReplayAttack(t *testing.T) {
	firstSeen := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore()
	_, err := s.InsertIfAbsent(context.Background(), &domain.ReplayRecord{
		TxHash:    testHash,
		Status:    domain.StatusRejected,
		Reason:    domain.ReasonWrongRecipient,
		ChainID:   84532,
		CreatedAt: firstSeen,
	})
	require.NoError(t, err)

	l := &fakeLedger{facts: goodFacts(), height: 1001}
	v := newTestVerifier(l, s)

	verdict, err := v.Verify(context.Background(), testHash)
	require.NoError(t, err)
	require.False(t, verdict.Accepted)
	assert.Equal(t, domain.ReasonReplayAttack, verdict.Reason)
	assert.Equal(t, firstSeen, verdict.FirstSeen)
	assert.Contains(t, verdict.Detail, "wrong_recipient")
	assert.Zero(t, l.factsCalls.Load())
}
