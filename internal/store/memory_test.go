package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microgate-project/microgate/internal/domain"
)

func record(hash, payer string) *domain.ReplayRecord {
	return &domain.ReplayRecord{
		TxHash:       hash,
		Status:       domain.StatusAccepted,
		PayerAddress: payer,
		AmountWei:    "100000000000000",
		ChainID:      84532,
		Endpoint:     "/api/premium-data",
	}
}

func TestMemoryStoreInsertIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.InsertIfAbsent(ctx, record("0xabc", "0x1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertIfAbsent(ctx, record("0xabc", "0x2"))
	require.NoError(t, err)
	assert.False(t, created)

	// The original record wins; the losing insert must not mutate it.
	rec, err := s.Lookup(ctx, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "0x1", rec.PayerAddress)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestMemoryStoreLookupMissing(t *testing.T) {
	s := NewMemoryStore()

	rec, err := s.Lookup(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStoreConcurrentInsertExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	var createdCount atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			created, err := s.InsertIfAbsent(ctx, record("0xracy", fmt.Sprintf("0x%d", i)))
			assert.NoError(t, err)
			if created {
				createdCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), createdCount.Load())
}

func TestMemoryStoreListRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := record(fmt.Sprintf("0x%d", i), "0xPAYER")
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		_, err := s.InsertIfAbsent(ctx, rec)
		require.NoError(t, err)
	}
	other := record("0xother", "0xsomeoneelse")
	_, err := s.InsertIfAbsent(ctx, other)
	require.NoError(t, err)

	all, err := s.ListRecent(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// Payer filter is case-insensitive, newest first.
	filtered, err := s.ListRecent(ctx, "0xpayer", 100)
	require.NoError(t, err)
	require.Len(t, filtered, 3)
	assert.Equal(t, "0x2", filtered[0].TxHash)

	limited, err := s.ListRecent(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
