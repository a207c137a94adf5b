package dedup

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dedup.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClaim_FirstThenDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, since, err := s.Claim(ctx, "HighCPU", base, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, since)

	ok, since, err = s.Claim(ctx, "HighCPU", base.Add(10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Minute, since)

	// Other alarms are independent.
	ok, _, err = s.Claim(ctx, "DiskFull", base.Add(10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaim_AfterWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, _, err := s.Claim(ctx, "HighCPU", base, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = s.Claim(ctx, "HighCPU", base.Add(61*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ts, err := s.Get(ctx, "HighCPU", base.Add(62*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, base.Add(61*time.Minute), *ts)
}

func TestClaim_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := s.Claim(ctx, "HighCPU", base, time.Hour)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestGetPut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts, err := s.Get(ctx, "missing", base)
	require.NoError(t, err)
	assert.Nil(t, ts)

	require.NoError(t, s.Put(ctx, "HighCPU", base, 30*time.Minute))

	ts, err = s.Get(ctx, "HighCPU", base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, base, *ts)

	ts, err = s.Get(ctx, "HighCPU", base.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, ts, "expired records are not returned")
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "old", base, time.Minute))
	require.NoError(t, s.Put(ctx, "new", base, time.Hour))

	n, err := s.Purge(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpen_ReappliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "HighCPU", base, time.Hour))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	ts, err := s.Get(context.Background(), "HighCPU", base)
	require.NoError(t, err)
	assert.NotNil(t, ts)
}
