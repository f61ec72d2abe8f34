package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBatch_MergesRepeatedKeys ensures repeated (user, ticker) deltas fold
// into a single net adjustment (§4.5 step 1) rather than applying twice.
func TestBatch_MergesRepeatedKeys(t *testing.T) {
	u := uuid.New()
	b := NewBatch()
	b.Add(u, "RUB", -500)
	b.Add(u, "RUB", -250)

	sorted := b.sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, int64(-750), sorted[0].Amount)
}

// TestBatch_SortedIsCanonical verifies deltas are ordered by (user_id,
// ticker) regardless of insertion order, so two concurrent batches touching
// overlapping users always lock rows in the same sequence (§5).
func TestBatch_SortedIsCanonical(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

	b := NewBatch()
	b.Add(high, "BTC", 1)
	b.Add(low, "RUB", 1)
	b.Add(low, "BTC", 1)

	sorted := b.sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, low, sorted[0].UserID)
	assert.Equal(t, "BTC", sorted[0].Ticker)
	assert.Equal(t, low, sorted[1].UserID)
	assert.Equal(t, "RUB", sorted[1].Ticker)
	assert.Equal(t, high, sorted[2].UserID)
}

// TestGate_SerializesConcurrentHolders checks the process-wide gate actually
// excludes concurrent critical sections instead of merely compiling.
func TestGate_SerializesConcurrentHolders(t *testing.T) {
	var g Gate
	var counter int
	done := make(chan struct{})

	for i := 0; i < 20; i++ {
		go func() {
			g.Lock()
			defer g.Unlock()
			cur := counter
			time.Sleep(time.Millisecond)
			counter = cur + 1
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, 20, counter, "lost update indicates the gate did not serialize holders")
}

// TestSleepBackoff_RespectsContextCancellation ensures a cancelled context
// aborts the wait instead of sleeping the full backoff window.
func TestSleepBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{BackoffMin: time.Hour, BackoffMax: time.Hour}
	err := sleepBackoff(ctx, 0, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestSleepBackoff_GrowsExponentially sanity-checks the backoff window
// scales with attempt (§4.5: "U(10ms,100ms) * 2^attempt").
func TestSleepBackoff_GrowsExponentially(t *testing.T) {
	cfg := Config{BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}

	start := time.Now()
	require.NoError(t, sleepBackoff(context.Background(), 4, cfg))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 16*time.Millisecond, "attempt=4 should wait at least BackoffMin*2^4")
}
