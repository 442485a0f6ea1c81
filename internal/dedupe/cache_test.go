// ABOUTME: Tests for the fingerprint cache that shields ingest from redelivered events.
// ABOUTME: Validates TTL expiration, eviction order, sweep, atomicity, and fingerprint identity.

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Identity(t *testing.T) {
	raw := []byte(`{"method":"agent_message/delta","params":{"delta":"Hi"}}`)

	// Same engine, same bytes: same fingerprint.
	assert.Equal(t, Fingerprint("codex", raw), Fingerprint("codex", raw))

	// Different engine or different bytes: different fingerprint.
	assert.NotEqual(t, Fingerprint("codex", raw), Fingerprint("claude", raw))
	assert.NotEqual(t, Fingerprint("codex", raw), Fingerprint("codex", []byte(`{"method":"other"}`)))
}

func TestCache_Seen_NotObserved(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("never-observed"))
}

func TestCache_Observe_FirstAndSecond(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	// First observation records and reports new.
	assert.False(t, cache.Observe("fp-1"), "first Observe should report new")
	assert.True(t, cache.Seen("fp-1"))

	// Second observation is the duplicate ingest drops.
	assert.True(t, cache.Observe("fp-1"), "second Observe should report duplicate")
}

func TestCache_Observe_Expired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.Observe("expiring"))
	assert.True(t, cache.Observe("expiring"), "fresh entry is a duplicate")

	time.Sleep(20 * time.Millisecond)

	// Past the TTL the fingerprint counts as new again.
	assert.False(t, cache.Observe("expiring"), "expired entry should not count as seen")
}

func TestCache_Remember_RefreshesTTL(t *testing.T) {
	cache := New(50*time.Millisecond, 100)
	defer cache.Close()

	cache.Remember("refresh")
	time.Sleep(30 * time.Millisecond)

	// Re-remembering restarts the clock.
	cache.Remember("refresh")
	time.Sleep(30 * time.Millisecond)

	assert.True(t, cache.Seen("refresh"))
}

func TestCache_EvictionOrder(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Remember("first")
	cache.Remember("second")
	cache.Remember("third")

	assert.True(t, cache.Seen("first"))
	assert.True(t, cache.Seen("second"))
	assert.True(t, cache.Seen("third"))

	// At capacity the oldest entry makes room.
	cache.Remember("fourth")
	assert.False(t, cache.Seen("first"), "oldest fingerprint should be evicted")
	assert.True(t, cache.Seen("second"))
	assert.True(t, cache.Seen("fourth"))

	cache.Remember("fifth")
	assert.False(t, cache.Seen("second"), "eviction proceeds in insertion order")
	assert.True(t, cache.Seen("third"))
	assert.True(t, cache.Seen("fifth"))
}

func TestCache_EvictionOrder_RefreshMovesToBack(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Remember("first")
	cache.Remember("second")
	cache.Remember("third")

	// Touching "first" makes "second" the oldest.
	cache.Remember("first")
	cache.Remember("fourth")

	assert.True(t, cache.Seen("first"))
	assert.False(t, cache.Seen("second"))
}

func TestCache_Sweep_RemovesExpiredEntries(t *testing.T) {
	// The sweeper goroutine ticks once a minute; call sweep directly to
	// verify what it removes.
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Remember("sweep-1")
	cache.Remember("sweep-2")
	assert.Equal(t, 2, cache.Len())

	time.Sleep(20 * time.Millisecond)
	cache.sweep()

	assert.Equal(t, 0, cache.Len(), "sweep should drop expired entries from the map")
}

func TestCache_Observe_Atomic(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var winners int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	// All goroutines race the same fingerprint; exactly one may be new.
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.Observe("contested") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners, "exactly one Observe should report new")
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 100
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				fp := "fp-" + string(rune('A'+id%26)) + "-" + string(rune('0'+j%10))
				cache.Remember(fp)
				cache.Seen(fp)
			}
		}(i)
	}
	wg.Wait()

	// Still functional after the stampede.
	cache.Remember("final")
	assert.True(t, cache.Seen("final"))
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)

	cache.Remember("before-close")
	assert.True(t, cache.Seen("before-close"))

	cache.Close()
	cache.Close() // second Close must not panic
}
