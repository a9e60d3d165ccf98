package hlscache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecast/mediapipe/internal/hls"
)

func mediaFor(id string) *hls.PreparedMedia {
	return &hls.PreparedMedia{SourcePath: id}
}

// TestSingleFlightCoalescesConcurrentMisses mirrors the "single-flight
// cache" scenario: 100 concurrent GetOrPopulate(id) calls against a cold
// cache invoke the populate function exactly once.
func TestSingleFlightCoalescesConcurrentMisses(t *testing.T) {
	var calls int64
	populate := func(id string) (*hls.PreparedMedia, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(10 * time.Millisecond) // simulate real parse+precompute work
		return mediaFor(id), nil
	}
	c := New(200, 2, populate)

	var wg sync.WaitGroup
	results := make([]*hls.PreparedMedia, 100)
	errs := make([]error, 100)
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func(idx int) {
			defer wg.Done()
			media, err := c.GetOrPopulate("movie-1")
			results[idx] = media
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "movie-1", results[i].SourcePath)
	}
}

func TestGetOrPopulateCacheHitDoesNotRepopulate(t *testing.T) {
	var calls int64
	populate := func(id string) (*hls.PreparedMedia, error) {
		atomic.AddInt64(&calls, 1)
		return mediaFor(id), nil
	}
	c := New(200, 0, populate)

	_, err := c.GetOrPopulate("a")
	require.NoError(t, err)
	_, err = c.GetOrPopulate("a")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestPopulateRetriesUpToMaxThenFails(t *testing.T) {
	var calls int64
	populate := func(id string) (*hls.PreparedMedia, error) {
		atomic.AddInt64(&calls, 1)
		return nil, errors.New("parse failed")
	}
	c := New(200, 2, populate)

	_, err := c.GetOrPopulate("bad")
	require.Error(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls)) // initial + 2 retries

	assert.Equal(t, 0, c.Len())
}

func TestPopulateSucceedsAfterTransientFailures(t *testing.T) {
	var calls int64
	populate := func(id string) (*hls.PreparedMedia, error) {
		n := atomic.AddInt64(&calls, 1)
		if n < 2 {
			return nil, errors.New("transient")
		}
		return mediaFor(id), nil
	}
	c := New(200, 2, populate)

	media, err := c.GetOrPopulate("flaky")
	require.NoError(t, err)
	assert.Equal(t, "flaky", media.SourcePath)
}

func TestEvictionDropsOldestEntriesOverCapacity(t *testing.T) {
	populate := func(id string) (*hls.PreparedMedia, error) {
		return mediaFor(id), nil
	}
	c := New(2, 0, populate)

	_, err := c.GetOrPopulate("first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = c.GetOrPopulate("second")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = c.GetOrPopulate("third")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())

	// "first" was the oldest and should have been evicted; re-fetching it
	// re-populates rather than hitting a stale cache entry.
	var repopulated bool
	c.Populate = func(id string) (*hls.PreparedMedia, error) {
		if id == "first" {
			repopulated = true
		}
		return mediaFor(id), nil
	}
	_, err = c.GetOrPopulate("first")
	require.NoError(t, err)
	assert.True(t, repopulated)
}

func TestEvictRemovesEntry(t *testing.T) {
	populate := func(id string) (*hls.PreparedMedia, error) {
		return mediaFor(id), nil
	}
	c := New(200, 0, populate)
	_, err := c.GetOrPopulate("x")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c.Evict("x")
	assert.Equal(t, 0, c.Len())
}
