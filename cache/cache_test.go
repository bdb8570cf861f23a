// ABOUTME: Tests for the TTL reference-data cache
// ABOUTME: Covers expiry, clock injection, and single-flight refresh

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New(1 * time.Second)

	c.Set("key1", "value1")

	val, found := c.Get("key1")
	if !found {
		t.Error("Expected to find key1")
	}
	if val != "value1" {
		t.Errorf("Expected value1, got %v", val)
	}
}

func TestCache_Expiration(t *testing.T) {
	c := New(1 * time.Hour)

	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set("key1", "value1")

	if _, found := c.Get("key1"); !found {
		t.Error("Expected to find key1 before expiry")
	}

	current = current.Add(2 * time.Hour)

	if _, found := c.Get("key1"); found {
		t.Error("Expected key1 to be expired")
	}
}

func TestCache_SetWithTTL(t *testing.T) {
	c := New(1 * time.Hour)

	current := time.Now()
	c.now = func() time.Time { return current }

	c.SetWithTTL("shards", []string{"vc-a-0"}, 30*time.Minute)

	current = current.Add(31 * time.Minute)
	if _, found := c.Get("shards"); found {
		t.Error("Expected custom TTL to override default")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(1 * time.Second)

	c.Set("key1", "value1")
	c.Clear("key1")

	_, found := c.Get("key1")
	if found {
		t.Error("Expected key1 to be cleared")
	}
}

func TestCache_FetchCachesValue(t *testing.T) {
	c := New(1 * time.Hour)
	calls := 0

	fetch := func() (interface{}, error) {
		calls++
		return "fetched", nil
	}

	for i := 0; i < 3; i++ {
		val, err := c.Fetch("key", time.Hour, fetch)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if val != "fetched" {
			t.Errorf("Expected fetched, got %v", val)
		}
	}

	if calls != 1 {
		t.Errorf("Expected 1 fetch within TTL, got %d", calls)
	}
}

func TestCache_FetchErrorNotCached(t *testing.T) {
	c := New(1 * time.Hour)
	calls := 0

	if _, err := c.Fetch("key", time.Hour, func() (interface{}, error) {
		calls++
		return nil, errors.New("control plane unavailable")
	}); err == nil {
		t.Fatal("Expected fetch error")
	}

	if _, err := c.Fetch("key", time.Hour, func() (interface{}, error) {
		calls++
		return "recovered", nil
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if calls != 2 {
		t.Errorf("Expected error to be retried, got %d calls", calls)
	}
}

func TestCache_FetchCoalescesConcurrentRefreshes(t *testing.T) {
	c := New(1 * time.Hour)

	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func() (interface{}, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := c.Fetch("key", time.Hour, fetch)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if val != "shared" {
				t.Errorf("Expected shared, got %v", val)
			}
		}()
	}

	// Let the goroutines pile up on the same flight, then release it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a single coalesced fetch, got %d", got)
	}
}
