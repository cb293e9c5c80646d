package memo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eugener/remember/internal/store"
	"github.com/eugener/remember/internal/testutil"
)

func newTestCache(t *testing.T) (*Cache, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock()
	s, err := store.NewMemory(store.MemoryConfig{MaxEntries: 1000, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	return New(s, clock), clock
}

func constant[T any](v T) func() (T, error) {
	return func() (T, error) { return v, nil }
}

func TestUnknownKey(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	if c.Has("nope") {
		t.Error("Has should be false for an unknown key")
	}
	if got := Get(c, "nope", "default"); got != "default" {
		t.Errorf("Get = %q, want default", got)
	}
	if got := Get[int](c, "nope"); got != 0 {
		t.Errorf("Get without default = %d, want 0", got)
	}
}

func TestRemember_StoresAndTracks(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	v, err := Remember(c, "answer", constant(42), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Errorf("Remember = %d, want 42", v)
	}
	if !c.Has("answer") {
		t.Error("Has should be true after Remember")
	}
	if got := Get(c, "answer", -1); got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
}

func TestRemember_ReturnsCachedValue(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(t)

	Remember(c, "k", constant("first"), time.Minute)
	clock.Advance(30 * time.Second)

	called := false
	v, err := Remember(c, "k", func() (string, error) {
		called = true
		return "second", nil
	}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("producer should not run while the entry is live")
	}
	if v != "first" {
		t.Errorf("Remember = %q, want first", v)
	}
}

func TestRemember_RecomputesAfterTTL(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(t)

	Remember(c, "k", constant("first"), time.Minute)
	clock.Advance(time.Minute)

	if got := Get(c, "k", "gone"); got != "gone" {
		t.Errorf("Get after ttl = %q, want gone", got)
	}
	if !c.Has("k") {
		t.Error("natural expiry should not untrack the key")
	}

	v, _ := Remember(c, "k", constant("second"), time.Minute)
	if v != "second" {
		t.Errorf("Remember after ttl = %q, want second", v)
	}
}

func TestForget(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	Remember(c, "k", constant(1), time.Minute)
	c.Forget("k")

	if c.Has("k") {
		t.Error("Has should be false after Forget")
	}
	if got := Get(c, "k", -1); got != -1 {
		t.Errorf("Get after Forget = %d, want -1", got)
	}

	// Idempotent.
	c.Forget("k")
	c.Forget("never-seen")
}

func TestFlush(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	keys := []string{"a", "b", "c", "d"}
	for i, k := range keys {
		if i%2 == 0 {
			Remember(c, k, constant(i), time.Minute)
		} else {
			Forever(c, k, constant(i))
		}
	}

	c.Flush()

	for _, k := range keys {
		if c.Has(k) {
			t.Errorf("Has(%q) should be false after Flush", k)
		}
		if got := Get(c, k, -1); got != -1 {
			t.Errorf("Get(%q) after Flush = %d, want -1", k, got)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len after Flush = %d, want 0", c.Len())
	}
}

func TestFlush_LeavesForeignEntries(t *testing.T) {
	t.Parallel()
	fs := testutil.NewFakeStore()
	c := New(fs, nil)

	fs.Put("foreign", "theirs")
	Remember(c, "mine", constant("ours"), time.Minute)

	// Simulate natural expiry: the store no longer holds the tracked key.
	fs.Remove("mine")
	c.Flush()

	if got := Get(c, "foreign", ""); got != "theirs" {
		t.Errorf("foreign entry = %q, want theirs", got)
	}
	removed := fs.Removed()
	if !slices.Equal(removed, []string{"mine", "mine"}) {
		t.Errorf("Removed = %v, want [mine mine]", removed)
	}
}

func TestForever_SurvivesTimeAdvance(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(t)

	v, err := Forever(c, "cfg", constant("pinned"))
	if err != nil {
		t.Fatal(err)
	}
	if v != "pinned" {
		t.Errorf("Forever = %q, want pinned", v)
	}

	clock.Advance(10 * 365 * 24 * time.Hour)
	if got := Get(c, "cfg", ""); got != "pinned" {
		t.Errorf("Get after large advance = %q, want pinned", got)
	}

	c.Forget("cfg")
	if got := Get(c, "cfg", "gone"); got != "gone" {
		t.Errorf("Get after Forget = %q, want gone", got)
	}
}

func TestRemember_ConcurrentSingleProducer(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	var calls atomic.Int32
	producer := func() (int, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 7, nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Remember(c, "fresh", producer, time.Minute)
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("producer calls = %d, want 1", got)
	}
	for i := range n {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if results[i] != 7 {
			t.Errorf("caller %d got %d, want 7", i, results[i])
		}
	}
}

func TestGet_TypeMismatchIsMiss(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	Remember(c, "n", constant(42), time.Minute)

	if got := Get(c, "n", "default"); got != "default" {
		t.Errorf("Get[string] on int = %q, want default", got)
	}
	if got := Get[string](c, "n"); got != "" {
		t.Errorf("Get[string] without default = %q, want empty", got)
	}
}

func TestRemember_TypeMismatchOnHit(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	Remember(c, "n", constant(42), time.Minute)
	_, err := Remember(c, "n", constant("x"), time.Minute)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestRemember_ProducerErrorPropagates(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)
	boom := errors.New("boom")

	_, err := Remember(c, "k", func() (int, error) { return 0, boom }, time.Minute)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// The key is tracked before the producer runs, even though it failed.
	if !c.Has("k") {
		t.Error("failed Remember should still track the key")
	}
	if got := Get(c, "k", -1); got != -1 {
		t.Errorf("Get after failed producer = %d, want -1", got)
	}

	// The next call retries the producer.
	v, err := Remember(c, "k", constant(5), time.Minute)
	if err != nil || v != 5 {
		t.Errorf("retry = %d, %v; want 5, nil", v, err)
	}
}

func TestRemember_NilInterfaceValue(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	v, err := Remember(c, "nil", func() (error, error) { return nil, nil }, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("value = %v, want nil", v)
	}
}

func TestRememberAsync(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	producer := func(context.Context) (string, error) {
		calls.Add(1)
		return "async", nil
	}

	v, err := RememberAsync(ctx, c, "k", producer, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if v != "async" {
		t.Errorf("RememberAsync = %q, want async", v)
	}
	if !c.Has("k") {
		t.Error("Has should be true after RememberAsync")
	}

	RememberAsync(ctx, c, "k", producer, time.Minute)
	if got := calls.Load(); got != 1 {
		t.Errorf("producer calls = %d, want 1", got)
	}

	clock.Advance(time.Minute)
	RememberAsync(ctx, c, "k", producer, time.Minute)
	if got := calls.Load(); got != 2 {
		t.Errorf("producer calls after ttl = %d, want 2", got)
	}
}

func TestRememberAsync_CancelledWait(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	release := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := RememberAsync(ctx, c, "slow", func(context.Context) (int, error) {
		<-release
		return 1, nil
	}, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if !c.Has("slow") {
		t.Error("key should be tracked even when the wait is abandoned")
	}
	close(release)
}

func TestForeverAsync(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(t)

	v, err := ForeverAsync(context.Background(), c, "k", func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(v, []string{"a", "b"}) {
		t.Errorf("ForeverAsync = %v", v)
	}

	clock.Advance(1000 * time.Hour)
	if got := Get[[]string](c, "k"); len(got) != 2 {
		t.Errorf("Get after advance = %v, want 2 items", got)
	}
}

func TestGetAsync(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)
	Forever(c, "k", constant(3))

	v, err := GetAsync(context.Background(), c, "k", 0)
	if err != nil || v != 3 {
		t.Errorf("GetAsync = %d, %v; want 3, nil", v, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := GetAsync[int](ctx, c, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHas_IgnoresForeignEntries(t *testing.T) {
	t.Parallel()
	fs := testutil.NewFakeStore()
	c := New(fs, nil)
	fs.Put("foreign", 1)

	if c.Has("foreign") {
		t.Error("Has should only report keys inserted through the cache")
	}
	if got := Get(c, "foreign", 0); got != 1 {
		t.Errorf("Get = %d, want 1", got)
	}
}

func TestKeys(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)
	for i := range 5 {
		Remember(c, fmt.Sprintf("k%d", i), constant(i), time.Minute)
	}

	keys := c.Keys()
	slices.Sort(keys)
	want := []string{"k0", "k1", "k2", "k3", "k4"}
	if !slices.Equal(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
}

func TestRememberAsync_ProducerPanicReachesCaller(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	var got any
	func() {
		defer func() { got = recover() }()
		RememberAsync(context.Background(), c, "p", func(context.Context) (int, error) {
			panic("producer boom")
		}, time.Hour)
	}()
	if got != "producer boom" {
		t.Fatalf("recovered %v, want producer boom", got)
	}
	if got := Get(c, "p", -1); got != -1 {
		t.Errorf("Get after panic = %d, want -1", got)
	}

	v, err := ForeverAsync(context.Background(), c, "p", func(context.Context) (int, error) {
		return 9, nil
	})
	if err != nil || v != 9 {
		t.Errorf("retry = %d, %v; want 9, nil", v, err)
	}
}

func TestForget_DuringRemember(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)
	go func() {
		v, _ := Remember(c, "k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		}, time.Minute)
		done <- v
	}()

	<-started
	c.Forget("k")
	close(release)

	if v := <-done; v != 1 {
		t.Errorf("Remember = %d, want 1", v)
	}
	if c.Has("k") {
		t.Error("Has should be false after Forget")
	}
	if got := Get(c, "k", -1); got != -1 {
		t.Errorf("Get = %d, want -1: forgotten key must not be stored untracked", got)
	}
}

func TestNew_DefaultsToStoreClock(t *testing.T) {
	t.Parallel()
	clock := testutil.NewFakeClock()
	s, err := store.NewMemory(store.MemoryConfig{MaxEntries: 10, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	c := New(s, nil)

	Remember(c, "k", constant("v"), time.Minute)
	clock.Advance(time.Minute)

	if got := Get(c, "k", "expired"); got != "expired" {
		t.Errorf("Get = %q, want expired: deadline must use the store's clock", got)
	}
}
