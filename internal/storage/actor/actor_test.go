package actor

import (
	"context"
	"sync"
	"testing"
)

func TestName_CombinesTenantAndObject(t *testing.T) {
	if got := Name("acme", "session-1"); got != "acme:session-1" {
		t.Errorf("Name() = %q, want acme:session-1", got)
	}

	// Two tenants with the same object id must never share a slot.
	if Name("a", "x") == Name("b", "x") {
		t.Error("names collide across tenants")
	}
}

func TestRuntime_DoRoundTrip(t *testing.T) {
	runtime := NewRuntime(NewMemoryStore())
	ctx := context.Background()

	err := runtime.Do(ctx, "acme:counter", func(h Handle) error {
		return h.Put(ctx, "value", 41)
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	var value int
	err = runtime.Do(ctx, "acme:counter", func(h Handle) error {
		ok, err := h.Get(ctx, "value", &value)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("stored value missing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if value != 41 {
		t.Errorf("value = %d, want 41", value)
	}
}

func TestRuntime_SerializesPerName(t *testing.T) {
	runtime := NewRuntime(NewMemoryStore())
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = runtime.Do(ctx, "acme:counter", func(h Handle) error {
				var n int
				if _, err := h.Get(ctx, "n", &n); err != nil {
					return err
				}
				return h.Put(ctx, "n", n+1)
			})
		}()
	}
	wg.Wait()

	var n int
	_ = runtime.Do(ctx, "acme:counter", func(h Handle) error {
		_, err := h.Get(ctx, "n", &n)
		return err
	})
	if n != workers {
		t.Errorf("counter = %d, want %d (read-modify-write interleaved)", n, workers)
	}
}

func TestRuntime_Clear(t *testing.T) {
	runtime := NewRuntime(NewMemoryStore())
	ctx := context.Background()

	_ = runtime.Do(ctx, "acme:log", func(h Handle) error {
		return h.Put(ctx, "messages", []string{"a"})
	})
	_ = runtime.Do(ctx, "acme:log", func(h Handle) error {
		return h.Clear(ctx)
	})

	var out []string
	_ = runtime.Do(ctx, "acme:log", func(h Handle) error {
		ok, err := h.Get(ctx, "messages", &out)
		if ok {
			t.Error("state survived Clear()")
		}
		return err
	})
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir() + "/actors.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	type record struct {
		Values []int `json:"values"`
	}

	if err := store.Put(ctx, "acme:rl", "timestamps", record{Values: []int{1, 2, 3}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var got record
	ok, err := store.Get(ctx, "acme:rl", "timestamps", &got)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || len(got.Values) != 3 {
		t.Errorf("Get() = %+v, %v; want 3 values", got, ok)
	}

	// Overwrite replaces, not appends.
	if err := store.Put(ctx, "acme:rl", "timestamps", record{Values: []int{9}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got = record{}
	if _, err := store.Get(ctx, "acme:rl", "timestamps", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Values) != 1 || got.Values[0] != 9 {
		t.Errorf("Get() after overwrite = %+v", got)
	}

	if err := store.Clear(ctx, "acme:rl"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if ok, _ := store.Get(ctx, "acme:rl", "timestamps", &got); ok {
		t.Error("state survived Clear()")
	}
}
