package router

import (
	"sync"
	"testing"
	"time"
)

func newTestTracker(threshold int, clock *fakeClock) *HealthTracker {
	ht := NewHealthTracker(BreakerSettings{FailureThreshold: threshold, Policy: PolicyFixed, Cooldown: 30 * time.Second})
	ht.now = clock.Now
	return ht
}

func TestHealthTracker_LazyCreation(t *testing.T) {
	ht := newTestTracker(3, newFakeClock())
	cb := ht.GetBreaker("groq")
	if cb == nil || cb.State() != StateClosed {
		t.Fatal("expected lazily created closed breaker")
	}
	if ht.GetBreaker("groq") != cb {
		t.Error("expected the same breaker on second lookup")
	}
}

func TestHealthTracker_SnapshotsDoNotCreateBreakers(t *testing.T) {
	ht := newTestTracker(3, newFakeClock())
	if st := ht.Status("groq"); st.State != "closed" || st.Provider != "groq" {
		t.Errorf("unexpected status %+v", st)
	}
	if ht.IsOpen("groq") {
		t.Error("unseen provider should be closed")
	}
	if n := len(ht.AllStatuses()); n != 0 {
		t.Errorf("reads created %d breakers", n)
	}
}

func TestHealthTracker_RecordFailureOpensCircuit(t *testing.T) {
	ht := newTestTracker(2, newFakeClock())
	ht.RecordFailure("groq")
	ht.RecordFailure("groq")
	if !ht.IsOpen("groq") {
		t.Error("expected groq open after 2 failures")
	}
}

func TestHealthTracker_RecordSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	ht := newTestTracker(1, clock)
	ht.RecordFailure("groq")
	clock.Advance(31 * time.Second)
	ht.RecordSuccess("groq")
	if st := ht.Status("groq"); st.State != "closed" || st.Provider != "groq" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestHealthTracker_IndependentProviders(t *testing.T) {
	ht := newTestTracker(1, newFakeClock())
	ht.RecordFailure("groq")
	if !ht.IsOpen("groq") {
		t.Error("groq should be open")
	}
	if ht.IsOpen("gemini") {
		t.Error("gemini should be unaffected")
	}
}

func TestHealthTracker_AllStatusesSorted(t *testing.T) {
	ht := newTestTracker(1, newFakeClock())
	ht.RecordFailure("openrouter")
	ht.RecordSuccess("anthropic")
	ht.GetBreaker("gemini")

	got := ht.AllStatuses()
	if len(got) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(got))
	}
	wantOrder := []string{"anthropic", "gemini", "openrouter"}
	for i, id := range wantOrder {
		if got[i].Provider != id {
			t.Errorf("status %d = %s, want %s", i, got[i].Provider, id)
		}
	}
	if got[2].State != "open" || got[2].CooldownRemaining != 30*time.Second {
		t.Errorf("unexpected openrouter status %+v", got[2])
	}
}

func TestHealthTracker_ConcurrentAccess(t *testing.T) {
	ht := NewHealthTracker(BreakerSettings{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b", "c"}[i%3]
			ht.RecordFailure(id)
			ht.IsOpen(id)
			ht.RecordSuccess(id)
			ht.AllStatuses()
		}(i)
	}
	wg.Wait()
	if len(ht.AllStatuses()) != 3 {
		t.Error("expected three breakers")
	}
}
