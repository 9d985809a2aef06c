package hashring

import "testing"

func TestPick_Deterministic(t *testing.T) {
	r := New([]string{"a:1", "b:2", "c:3"})
	first := r.Pick("client-key", nil)
	for i := 0; i < 10; i++ {
		if got := r.Pick("client-key", nil); got != first {
			t.Fatalf("expected deterministic pick, got %q then %q", first, got)
		}
	}
}

func TestPick_SkipsDownUpstreams(t *testing.T) {
	r := New([]string{"a:1", "b:2", "c:3"})
	chosen := r.Pick("client-key", func(u string) bool { return u != "a:1" && u != "b:2" })
	if chosen != "c:3" {
		t.Errorf("expected failover to c:3, got %q", chosen)
	}
}

func TestPick_AllDown(t *testing.T) {
	r := New([]string{"a:1"})
	if got := r.Pick("k", func(string) bool { return false }); got != "" {
		t.Errorf("expected empty string when every upstream is down, got %q", got)
	}
}

func TestPick_EmptyRing(t *testing.T) {
	r := New(nil)
	if got := r.Pick("k", nil); got != "" {
		t.Errorf("expected empty string for an empty ring, got %q", got)
	}
}
