package balancer

import (
	"testing"

	"github.com/sslproxymanager/core/internal/core/domain"
)

func weighted(url string, weight int64) domain.UpstreamState {
	return domain.UpstreamState{URL: url, Weight: weight}
}

func TestSelect_NoUpstreams(t *testing.T) {
	b := New()
	_, ok := b.Select("r1", nil)
	if ok {
		t.Error("expected ok=false for zero upstreams")
	}
}

func TestSelect_SingleUpstream(t *testing.T) {
	b := New()
	url, ok := b.Select("r1", []domain.UpstreamState{weighted("http://a", 5)})
	if !ok || url != "http://a" {
		t.Errorf("expected http://a, got %q (ok=%v)", url, ok)
	}
}

func TestSelect_EmptyRouteIDDegeneratesToFirst(t *testing.T) {
	b := New()
	ups := []domain.UpstreamState{weighted("http://a", 1), weighted("http://b", 9)}
	for i := 0; i < 5; i++ {
		url, ok := b.Select("", ups)
		if !ok || url != "http://a" {
			t.Errorf("expected http://a on every call with empty route id, got %q", url)
		}
	}
}

func TestSelect_SWRRDistribution(t *testing.T) {
	b := New()
	ups := []domain.UpstreamState{
		weighted("A", 1),
		weighted("B", 2),
		weighted("C", 3),
	}

	counts := map[string]int{}
	for i := 0; i < 12; i++ {
		url, ok := b.Select("r1", ups)
		if !ok {
			t.Fatal("expected a selection")
		}
		counts[url]++
	}

	if counts["A"] != 2 || counts["B"] != 4 || counts["C"] != 6 {
		t.Errorf("expected A:2 B:4 C:6 over 12 picks, got %v", counts)
	}
}

func TestSelect_SignatureChangeRebuildsState(t *testing.T) {
	b := New()
	ups := []domain.UpstreamState{weighted("A", 1), weighted("B", 1)}
	b.Select("r1", ups)
	b.Select("r1", ups)

	changed := []domain.UpstreamState{weighted("A", 1), weighted("B", 1), weighted("C", 1)}
	url, ok := b.Select("r1", changed)
	if !ok {
		t.Fatal("expected a selection after signature change")
	}
	if url != "A" {
		t.Errorf("expected the rebuilt state's first step to pick A, got %q", url)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	ups := []domain.UpstreamState{weighted("A", 1), weighted("B", 2), weighted("C", 3)}

	b1 := New()
	b2 := New()

	var seq1, seq2 []string
	for i := 0; i < 12; i++ {
		u1, _ := b1.Select("r1", ups)
		u2, _ := b2.Select("r1", ups)
		seq1 = append(seq1, u1)
		seq2 = append(seq2, u2)
	}

	for i := range seq1 {
		if seq1[i] != seq2[i] {
			t.Fatalf("sequences diverged at index %d: %v vs %v", i, seq1, seq2)
		}
	}
}

func TestReset(t *testing.T) {
	b := New()
	ups := []domain.UpstreamState{weighted("A", 1), weighted("B", 1)}
	b.Select("r1", ups)
	b.Reset()
	if len(b.states) != 0 {
		t.Error("expected Reset to clear all route state")
	}
}
