package blend

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/underplayed/api/internal/model"
)

func matched(id string, count int) model.MatchedTrack {
	return model.MatchedTrack{
		Track:     track(id, "Song "+id, "Artist"),
		PlayCount: count,
	}
}

func newTestEngine() *Engine {
	return NewEngine(rand.New(rand.NewSource(42)))
}

func TestSequence_EmptyInput(t *testing.T) {
	if got := newTestEngine().Sequence(nil); len(got) != 0 {
		t.Errorf("expected empty output, got %d entries", len(got))
	}
}

func TestSequence_SingleLevel(t *testing.T) {
	// All tracks share one play count: a single shuffled block, once.
	in := []model.MatchedTrack{matched("a", 0), matched("b", 0), matched("c", 0)}
	got := newTestEngine().Sequence(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	seen := map[string]int{}
	for _, uri := range got {
		seen[uri]++
	}
	for _, m := range in {
		if seen[m.URI] != 1 {
			t.Errorf("expected %s exactly once, got %d", m.URI, seen[m.URI])
		}
	}
}

func TestSequence_OutputLength(t *testing.T) {
	// Groups {0: 2 tracks, 2: 1 track}, maxCount=2: length 2*3 + 1*1 = 7.
	in := []model.MatchedTrack{matched("a", 0), matched("b", 0), matched("c", 2)}
	got := newTestEngine().Sequence(in)
	if len(got) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(got))
	}
}

func TestSequence_PerTrackMultiplicity(t *testing.T) {
	// A track with count p appears maxCount-p+1 times.
	in := []model.MatchedTrack{
		matched("a", 0),
		matched("b", 1),
		matched("c", 3),
		matched("d", 3),
	}
	got := newTestEngine().Sequence(in)

	counts := map[string]int{}
	for _, uri := range got {
		counts[uri]++
	}
	want := map[string]int{
		"spotify:track:a": 4,
		"spotify:track:b": 3,
		"spotify:track:c": 1,
		"spotify:track:d": 1,
	}
	for uri, n := range want {
		if counts[uri] != n {
			t.Errorf("%s: expected %d occurrences, got %d", uri, n, counts[uri])
		}
	}
	if len(got) != 9 {
		t.Errorf("expected total length 9, got %d", len(got))
	}
}

func TestSequence_GapLevelsReshuffleExistingPool(t *testing.T) {
	// Counts 0 and 2, nothing at level 1: the level-1 pass still re-appends
	// the unchanged pool, so the level-0 track appears three times.
	in := []model.MatchedTrack{matched("a", 0), matched("b", 2)}
	got := newTestEngine().Sequence(in)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	n := 0
	for _, uri := range got {
		if uri == "spotify:track:a" {
			n++
		}
	}
	if n != 3 {
		t.Errorf("expected track a three times, got %d", n)
	}
}

func TestSequence_BlocksArePermutationsOfThePool(t *testing.T) {
	in := []model.MatchedTrack{
		matched("a", 0), matched("b", 0),
		matched("c", 1),
		matched("d", 2), matched("e", 2),
	}
	got := newTestEngine().Sequence(in)

	// Block sizes grow with the pool: 2, 3, 5.
	blocks := [][]string{got[0:2], got[2:5], got[5:10]}
	wantMembers := [][]string{
		{"spotify:track:a", "spotify:track:b"},
		{"spotify:track:a", "spotify:track:b", "spotify:track:c"},
		{"spotify:track:a", "spotify:track:b", "spotify:track:c", "spotify:track:d", "spotify:track:e"},
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	for i, block := range blocks {
		seen := map[string]int{}
		for _, uri := range block {
			seen[uri]++
		}
		for _, uri := range wantMembers[i] {
			if seen[uri] != 1 {
				t.Errorf("block %d: expected %s exactly once, got %d", i, uri, seen[uri])
			}
		}
	}
}

func TestSequence_ConcurrentCalls(t *testing.T) {
	// The worker server runs multiple jobs against one shared Engine; run
	// under -race to catch unguarded rng access.
	in := []model.MatchedTrack{matched("a", 0), matched("b", 1), matched("c", 2)}
	e := NewEngine(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := e.Sequence(in); len(got) != 6 {
					t.Errorf("expected 6 entries, got %d", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSequence_SameMultisetAcrossRuns(t *testing.T) {
	// Two runs only differ in intra-block order, never in membership counts.
	in := []model.MatchedTrack{
		matched("a", 0), matched("b", 1), matched("c", 1), matched("d", 4),
	}
	first := NewEngine(rand.New(rand.NewSource(1))).Sequence(in)
	second := NewEngine(rand.New(rand.NewSource(2))).Sequence(in)

	if len(first) != len(second) {
		t.Fatalf("expected identical lengths, got %d and %d", len(first), len(second))
	}
	countsOf := func(seq []string) map[string]int {
		m := map[string]int{}
		for _, uri := range seq {
			m[uri]++
		}
		return m
	}
	a, b := countsOf(first), countsOf(second)
	for uri, n := range a {
		if b[uri] != n {
			t.Errorf("%s: %d occurrences in first run, %d in second", uri, n, b[uri])
		}
	}
}
