package blend

import (
	"math/rand"
	"sync"
	"time"

	"github.com/underplayed/api/internal/model"
)

// Engine produces the final track ordering from a matched set.
//
// The algorithm walks play-count levels 0..max. At each level the tracks with
// that exact count join a cumulative pool, and the whole pool is copied,
// shuffled and appended to the output. The pool never shrinks, so a track with
// play count p shows up once per level from p through max. The duplication is
// the weighting mechanism, not an accident; do not collapse this into a
// single shuffle.
//
// One Engine is shared by all concurrently running jobs and rand.Rand is not
// safe for concurrent use, so the rng is guarded by a mutex.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine returns an Engine using the given source, or a time-seeded one
// when rng is nil.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rng: rng}
}

// Sequence returns the ordered playable URIs for the matched set. Empty input
// yields empty output. Output length is the sum over tracks of
// (maxCount - playCount + 1).
func (e *Engine) Sequence(tracks []model.MatchedTrack) []string {
	if len(tracks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	groups := make(map[int][]string)
	maxCount := 0
	for _, t := range tracks {
		groups[t.PlayCount] = append(groups[t.PlayCount], t.URI)
		if t.PlayCount > maxCount {
			maxCount = t.PlayCount
		}
	}

	var pool []string
	var out []string
	for level := 0; level <= maxCount; level++ {
		pool = append(pool, groups[level]...)
		if len(pool) == 0 {
			continue
		}
		block := make([]string, len(pool))
		copy(block, pool)
		e.rng.Shuffle(len(block), func(i, j int) {
			block[i], block[j] = block[j], block[i]
		})
		out = append(out, block...)
	}
	return out
}
