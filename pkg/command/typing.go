package command

import (
	"math/rand"
	"sync"
	"time"
)

// Human typing model. Words-per-minute ranges come from the payload; the
// standard 5-chars-per-word convention converts them to a per-character
// baseline, then each keystroke gets uniform jitter and an occasional
// longer "thinking" pause.
const (
	charsPerWord     = 5
	jitterMin        = 0.5
	jitterMax        = 1.5
	thinkChance      = 0.02
	thinkPauseMinMs  = 500
	thinkPauseMaxMs  = 1500
	typoChance       = 0.05
	preClickMinMs    = 50
	preClickMaxMs    = 150
)

// msPerChar returns the baseline delay per character for a wpm range.
func msPerChar(wpmMin, wpmMax int) float64 {
	if wpmMin <= 0 {
		wpmMin = DefaultWpmMin
	}
	if wpmMax <= 0 {
		wpmMax = DefaultWpmMax
	}
	avgWpm := float64(wpmMin+wpmMax) / 2
	charsPerMinute := avgWpm * charsPerWord
	return 60000 / charsPerMinute
}

// pacer draws the per-keystroke delays. All random draws go through one
// guarded source so executions are safe to trigger from transport
// callbacks.
type pacer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newPacer(seed int64) *pacer {
	return &pacer{rng: rand.New(rand.NewSource(seed))}
}

func (p *pacer) uniform(min, max float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + p.rng.Float64()*(max-min)
}

func (p *pacer) chance(prob float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < prob
}

func (p *pacer) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

// charDelay is the post-keystroke delay: baseline times U(0.5, 1.5).
func (p *pacer) charDelay(baseMs float64) time.Duration {
	return time.Duration(baseMs*p.uniform(jitterMin, jitterMax)) * time.Millisecond
}

// thinkPause returns a pause duration with probability thinkChance, zero
// otherwise.
func (p *pacer) thinkPause() time.Duration {
	if !p.chance(thinkChance) {
		return 0
	}
	return time.Duration(p.uniform(thinkPauseMinMs, thinkPauseMaxMs)) * time.Millisecond
}

// preClickDelay is the short humanization pause before a click lands.
func (p *pacer) preClickDelay() time.Duration {
	return time.Duration(p.uniform(preClickMinMs, preClickMaxMs)) * time.Millisecond
}

// qwertyNeighbors backs typo simulation: a mistyped character is drawn from
// the keys adjacent to the intended one.
var qwertyNeighbors = map[rune][]rune{
	'q': {'w', 'a', 's'},
	'w': {'q', 'e', 'a', 's', 'd'},
	'e': {'w', 'r', 's', 'd', 'f'},
	'r': {'e', 't', 'd', 'f', 'g'},
	't': {'r', 'y', 'f', 'g', 'h'},
	'y': {'t', 'u', 'g', 'h', 'j'},
	'u': {'y', 'i', 'h', 'j', 'k'},
	'i': {'u', 'o', 'j', 'k', 'l'},
	'o': {'i', 'p', 'k', 'l'},
	'p': {'o', 'l'},
	'a': {'q', 'w', 's', 'z'},
	's': {'w', 'e', 'a', 'd', 'z', 'x'},
	'd': {'e', 'r', 's', 'f', 'x', 'c'},
	'f': {'r', 't', 'd', 'g', 'c', 'v'},
	'g': {'t', 'y', 'f', 'h', 'v', 'b'},
	'h': {'y', 'u', 'g', 'j', 'b', 'n'},
	'j': {'u', 'i', 'h', 'k', 'n', 'm'},
	'k': {'i', 'o', 'j', 'l', 'm'},
	'l': {'o', 'p', 'k'},
	'z': {'a', 's', 'x'},
	'x': {'s', 'd', 'z', 'c'},
	'c': {'d', 'f', 'x', 'v'},
	'v': {'f', 'g', 'c', 'b'},
	'b': {'g', 'h', 'v', 'n'},
	'n': {'h', 'j', 'b', 'm'},
	'm': {'j', 'k', 'n'},
}

// typoFor returns a plausible mistyped character for r, or 0 when r has no
// neighbours on the map (digits, punctuation, uppercase).
func (p *pacer) typoFor(r rune) rune {
	neighbors, ok := qwertyNeighbors[r]
	if !ok {
		return 0
	}
	return neighbors[p.intn(len(neighbors))]
}
