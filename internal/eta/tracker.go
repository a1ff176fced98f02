package eta

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	maxSamples   = 20
	defaultLines = 50
)

type entry struct {
	Lines     []int     `json:"lines"`
	Durations []float64 `json:"durations"`
}

// Tracker keeps per-command history of output line counts and durations
// so progress estimates improve over time. History is persisted as JSON
// under the config directory; a missing or corrupt file just means the
// tracker starts from defaults.
type Tracker struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	history map[string]*entry
}

// New creates a Tracker backed by the given filesystem and history file
func New(fs afero.Fs, path string) *Tracker {
	t := &Tracker{fs: fs, path: path, history: make(map[string]*entry)}
	t.load()
	return t
}

// Key derives a short history key from a command line, e.g.
// ["pacman", "-S", "--noconfirm", "firefox"] -> "pacman_-S".
func Key(argv []string) string {
	if len(argv) == 0 {
		return "unknown"
	}
	base := filepath.Base(argv[0])
	for _, arg := range argv[1:] {
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") {
			return base + "_" + arg
		}
	}
	return base
}

// EstimateLines predicts how many output lines a command will produce
func (t *Tracker) EstimateLines(argv []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.history[Key(argv)]; ok && len(e.Lines) > 0 {
		if m := medianInt(e.Lines); m > 5 {
			return m
		}
		return 5
	}
	return defaultLines
}

// EstimateDuration predicts total duration, or 0 when no history exists
func (t *Tracker) EstimateDuration(argv []string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.history[Key(argv)]; ok && len(e.Durations) > 0 {
		return time.Duration(medianFloat(e.Durations) * float64(time.Second))
	}
	return 0
}

// Record stores a completed run for future predictions
func (t *Tracker) Record(argv []string, lines int, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key(argv)
	e, ok := t.history[key]
	if !ok {
		e = &entry{}
		t.history[key] = e
	}
	e.Lines = capSamples(append(e.Lines, lines))
	e.Durations = capSamplesFloat(append(e.Durations, duration.Seconds()))

	t.save()
}

func (t *Tracker) load() {
	data, err := afero.ReadFile(t.fs, t.path)
	if err != nil {
		return
	}
	var h map[string]*entry
	if err := json.Unmarshal(data, &h); err != nil {
		return
	}
	t.history = h
}

func (t *Tracker) save() {
	data, err := json.Marshal(t.history)
	if err != nil {
		return
	}
	if err := t.fs.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return
	}
	_ = afero.WriteFile(t.fs, t.path, data, 0o644)
}

func capSamples(s []int) []int {
	if len(s) > maxSamples {
		return s[len(s)-maxSamples:]
	}
	return s
}

func capSamplesFloat(s []float64) []float64 {
	if len(s) > maxSamples {
		return s[len(s)-maxSamples:]
	}
	return s
}

func medianInt(s []int) int {
	c := append([]int{}, s...)
	sort.Ints(c)
	return c[len(c)/2]
}

func medianFloat(s []float64) float64 {
	c := append([]float64{}, s...)
	sort.Float64s(c)
	return c[len(c)/2]
}
