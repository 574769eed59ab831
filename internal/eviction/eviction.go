package eviction

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/tuist/fabrik/internal/meta"
)

// DefaultConcurrency is the default number of parallel deletions per run.
const DefaultConcurrency = 8

// Store is the storage surface the worker evicts from.
type Store interface {
	// Objects returns eviction candidates with their metadata.
	Objects() ([]meta.Object, error)
	// Remove deletes an artifact and its metadata row.
	Remove(id string) error
}

// Config controls when and what the worker evicts.
type Config struct {
	// MaxSizeBytes is the cache size limit. Zero disables eviction.
	MaxSizeBytes int64
	// Policy selects the victim order. Defaults to LRU.
	Policy Policy
	// DefaultTTL is the artifact lifetime used by the TTL policy.
	DefaultTTL time.Duration
	// TargetRatio is the fraction of MaxSizeBytes to evict down to.
	// Defaults to 0.9.
	TargetRatio float64
	// MaxPerRun bounds evictions per run. Defaults to 1000.
	MaxPerRun int
	// CheckInterval is how often the worker checks the cache size.
	// Defaults to 30s.
	CheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Policy == "" {
		c.Policy = LRU
	}
	if c.TargetRatio <= 0 || c.TargetRatio > 1 {
		c.TargetRatio = 0.9
	}
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = 1000
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 7 * 24 * time.Hour
	}
	return c
}

// TargetSizeBytes is the size the worker evicts down to.
func (c Config) TargetSizeBytes() int64 {
	return int64(float64(c.MaxSizeBytes) * c.TargetRatio)
}

// ParseSize parses a human size string ("5GB", "100MB", "1024") to bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if rest, ok := strings.CutSuffix(s, unit.suffix); ok {
			s, mult = strings.TrimSpace(rest), unit.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

// ParseTTL parses a TTL string ("7d", "24h", "30m", "60s") to a duration.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(days), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		// Bare numbers are seconds.
		n, nerr := strconv.ParseInt(s, 10, 64)
		if nerr != nil {
			return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		return time.Duration(n) * time.Second, nil
	}
	return d, nil
}

// Stats counts the worker's activity.
type Stats struct {
	Runs         atomic.Int64
	Evictions    atomic.Int64
	BytesEvicted atomic.Int64
}

// Worker runs size-bounded eviction in the background.
type Worker struct {
	store       Store
	cfg         Config
	concurrency int
	logger      *slog.Logger
	stats       Stats

	trigger  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker starts a background eviction worker.
func NewWorker(store Store, cfg Config, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	w := &Worker{
		store:       store,
		cfg:         cfg.withDefaults(),
		concurrency: concurrency,
		logger:      logger,
		trigger:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go w.run()
	return w
}

// Trigger requests an immediate eviction check without blocking.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Stats exposes the worker's counters.
func (w *Worker) Stats() *Stats { return &w.stats }

// Close stops the worker and waits for an in-flight run to finish.
func (w *Worker) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.runOnce()
		case <-w.trigger:
			w.runOnce()
		}
	}
}

func (w *Worker) runOnce() {
	w.stats.Runs.Add(1)

	objs, err := w.store.Objects()
	if err != nil {
		w.logger.Debug("eviction candidate scan failed", "error", err)
		return
	}

	var total int64
	for _, o := range objs {
		total += o.Size
	}
	if total <= w.cfg.MaxSizeBytes {
		return
	}

	now := time.Now().Unix()
	victims := w.cfg.Policy.rank(objs, w.cfg.DefaultTTL, now)

	target := w.cfg.TargetSizeBytes()
	var selected []meta.Object
	for _, o := range victims {
		if total <= target || len(selected) >= w.cfg.MaxPerRun {
			break
		}
		selected = append(selected, o)
		total -= o.Size
	}
	if len(selected) == 0 {
		return
	}

	var evicted, bytes atomic.Int64
	p := pool.New().WithMaxGoroutines(w.concurrency)
	for _, o := range selected {
		p.Go(func() {
			if err := w.store.Remove(o.ID); err != nil {
				w.logger.Debug("eviction delete failed", "id", o.ID, "error", err)
				return
			}
			evicted.Add(1)
			bytes.Add(o.Size)
		})
	}
	p.Wait()

	w.stats.Evictions.Add(evicted.Load())
	w.stats.BytesEvicted.Add(bytes.Load())
	w.logger.Info("evicted artifacts",
		"policy", string(w.cfg.Policy),
		"count", evicted.Load(),
		"bytes", bytes.Load())
}
