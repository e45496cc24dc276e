// Package clicks implements the asynchronous click pipeline: a bounded
// in-process queue feeding batched inserts, and the daily rollup job.
package clicks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkden/linkden/internal/metrics"
	"github.com/linkden/linkden/internal/model"
)

// ClickStore persists click event batches. *repository.Repository
// implements it.
type ClickStore interface {
	InsertClickEvents(ctx context.Context, events []*model.ClickEvent) error
}

// Hasher derives stable, non-reversible hashes of visitor attributes.
// Raw IPs and user agents never leave the request handler.
type Hasher struct {
	key []byte
}

// NewHasher creates a keyed hasher. An empty key still hashes, it just
// loses resistance to offline dictionary attacks on the stored values.
func NewHasher(key string) *Hasher {
	return &Hasher{key: []byte(key)}
}

// Hash returns the hex HMAC-SHA256 of s, or "" for empty input.
func (h *Hasher) Hash(s string) string {
	if s == "" {
		return ""
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

// Click is the raw material for one click event, as seen by the
// redirect handler.
type Click struct {
	LinkID      string
	TS          time.Time
	IP          string
	UserAgent   string
	Referrer    string
	CountryCode string
	HTTPStatus  int
	Audit       bool
}

// RecorderConfig tunes the click queue.
type RecorderConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder accepts clicks without blocking the redirect path and
// writes them to storage in batches. When the queue is full the
// newest click is dropped and counted, never the redirect.
type Recorder struct {
	store   ClickStore
	hasher  *Hasher
	cfg     RecorderConfig
	queue   chan *model.ClickEvent
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewRecorder creates a click recorder. Call Run to start draining.
func NewRecorder(store ClickStore, hasher *Hasher, cfg RecorderConfig, recorder metrics.Recorder, logger *slog.Logger) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Recorder{
		store:   store,
		hasher:  hasher,
		cfg:     cfg,
		queue:   make(chan *model.ClickEvent, cfg.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: recorder,
		logger:  logger.With("component", "clicks.recorder"),
	}
}

// Record enqueues one click. It hashes the visitor attributes up
// front, never blocks, and reports whether the click was accepted.
func (r *Recorder) Record(c Click) bool {
	if r.closed.Load() {
		return false
	}

	ts := c.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	event := &model.ClickEvent{
		ID:             ulid.Make().String(),
		LinkID:         c.LinkID,
		TS:             ts,
		IPHash:         r.hasher.Hash(c.IP),
		UAHash:         r.hasher.Hash(c.UserAgent),
		ReferrerDomain: ReferrerDomain(c.Referrer),
		CountryCode:    strings.ToUpper(c.CountryCode),
		HTTPStatus:     c.HTTPStatus,
		Audit:          c.Audit,
	}

	select {
	case r.queue <- event:
		r.metrics.IncClickQueued()
		return true
	default:
		r.metrics.IncClickDropped()
		return false
	}
}

// Run drains the queue until Shutdown is called. Batches are written
// when full or when the flush interval elapses.
func (r *Recorder) Run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.ClickEvent, 0, r.cfg.BatchSize)

	for {
		select {
		case event := <-r.queue:
			batch = append(batch, event)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-r.stop:
			// Drain whatever is already queued, then flush once.
			for {
				select {
				case event := <-r.queue:
					batch = append(batch, event)
					if len(batch) >= r.cfg.BatchSize {
						r.flush(batch)
						batch = batch[:0]
					}
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

// Shutdown stops intake, drains queued clicks and waits for the final
// flush, bounded by ctx.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.closed.Store(true)
	r.once.Do(func() { close(r.stop) })

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the number of clicks waiting to be stored.
func (r *Recorder) QueueDepth() int {
	return len(r.queue)
}

func (r *Recorder) flush(batch []*model.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.InsertClickEvents(ctx, batch); err != nil {
		r.metrics.IncClickFlushFailed()
		r.logger.Error("click batch insert failed", "batch_size", len(batch), "error", err)
		return
	}

	r.metrics.AddClicksStored(len(batch))
}

// ReferrerDomain extracts the lowercased host from a Referer value.
// Anything unparseable reduces to "".
func ReferrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}
	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
