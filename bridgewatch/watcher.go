// Package bridgewatch watches a Redis-published bridge heartbeat key and
// feeds bridge online/offline transitions into RotationState.Update. This
// is a supplemented feature: the distilled spec treats bridge_online as an
// externally-supplied input, but a complete implementation needs a
// concrete transport for it, and the reference pack's redis/go-redis/v9
// client is the natural fit for a lightweight cross-process heartbeat.
package bridgewatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-shell/crag/internal/logging"
)

// Watcher polls a Redis key for a recent heartbeat timestamp and reports
// bridge presence through onChange. RotationState itself owns the
// online->offline hysteresis (spec §4.3's bridge.stable_ms); Watcher only
// reports what it currently observes.
type Watcher struct {
	client      *redis.Client
	key         string
	pollEvery   time.Duration
	staleAfter  time.Duration
	onChange    func(online bool)
	logger      *logging.Logger
}

// Config bundles Watcher's construction parameters.
type Config struct {
	Client     *redis.Client
	Key        string
	PollEvery  time.Duration
	StaleAfter time.Duration
	OnChange   func(online bool)
	Logger     *logging.Logger
}

// NewWatcher constructs a Watcher from cfg, applying sensible defaults.
func NewWatcher(cfg Config) *Watcher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Key == "" {
		cfg.Key = "crag:bridge:heartbeat"
	}
	return &Watcher{
		client:     cfg.Client,
		key:        cfg.Key,
		pollEvery:  cfg.PollEvery,
		staleAfter: cfg.StaleAfter,
		onChange:   cfg.OnChange,
		logger:     cfg.Logger,
	}
}

// Run polls until ctx is cancelled, invoking onChange whenever observed
// bridge presence flips.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	lastOnline := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := w.probe(ctx)
			if online != lastOnline {
				lastOnline = online
				if w.onChange != nil {
					w.onChange(online)
				}
			}
		}
	}
}

func (w *Watcher) probe(ctx context.Context) bool {
	ts, err := w.client.Get(ctx, w.key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		w.logger.WithError(err).Warn("bridgewatch: heartbeat probe failed")
		return false
	}

	seenAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return false
	}
	return time.Since(seenAt) <= w.staleAfter
}

// Heartbeat publishes a fresh heartbeat timestamp under key, called by the
// bridge process itself (not by Watcher, which only reads).
func Heartbeat(ctx context.Context, client *redis.Client, key string) error {
	if key == "" {
		key = "crag:bridge:heartbeat"
	}
	return client.Set(ctx, key, time.Now().Format(time.RFC3339Nano), 0).Err()
}
