package gateway

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexus-shell/crag/internal/logging"
)

// Housekeeper runs periodic maintenance against a GatewayCore: sweeping
// expired cache entries and garbage-collecting idle rate-limiter windows.
// Grounded on the reference pack's robfig/cron/v3 dependency, which the
// gateway itself otherwise has no scheduler for.
type Housekeeper struct {
	cron *cron.Cron
}

// NewHousekeeper schedules g's cache sweep and rate-limiter GC on the given
// cron expressions (standard 5-field syntax). An empty expression disables
// that job.
func NewHousekeeper(g *GatewayCore, cacheSweepSpec, rateGCSpec string, rateGCStaleAfter time.Duration, logger *logging.Logger) (*Housekeeper, error) {
	if logger == nil {
		logger = logging.Default()
	}
	c := cron.New()

	if cacheSweepSpec != "" {
		if _, err := c.AddFunc(cacheSweepSpec, func() {
			removed := g.cache.Sweep(time.Now())
			if removed > 0 {
				logger.WithFields(map[string]interface{}{"removed": removed}).Debug("gateway: cache sweep")
			}
		}); err != nil {
			return nil, err
		}
	}

	if rateGCSpec != "" {
		if _, err := c.AddFunc(rateGCSpec, func() {
			removed := g.limiter.GC(rateGCStaleAfter)
			if removed > 0 {
				logger.WithFields(map[string]interface{}{"removed": removed}).Debug("gateway: rate limiter GC")
			}
		}); err != nil {
			return nil, err
		}
	}

	return &Housekeeper{cron: c}, nil
}

// Start begins running scheduled jobs in the background.
func (h *Housekeeper) Start() { h.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (h *Housekeeper) Stop() { <-h.cron.Stop().Done() }
