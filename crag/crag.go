// Package crag wires rotation, gateway, vault, mcp, audit, codec, hwscore
// and bridgewatch into the single façade spec §6 describes as CRAG's
// external surface. New builds the httpapi.Server itself; cmd/cragd
// constructs one Core and serves Core.Handler().
package crag

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/nexus-shell/crag/audit"
	"github.com/nexus-shell/crag/bridgewatch"
	"github.com/nexus-shell/crag/codec"
	"github.com/nexus-shell/crag/gateway"
	"github.com/nexus-shell/crag/httpapi"
	"github.com/nexus-shell/crag/hwscore"
	"github.com/nexus-shell/crag/internal/config"
	"github.com/nexus-shell/crag/internal/logging"
	"github.com/nexus-shell/crag/mcp"
	"github.com/nexus-shell/crag/rotation"
	"github.com/nexus-shell/crag/vault"
)

// Core bundles every CRAG component constructed and wired together. Its
// zero value is not usable; build one with New.
type Core struct {
	Logger    *logging.Logger
	Audit     *audit.Log
	Vault     *vault.CredentialVault
	Registry  *rotation.FeatureRegistry
	Gate      *rotation.TierGate
	Dispatcher *rotation.Dispatcher
	State     *rotation.RotationState
	Gateway   *gateway.GatewayCore
	Router    *mcp.Router
	HTTP      *httpapi.Server
	Store     *codec.Store

	hwSampler    *hwscore.Sampler
	bridge       *bridgewatch.Watcher
	housekeeper  *gateway.Housekeeper
}

// Options controls New's construction. A nil Transport leaves the gateway
// without an upstream HTTP client (tests supply a fake); bridge-heartbeat
// watching runs only when EnableBridgeWatch is set and BridgeRedis.Client
// is non-nil.
type Options struct {
	Logger      *logging.Logger
	Transport   gateway.Transport
	Endpoints   []gateway.EndpointConfig
	Tools       []mcp.Tool
	BridgeRedis bridgewatch.Config
	EnableBridgeWatch bool
	EnableHWSampler   bool

	// ExportDB, if set, backs an optional codec.Store for persisting
	// export snapshots to Postgres. Nil leaves Core.Store nil.
	ExportDB *sql.DB
}

// New constructs every CRAG component and wires their event subscriptions,
// but does not start any background goroutines; call Run for that.
func New(opts Options) (*Core, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewFromEnv("crag")
	}

	defaults := config.LoadGatewayDefaults()

	auditLog := audit.NewLog(defaults.AuditMaxLogs)

	credVault, err := vault.NewCredentialVaultFromEnv(auditLog)
	if err != nil {
		return nil, err
	}

	registry := rotation.DefaultFeatureRegistry()
	gate := rotation.NewTierGate(registry, credVault.Has)
	dispatcher := rotation.NewDispatcher(logger)

	initial := rotation.Snapshot{Tier: rotation.TierFree, HardwareScore: 0, BridgeOnline: false}
	state := rotation.NewRotationState(gate, dispatcher, initial, defaults.BridgeStableMs)

	gw := gateway.NewGatewayCore(gateway.Config{
		Transport:        opts.Transport,
		Credential:       credVault,
		Audit:            auditLog,
		Logger:           logger,
		QueueConcurrency: defaults.QueueConcurrency,
		QueueGlobalQPS:   defaults.QueueGlobalQPS,
		CacheMaxSize:     defaults.CacheMaxSize,
		CacheDefaultTTL:  defaults.CacheTTL,
	})
	for _, ep := range opts.Endpoints {
		gw.RegisterEndpoint(ep)
	}
	state.Subscribe(func(evt rotation.Event) {
		if evt.Kind == rotation.EventRotate {
			gw.RevokeBoundEndpoints(evt.Delta.Removed)
		}
	})

	housekeeper, err := gateway.NewHousekeeper(gw, "*/5 * * * *", "*/15 * * * *", 10*time.Minute, logger)
	if err != nil {
		return nil, err
	}

	router := mcp.NewRouter(opts.Tools, credVault.Has, state, gw, auditLog)

	httpServer := httpapi.NewServer(state, auditLog, func() codec.Export {
		return buildExport(registry, gw, state, defaults)
	}, logger)

	core := &Core{
		Logger:      logger,
		Audit:       auditLog,
		Vault:       credVault,
		Registry:    registry,
		Gate:        gate,
		Dispatcher:  dispatcher,
		State:       state,
		Gateway:     gw,
		Router:      router,
		HTTP:        httpServer,
		housekeeper: housekeeper,
	}

	if opts.ExportDB != nil {
		core.Store = codec.NewStore(opts.ExportDB)
	}

	if opts.EnableHWSampler {
		core.hwSampler = hwscore.NewSampler(0, func(score rotation.HardwareScore) {
			state.Update(rotation.PartialUpdate{HardwareScore: &score})
		})
	}
	if opts.EnableBridgeWatch && opts.BridgeRedis.Client != nil {
		cfg := opts.BridgeRedis
		cfg.Logger = logger
		cfg.OnChange = func(online bool) {
			state.Update(rotation.PartialUpdate{Bridge: &online})
		}
		core.bridge = bridgewatch.NewWatcher(cfg)
	}

	return core, nil
}

// Run starts the background samplers/watchers that were enabled in
// Options, blocking until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	if c.hwSampler != nil {
		go c.hwSampler.Run(ctx)
	}
	if c.bridge != nil {
		go c.bridge.Run(ctx)
	}
	c.housekeeper.Start()
	defer c.housekeeper.Stop()
	<-ctx.Done()
}

// Handler exposes the HTTP surface for cmd/cragd to serve.
func (c *Core) Handler() http.Handler {
	return c.HTTP
}

func buildExport(registry *rotation.FeatureRegistry, gw *gateway.GatewayCore, state *rotation.RotationState, defaults config.GatewayDefaults) codec.Export {
	snap, effTier := state.State()

	endpoints := gw.Endpoints()
	summaries := make([]codec.EndpointSummary, 0, len(endpoints))
	circuits := make([]codec.CircuitConfig, 0, len(endpoints))
	for _, ep := range endpoints {
		summaries = append(summaries, codec.EndpointSummary{
			ID:        ep.ID,
			Name:      ep.Name,
			BaseURL:   ep.BaseURL,
			Type:      ep.Type,
			AuthKind:  authKindName(ep.Auth),
			Headers:   ep.DefaultHeaders,
			TimeoutMS: ep.TimeoutMS,
			Retry:     ep.RetryBudget,
			Enabled:   ep.Enabled,
		})
		circuits = append(circuits, codec.CircuitConfig{
			EndpointID:       ep.ID,
			FailureThreshold: ep.CircuitThreshold,
			ResetTimeoutMS:   ep.CircuitResetMS,
		})
	}

	return codec.Export{
		CodecVersion:    codec.CodecVersion,
		RegistryVersion: registry.Version(),
		Endpoints:       summaries,
		RateLimiter: codec.RateLimiterConfig{
			WindowMS:    int(defaults.RateLimiterWindow.Milliseconds()),
			MaxRequests: defaults.RateLimiterMaxRequests,
		},
		Circuits: circuits,
		Rotation: codec.RotationSnapshotFrom(snap, effTier),
	}
}

func authKindName(kind gateway.AuthKind) string {
	switch kind {
	case gateway.AuthBearer:
		return "bearer"
	case gateway.AuthAPIKey:
		return "api_key"
	default:
		return "none"
	}
}
