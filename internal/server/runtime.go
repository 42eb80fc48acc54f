// Package server hosts the running pongogo instance: the runtime snapshot
// holder, the filesystem watcher that drives hot reload, and the stdio
// JSON-RPC transport.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pongogo/internal/config"
	"pongogo/internal/discovery"
	"pongogo/internal/knowledge"
	"pongogo/internal/knowledge/coreinstr"
	"pongogo/internal/logging"
	"pongogo/internal/routing"
	"pongogo/internal/store"
)

// manualReloadFloor is the minimum interval between manual reload
// requests. The watcher's forced reloads are not subject to it.
const manualReloadFloor = 10 * time.Second

// ReloadOutcome reports one reload attempt.
type ReloadOutcome struct {
	Success     bool    `json:"success"`
	Skipped     bool    `json:"skipped,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	WaitSeconds float64 `json:"wait_seconds,omitempty"`
	OldCount    int     `json:"old_count,omitempty"`
	NewCount    int     `json:"new_count,omitempty"`
	ElapsedMs   float64 `json:"elapsed_ms,omitempty"`
	Engine      string  `json:"engine,omitempty"`
}

// Runtime holds the live store and engine. Reads take a snapshot under a
// read lock; reload builds replacements off-lock and swaps them in one
// exclusive section, so requests never observe a half-built index.
type Runtime struct {
	cfg      *config.Config
	sub      *store.Substrate
	promoter *discovery.Promoter

	// sessionID identifies this server process. Requests that carry no
	// session of their own are attributed to it, so captured events from
	// one run always correlate.
	sessionID string

	mu     sync.RWMutex
	store  *knowledge.Store
	router routing.Router

	startedAt  time.Time
	lastReload time.Time

	manualMu   sync.Mutex
	lastManual time.Time
}

// NewRuntime loads the instruction store and constructs the configured
// engine. sub may be nil (no persistence: look-back and event capture
// disabled).
func NewRuntime(cfg *config.Config, sub *store.Substrate) (*Runtime, error) {
	r := &Runtime{
		cfg:       cfg,
		sub:       sub,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
	}
	if sub != nil {
		r.promoter = discovery.NewPromoter(sub, cfg.Knowledge.Path)
	}

	st, router, err := r.build()
	if err != nil {
		return nil, err
	}
	r.store = st
	r.router = router
	r.lastReload = time.Now()
	return r, nil
}

// build loads a fresh store and engine without touching the live ones.
func (r *Runtime) build() (*knowledge.Store, routing.Router, error) {
	st, err := knowledge.Load(coreinstr.FS(), r.cfg.Knowledge.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load instruction store: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, nil, fmt.Errorf("instruction store validation failed: %w", err)
	}

	var events routing.EventSource
	if r.sub != nil {
		events = r.sub
	}
	router, err := routing.NewRouter(r.cfg.Routing.Engine, r.cfg.Routing.Features,
		routing.Deps{Store: st, Events: events})
	if err != nil {
		return nil, nil, err
	}
	return st, router, nil
}

// snapshot returns the live store and engine under a read lock.
func (r *Runtime) snapshot() (*knowledge.Store, routing.Router) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store, r.router
}

// Store returns the live instruction store.
func (r *Runtime) Store() *knowledge.Store {
	st, _ := r.snapshot()
	return st
}

// EngineVersion returns the live engine's version string.
func (r *Runtime) EngineVersion() string {
	_, router := r.snapshot()
	return router.Version()
}

// Reload rebuilds the store and engine and swaps them in. Manual reloads
// (force=false) are throttled to one per manualReloadFloor; watcher-driven
// reloads pass force=true and always run.
func (r *Runtime) Reload(force bool) (*ReloadOutcome, error) {
	if !force {
		r.manualMu.Lock()
		since := time.Since(r.lastManual)
		if since < manualReloadFloor {
			wait := (manualReloadFloor - since).Seconds()
			r.manualMu.Unlock()
			logging.Watcher("Manual reload throttled, %.1fs remaining", wait)
			return &ReloadOutcome{
				Success:     false,
				Skipped:     true,
				Reason:      "spam_prevention",
				WaitSeconds: wait,
			}, nil
		}
		r.lastManual = time.Now()
		r.manualMu.Unlock()
	}

	start := time.Now()
	st, router, err := r.build()
	if err != nil {
		logging.Get(logging.CategoryWatcher).Error("Reload failed, keeping previous snapshot: %v", err)
		return nil, err
	}

	r.mu.Lock()
	oldCount := r.store.Count()
	r.store = st
	r.router = router
	r.lastReload = time.Now()
	r.mu.Unlock()

	elapsed := time.Since(start)
	logging.Watcher("Reload complete: %d -> %d instructions, engine %s, %s",
		oldCount, st.Count(), router.Version(), elapsed)
	return &ReloadOutcome{
		Success:   true,
		OldCount:  oldCount,
		NewCount:  st.Count(),
		ElapsedMs: float64(elapsed.Microseconds()) / 1000.0,
		Engine:    router.Version(),
	}, nil
}

// Route runs one routing request against the current snapshot, then
// performs the post-route side effects: guidance fulfillment tracking,
// artifact auto-promotion, and event capture. Side effects never fail the
// request.
func (r *Runtime) Route(message string, ctx *routing.Context, limit int) *routing.Result {
	_, router := r.snapshot()

	if ctx == nil {
		ctx = &routing.Context{}
	}
	if ctx.SessionID == "" {
		ctx.SessionID = r.sessionID
	}

	start := time.Now()
	result := router.Route(message, ctx, limit)
	latency := time.Since(start)

	if r.sub != nil && result.GuidanceAction != nil {
		if _, err := r.sub.InsertGuidanceFulfillment(
			ctx.SessionID, result.GuidanceAction.Action,
			result.GuidanceAction.GuidanceType, message); err != nil {
			logging.Get(logging.CategoryServer).Warn("Guidance fulfillment insert failed: %v", err)
		}
	}

	// Promotion keys on the message's keywords alone: a message can match
	// a discovered artifact even when no instruction routed.
	if r.promoter != nil {
		if keywords, ok := result.Analysis["keywords"].([]string); ok && len(keywords) > 0 {
			result.PromotedDiscoveries = r.promoter.AutoPromote(keywords)
		}
	}

	if r.sub != nil {
		routing.CaptureEvent(r.sub, router.Version(), message, ctx, result, latency)
	}

	return result
}

// Status reports runtime health for diagnostics.
func (r *Runtime) Status() map[string]interface{} {
	r.mu.RLock()
	st, router, lastReload := r.store, r.router, r.lastReload
	r.mu.RUnlock()

	status := map[string]interface{}{
		"version":        config.Version(),
		"session_id":     r.sessionID,
		"engine_version": router.Version(),
		"instructions":   st.Count(),
		"categories":     len(st.Categories()),
		"uptime_seconds": time.Since(r.startedAt).Seconds(),
		"last_reload":    lastReload.UTC().Format(time.RFC3339),
	}
	if r.sub != nil {
		if count, err := r.sub.EventCount(); err == nil {
			status["routing_events"] = count
		}
	}
	return status
}
