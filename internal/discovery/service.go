package discovery

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corvidlabs/checkerbase/internal/registry"
)

// CandidateTTL and VerifiedTTL are the default cache lifetimes for
// discovered candidates and manually verified configs.
const (
	CandidateTTL     = 7 * 24 * time.Hour
	VerifiedTTL      = 30 * 24 * time.Hour
	DefaultStrategyTimeout = 10 * time.Second
)

// Registry is the subset of *registry.Registry the service depends on,
// narrowed for testability.
type Registry interface {
	GetVerified(domain string) (registry.ServerConfig, bool, error)
	SetVerified(domain string, cfg registry.ServerConfig, ttl time.Duration) error
	GetCandidates(domain string) ([]registry.ServerConfig, error)
	SetCandidates(domain string, configs []registry.ServerConfig, ttl time.Duration) error
}

// Service orchestrates strategy fan-out, deduplication, caching and
// single-flight coordination for per-domain mail server lookups.
type Service struct {
	store      Registry
	strategies []Strategy
	tracker    *PendingTracker
	logger     *slog.Logger
}

// New constructs a Service. All strategies run concurrently on each
// lookup, and the merged candidates are sorted by priority afterwards.
func New(store Registry, strategies []Strategy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &Service{
		store:      store,
		strategies: strategies,
		tracker:    NewPendingTracker(),
		logger:     logger,
	}
}

// DefaultStrategies returns the four spec strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		DirectoryLookupStrategy{},
		WellKnownStrategy{},
		MXProviderStrategy{},
		ProbeStrategy{},
	}
}

// GetCandidates returns server configs for domain, following the
// fast-path/cached-path/single-flight/fan-out lookup order.
func (s *Service) GetCandidates(ctx context.Context, domain string) ([]registry.ServerConfig, error) {
	domain = strings.ToLower(domain)

	if cfg, ok, err := s.store.GetVerified(domain); err != nil {
		s.logger.Warn("registry get_verified failed, degrading to no cache", "domain", domain, "error", err)
	} else if ok {
		return []registry.ServerConfig{cfg}, nil
	}

	if cfgs, err := s.store.GetCandidates(domain); err != nil {
		s.logger.Warn("registry get_candidates failed, degrading to no cache", "domain", domain, "error", err)
	} else if len(cfgs) > 0 {
		registry.SortByPriority(cfgs)
		return cfgs, nil
	}

	isFirst, wait := s.tracker.GetOrCreate(domain)
	if !isFirst {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return wait()
	}

	cfgs, err := s.discoverAndPersist(ctx, domain)
	if ctx.Err() != nil {
		s.tracker.Cancel(domain, ctx.Err())
		return nil, ctx.Err()
	}
	if err != nil {
		s.tracker.Fail(domain, err)
		return nil, err
	}
	s.tracker.Complete(domain, cfgs)
	return cfgs, nil
}

func (s *Service) discoverAndPersist(ctx context.Context, domain string) ([]registry.ServerConfig, error) {
	var (
		mu  sync.Mutex
		all []registry.ServerConfig
		wg  sync.WaitGroup
	)

	for _, strat := range s.strategies {
		wg.Add(1)
		go func(strat Strategy) {
			defer wg.Done()
			stratCtx, cancel := context.WithTimeout(ctx, DefaultStrategyTimeout)
			defer cancel()

			found := safeDiscover(stratCtx, strat, domain)

			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
		}(strat)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	deduped := dedupe(all)
	if len(deduped) > 0 {
		if err := s.store.SetCandidates(domain, deduped, CandidateTTL); err != nil {
			s.logger.Warn("registry set_candidates failed", "domain", domain, "error", err)
		}
	}
	return deduped, nil
}

// safeDiscover recovers from a strategy panic, converting it into an
// empty result: strategy failures are swallowed at the strategy boundary.
func safeDiscover(ctx context.Context, strat Strategy, domain string) (result []registry.ServerConfig) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
		}
	}()
	return strat.Discover(ctx, domain)
}

// dedupe groups by (lower(hostname), port), keeps the lowest-priority
// entry per group, and sorts the result by priority ascending.
func dedupe(configs []registry.ServerConfig) []registry.ServerConfig {
	type key struct {
		host string
		port int
	}
	best := make(map[key]registry.ServerConfig)
	order := make([]key, 0, len(configs))
	for _, c := range configs {
		k := key{host: strings.ToLower(c.Hostname), port: c.Port}
		existing, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = c
			continue
		}
		if c.Priority < existing.Priority {
			best[k] = c
		}
	}
	out := make([]registry.ServerConfig, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// MarkVerified records domain's verified config, current timestamp, and
// VerifiedTTL. Subsequent fast-path lookups return only this config
// until it expires.
func (s *Service) MarkVerified(domain string, cfg registry.ServerConfig) error {
	return s.store.SetVerified(strings.ToLower(domain), cfg, VerifiedTTL)
}
