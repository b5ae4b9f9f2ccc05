package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"teaka/internal/logger"
	"teaka/internal/pkg/circuit"
	"teaka/internal/pkg/symbol"
)

type RouterConfig struct {
	DefaultVenue     symbol.Venue
	BreakerThreshold int
	BreakerTimeout   time.Duration
	// Overrides pins individual symbols to a venue. Keys are matched in
	// symbol.Canonical form.
	Overrides map[string]symbol.Venue
}

type route struct {
	exec    Executor
	breaker *circuit.CircuitBreaker
}

// Router picks a venue by symbol naming convention and guards each venue
// with a circuit breaker. It satisfies Executor.
type Router struct {
	cfg RouterConfig

	mu     sync.RWMutex
	routes map[symbol.Venue]route
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.DefaultVenue == "" {
		cfg.DefaultVenue = symbol.VenuePaper
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	return &Router{cfg: cfg, routes: make(map[symbol.Venue]route)}
}

func (r *Router) Name() string { return "router" }

// Register installs exec for venue, replacing any previous executor.
func (r *Router) Register(venue symbol.Venue, exec Executor) {
	if exec == nil {
		return
	}
	cb := circuit.NewCircuitBreaker(fmt.Sprintf("broker:%s", venue), r.cfg.BreakerThreshold, r.cfg.BreakerTimeout)
	r.mu.Lock()
	r.routes[venue] = route{exec: exec, breaker: cb}
	r.mu.Unlock()
	logger.Infof("broker: venue %s -> %s", venue, exec.Name())
}

func (r *Router) Venues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for v := range r.routes {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}

// VenueFor resolves the venue for symbol; unregistered venues fall back to
// the default.
func (r *Router) VenueFor(sym string) symbol.Venue {
	if v, ok := r.cfg.Overrides[symbol.Canonical(sym)]; ok {
		return v
	}
	venue := symbol.VenueFor(sym, r.cfg.DefaultVenue)
	r.mu.RLock()
	_, ok := r.routes[venue]
	r.mu.RUnlock()
	if !ok {
		return r.cfg.DefaultVenue
	}
	return venue
}

func (r *Router) Execute(ctx context.Context, order Order) (*Fill, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	venue := r.VenueFor(order.Symbol)
	r.mu.RLock()
	rt, ok := r.routes[venue]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, venue)
	}
	var fill *Fill
	err := rt.breaker.Do(func() error {
		var execErr error
		fill, execErr = rt.exec.Execute(ctx, order)
		return execErr
	}, countsAgainstVenue)
	if errors.Is(err, circuit.ErrOpen) {
		return nil, &Error{Code: CodeCircuitOpen, Message: "venue temporarily disabled after repeated failures", Venue: string(venue)}
	}
	if err != nil {
		be := AsError(err)
		if be.Venue == "" {
			be = &Error{Code: be.Code, Message: be.Message, Venue: string(venue)}
		}
		return nil, be
	}
	if fill != nil && fill.Venue == "" {
		fill.Venue = string(venue)
	}
	return fill, nil
}
