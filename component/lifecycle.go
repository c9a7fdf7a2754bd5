package component

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent defines components that support full lifecycle management:
//   - Initialize() error                     // Setup/validate only, NO context
//   - Start(ctx context.Context) error      // Start with context passed through
//   - Stop(timeout time.Duration) error     // Stop with timeout for graceful shutdown
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent tracks a component and its lifecycle state
type ManagedComponent struct {
	Component LifecycleComponent
	State     State

	// StartOrder tracks the order components were started for reverse shutdown
	StartOrder int

	// LastError tracks the last error that occurred during lifecycle operations
	LastError error
}

// Group starts components in the order they were added and stops them in
// reverse. The first failure aborts Start and stops what already runs.
type Group struct {
	mu         sync.Mutex
	components []*ManagedComponent
	started    int
	logger     *slog.Logger
}

// NewGroup creates an empty group
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default().With("component", "lifecycle")
	}
	return &Group{logger: logger}
}

// Add appends a component. Adding after Start is not supported.
func (g *Group) Add(c LifecycleComponent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.components = append(g.components, &ManagedComponent{Component: c, State: StateCreated})
}

// Start initializes and starts every component in order.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, mc := range g.components {
		name := mc.Component.Meta().Name

		if err := mc.Component.Initialize(); err != nil {
			mc.State, mc.LastError = StateFailed, err
			g.stopLocked(5 * time.Second)
			return errors.Wrap(err, "Group", "Start", fmt.Sprintf("initialize %s", name))
		}
		mc.State = StateInitialized

		if err := mc.Component.Start(ctx); err != nil {
			mc.State, mc.LastError = StateFailed, err
			g.stopLocked(5 * time.Second)
			return errors.Wrap(err, "Group", "Start", fmt.Sprintf("start %s", name))
		}
		g.started++
		mc.State, mc.StartOrder = StateStarted, g.started
		g.logger.Info("Component started", "name", name, "type", mc.Component.Meta().Type)
	}
	return nil
}

// Stop stops started components in reverse start order, giving each the
// full timeout. All stop errors are joined.
func (g *Group) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopLocked(timeout)
}

func (g *Group) stopLocked(timeout time.Duration) error {
	var errs []error
	for i := len(g.components) - 1; i >= 0; i-- {
		mc := g.components[i]
		if mc.State != StateStarted {
			continue
		}
		name := mc.Component.Meta().Name
		if err := mc.Component.Stop(timeout); err != nil {
			mc.State, mc.LastError = StateFailed, err
			g.logger.Warn("Component stop failed", "name", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		mc.State = StateStopped
		g.logger.Info("Component stopped", "name", name)
	}
	return stderrors.Join(errs...)
}

// Components returns a snapshot of the managed components
func (g *Group) Components() []ManagedComponent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ManagedComponent, len(g.components))
	for i, mc := range g.components {
		out[i] = *mc
	}
	return out
}

// Discoverables returns the components for health aggregation
func (g *Group) Discoverables() []Discoverable {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Discoverable, len(g.components))
	for i, mc := range g.components {
		out[i] = mc.Component
	}
	return out
}

// AsLifecycleComponent safely casts a component to LifecycleComponent
func AsLifecycleComponent(comp Discoverable) (LifecycleComponent, bool) {
	lc, ok := comp.(LifecycleComponent)
	return lc, ok
}
