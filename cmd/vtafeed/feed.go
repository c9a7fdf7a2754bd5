package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
	"github.com/reStrike-d-o-o/reStrike-VTA/config"
	"github.com/reStrike-d-o-o/reStrike-VTA/health"
	"github.com/reStrike-d-o-o/reStrike-VTA/input/udp"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/output/journal"
	natsout "github.com/reStrike-d-o-o/reStrike-VTA/output/nats"
	"github.com/reStrike-d-o-o/reStrike-VTA/output/websocket"
	"github.com/reStrike-d-o-o/reStrike-VTA/pipeline"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

// Feed wires the listener, pipeline, publisher and outputs of one court.
type Feed struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	publisher *publisher.Publisher
	pipeline  *pipeline.Pipeline
	listener  *udp.Listener
	group     *component.Group
	monitor   *health.Monitor
	metrics   *metric.Server
}

// buildFeed creates every enabled component. Nothing binds until Start.
func buildFeed(cfg *config.Config, logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := metric.NewMetricsRegistry()
	pub := publisher.New(
		publisher.WithQueueSize(cfg.Publisher.QueueSize),
		publisher.WithMetrics(registry),
		publisher.WithLogger(logger.With("component", "publisher")),
	)
	pipe := pipeline.New(pipeline.Deps{
		Publisher:       pub,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "pipeline"),
	})

	f := &Feed{
		logger:    logger,
		registry:  registry,
		publisher: pub,
		pipeline:  pipe,
		group:     component.NewGroup(logger.With("component", "lifecycle")),
		monitor:   health.NewMonitor(appName),
	}

	// Outputs subscribe before the listener starts so no notification is missed.
	if cfg.WebSocket.Enabled {
		f.group.Add(websocket.NewOutput(websocket.OutputDeps{
			Name:            "overlay",
			Config:          cfg.WebSocket,
			Publisher:       pub,
			States:          pipe,
			MetricsRegistry: registry,
			Logger:          logger.With("component", "websocket", "name", "overlay"),
		}))
	}
	if cfg.NATS.Enabled {
		f.group.Add(natsout.NewOutput(natsout.OutputDeps{
			Name:            "nats",
			Config:          cfg.NATS,
			Publisher:       pub,
			MetricsRegistry: registry,
			Logger:          logger.With("component", "nats", "name", "nats"),
		}))
	}
	if cfg.Journal.Enabled {
		f.group.Add(journal.NewOutput(journal.OutputDeps{
			Name:            "journal",
			Config:          cfg.Journal,
			Publisher:       pub,
			MetricsRegistry: registry,
			Logger:          logger.With("component", "journal", "name", "journal"),
		}))
	}

	f.listener = udp.NewListener(udp.ListenerDeps{
		Name:            "pss-listener",
		Config:          cfg.Listener,
		Handler:         pipe,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "udp", "name", "pss-listener"),
	})
	f.group.Add(f.listener)

	f.monitor.Watch(f.group.Discoverables()...)
	f.monitor.AddCheck("scoring_link", scoringLinkCheck(pipe))

	if cfg.Metrics.Enabled {
		f.metrics = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry,
			metric.WithHandler("/health", f.monitor.Handler()),
			metric.WithHandler("/state", stateHandler(pipe)),
		)
	}

	return f, nil
}

// Start starts the components in order, listener last, then the metrics server.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.group.Start(ctx); err != nil {
		return err
	}
	if f.metrics != nil {
		if err := f.metrics.Start(); err != nil {
			_ = f.group.Stop(5 * time.Second)
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return nil
}

// Stop stops the listener first so the outputs see every notification, then
// the outputs, the metrics server and the publisher.
func (f *Feed) Stop(timeout time.Duration) error {
	var errs []error
	if err := f.group.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	if f.metrics != nil {
		if err := f.metrics.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// ListenAddr returns the bound UDP address, or "" before Start.
func (f *Feed) ListenAddr() string {
	if addr := f.listener.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// MetricsAddr returns the metrics URL, or "" when disabled.
func (f *Feed) MetricsAddr() string {
	if f.metrics == nil {
		return ""
	}
	return f.metrics.Address()
}

// Stats returns the pipeline counters
func (f *Feed) Stats() pipeline.Stats {
	return f.pipeline.Stats()
}

// Health aggregates component health and the scoring link
func (f *Feed) Health() health.Status {
	return f.monitor.Status()
}

// scoringLinkCheck reports the scoring system's connection notices. A missing
// or lost link degrades the feed without failing it.
func scoringLinkCheck(pipe *pipeline.Pipeline) health.Check {
	return func() health.Status {
		link := pipe.State().Link
		switch {
		case !link.Seen:
			return health.NewDegraded("scoring_link", "No connection notice received")
		case link.Connected:
			return health.NewHealthy("scoring_link", fmt.Sprintf("Scoring system connected on port %d", link.Port))
		default:
			return health.NewDegraded("scoring_link", fmt.Sprintf("Scoring system disconnected from port %d", link.Port))
		}
	}
}

// stateHandler serves the current match state with the pipeline counters
func stateHandler(pipe *pipeline.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			State match.State    `json:"state"`
			Stats pipeline.Stats `json:"stats"`
		}{pipe.State(), pipe.Stats()})
	})
}
