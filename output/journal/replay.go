package journal

import (
	"context"
	"fmt"
	"os"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

// ReplayResult is the outcome of replaying one run.
type ReplayResult struct {
	Run        string
	State      match.State
	Statements int
	// Rejected holds one error per statement that failed to decode or apply.
	Rejected []error
}

// Replay decodes the raw statements journaled by run, in arrival order, and
// reduces them from an empty state. An empty run selects the latest run.
// Each run starts from match.New, as the live feed does after a restart.
func Replay(ctx context.Context, path, run string) (ReplayResult, error) {
	if _, err := os.Stat(path); err != nil {
		return ReplayResult{}, errors.WrapInvalid(err, "journal", "Replay", "stat journal")
	}

	store, err := Open(path)
	if err != nil {
		return ReplayResult{}, err
	}
	defer store.Close()

	if run == "" {
		runs, err := store.Runs(ctx)
		if err != nil {
			return ReplayResult{}, err
		}
		if len(runs) == 0 {
			return ReplayResult{State: match.New()}, nil
		}
		run = runs[len(runs)-1]
	}

	entries, err := store.Statements(ctx, run)
	if err != nil {
		return ReplayResult{}, err
	}

	res := ReplayResult{Run: run, Statements: len(entries)}
	events := make([]protocol.Event, 0, len(entries))
	for _, e := range entries {
		for _, r := range protocol.Parse(e.Raw, e.ArrivedAt) {
			if r.Err != nil {
				res.Rejected = append(res.Rejected, fmt.Errorf("seq %d: %w", e.Seq, r.Err))
				continue
			}
			events = append(events, r.Event)
		}
	}

	state, rejected := match.Replay(events)
	res.State = state
	res.Rejected = append(res.Rejected, rejected...)
	return res, nil
}
