package match

import (
	stderrors "errors"
	"fmt"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

var (
	// ErrUnhandledEvent is returned for event types the reducer does not know.
	ErrUnhandledEvent = stderrors.New("unhandled event")
	// ErrOutOfRange is returned when an event addresses a slot that does not exist.
	ErrOutOfRange = stderrors.New("slot out of range")
)

// Reduce applies ev to s and returns the new state. It is pure: the same
// state and event always give the same result, and s itself is never changed.
// On error the returned state equals s.
func Reduce(s State, ev protocol.Event) (State, error) {
	next := s

	switch e := ev.(type) {
	case protocol.MatchLoaded:
		next = New()
		next.Link = s.Link
		next.Loaded = true

	case protocol.MatchMeta:
		next.Meta = Meta{Number: e.Number, Phase: e.Phase, WeightClass: e.WeightClass}

	case protocol.AthleteInfo:
		i, err := athleteIndex(e.Athlete)
		if err != nil {
			return s, err
		}
		next.Athletes[i] = AthleteProfile{ShortName: e.ShortName, LongName: e.LongName, Country: e.Country}

	case protocol.Ready:
		next.Ready = true

	case protocol.Round:
		next.Round = e.Number

	case protocol.Clock:
		next.Clock.Remaining = e.Remaining
		switch e.Flag {
		case protocol.FlagStart:
			next.Clock.Running = true
		case protocol.FlagStop:
			next.Clock.Running = false
		}

	case protocol.Point:
		// Points are informational; totals only move through sc1/sc2.

	case protocol.HitLevel:
		i, err := athleteIndex(e.Athlete)
		if err != nil {
			return s, err
		}
		next.HitLevels[i] = e.Level

	case protocol.SubScore:
		i, err := athleteIndex(e.Athlete)
		if err != nil {
			return s, err
		}
		if e.Round < 1 || e.Round > len(next.SubScores) {
			return s, fmt.Errorf("sub-score round %d: %w", e.Round, ErrOutOfRange)
		}
		next.SubScores[e.Round-1][i] = e.Value

	case protocol.Score:
		i, err := athleteIndex(e.Athlete)
		if err != nil {
			return s, err
		}
		next.Scores[i] = e.Value

	case protocol.WarningGamJeom:
		for i := range next.Warnings {
			if e.Present[i] {
				next.Warnings[i] = e.Counts[i]
			}
		}

	case protocol.Injury:
		slot := int(e.Athlete)
		if slot < 0 || slot >= len(next.Injuries) {
			return s, fmt.Errorf("injury slot %d: %w", slot, ErrOutOfRange)
		}
		next.Injuries[slot] = applyInjury(next.Injuries[slot], e)

	case protocol.Challenge:
		p := int(e.Party)
		if p < 0 || p >= len(next.Challenges) {
			return s, fmt.Errorf("challenge party %d: %w", p, ErrOutOfRange)
		}
		next.Challenges[p] = e.Status

	case protocol.Break:
		next.Break.Remaining = e.Remaining
		next.Break.Ended = e.Flag == protocol.FlagStopEnd
		switch e.Flag {
		case protocol.FlagStart:
			next.Break.Running = true
		case protocol.FlagStop, protocol.FlagStopEnd:
			next.Break.Running = false
		}

	case protocol.RoundWinners:
		next.RoundWinners = e.Winners

	case protocol.MatchWinner:
		if e.Name != "" {
			next.Winner.Name = e.Name
		}
		if e.Score != "" {
			next.Winner.Score = e.Score
		}

	case protocol.ProvisionalWinner:
		next.ProvisionalWinner = e.Athlete

	case protocol.AdvantageVote:
		next.AdvantageVote = e.Value

	case protocol.Connection:
		next.Link = Link{Seen: true, Port: e.Port, Connected: e.Connected}

	default:
		return s, errors.WrapInvalid(fmt.Errorf("%T: %w", ev, ErrUnhandledEvent), "match", "Reduce", "dispatch event")
	}

	return next, nil
}

func athleteIndex(a protocol.Athlete) (int, error) {
	i := a.Index()
	if i < 0 {
		return 0, fmt.Errorf("athlete %d: %w", int(a), ErrOutOfRange)
	}
	return i, nil
}

func applyInjury(c InjuryClock, e protocol.Injury) InjuryClock {
	c.Remaining = e.Remaining
	switch e.Flag {
	case protocol.FlagShow:
		c.Visible = true
	case protocol.FlagHide:
		c.Visible = false
	case protocol.FlagStart:
		c.Running = true
	case protocol.FlagStop:
		c.Running = false
	case protocol.FlagReset:
		c.Visible = false
		c.Running = false
	}
	return c
}

// Reducer owns the live match state. It is not safe for concurrent use; the
// ingest goroutine is its only writer and readers receive copies.
type Reducer struct {
	state State
}

// NewReducer starts from the empty state.
func NewReducer() *Reducer {
	return &Reducer{state: New()}
}

// Apply reduces ev into the owned state and returns the resulting snapshot.
func (r *Reducer) Apply(ev protocol.Event) (State, error) {
	next, err := Reduce(r.state, ev)
	if err != nil {
		return r.state, err
	}
	r.state = next
	return next, nil
}

// State returns a copy of the current state.
func (r *Reducer) State() State {
	return r.state
}

// Replay folds events into a fresh state in order. Events the reducer
// rejects are skipped and their errors returned alongside the final state.
func Replay(events []protocol.Event) (State, []error) {
	s := New()
	var errs []error
	for _, ev := range events {
		next, err := Reduce(s, ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s = next
	}
	return s, errs
}
