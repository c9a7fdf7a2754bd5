package protocol

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var roundLabels = [3]string{"rd1", "rd2", "rd3"}

const (
	loadedLiteral = "FightLoaded"
	readyLiteral  = "FightReady"
)

// Result pairs a statement with its decoded event or the reason it was rejected.
type Result struct {
	Statement Statement
	Event     Event
	Err       *DecodeError
}

// Parse tokenizes payload and decodes every statement in order.
func Parse(payload string, at time.Time) []Result {
	stmts := Tokenize(payload)
	results := make([]Result, 0, len(stmts))
	for _, st := range stmts {
		ev, err := Decode(st, at)
		r := Result{Statement: st, Event: ev}
		var de *DecodeError
		if stderrors.As(err, &de) {
			r.Err = de
		}
		results = append(results, r)
	}
	return results
}

// Decode turns one statement into an Event stamped with at. Every failure is
// a *DecodeError.
func Decode(st Statement, at time.Time) (Event, error) {
	if st.Tag == ConnectionTag {
		return decodeConnection(st, at)
	}
	if st.Tag == "" {
		return nil, unknownTag(st, "text before first tag")
	}
	spec, ok := registry[st.Tag]
	if !ok {
		return nil, unknownTag(st, "tag not registered")
	}
	return spec.decode(st, at)
}

func subScoreTag(a Athlete, round int) string {
	return fmt.Sprintf("s%d%d", int(a), round)
}

// parseCount accepts a non-negative decimal integer.
func parseCount(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseClock accepts "m:ss", "mm:ss" or bare seconds.
func ParseClock(s string) (ClockTime, error) {
	minutes, seconds, found := strings.Cut(s, ":")
	if !found {
		n, ok := parseCount(s)
		if !ok {
			return 0, fmt.Errorf("clock %q is not m:ss or seconds", s)
		}
		return Seconds(n), nil
	}

	m, ok := parseCount(minutes)
	if !ok {
		return 0, fmt.Errorf("clock %q has bad minutes", s)
	}
	sec, ok := parseCount(seconds)
	if !ok || len(seconds) != 2 || sec > 59 {
		return 0, fmt.Errorf("clock %q has bad seconds", s)
	}
	return Seconds(m*60 + sec), nil
}

func parseFlag(s string, allowed ...ClockFlag) (ClockFlag, bool) {
	for _, f := range allowed {
		if flagTokens[f] == s {
			return f, true
		}
	}
	return FlagNone, false
}

func singleCount(st Statement) (int, error) {
	if len(st.Fields) != 1 {
		return 0, arityMismatch(st, "want 1 field, got %d", len(st.Fields))
	}
	n, ok := parseCount(st.Fields[0])
	if !ok {
		return 0, invalidField(st, 0, "%q is not a non-negative integer", st.Fields[0])
	}
	return n, nil
}

func clockWithFlag(st Statement, allowed ...ClockFlag) (ClockTime, ClockFlag, error) {
	if len(st.Fields) < 1 || len(st.Fields) > 2 {
		return 0, FlagNone, arityMismatch(st, "want clock and optional flag, got %d fields", len(st.Fields))
	}
	c, err := ParseClock(st.Fields[0])
	if err != nil {
		return 0, FlagNone, invalidField(st, 0, "%v", err)
	}
	if len(st.Fields) == 1 {
		return c, FlagNone, nil
	}
	f, ok := parseFlag(st.Fields[1], allowed...)
	if !ok {
		return 0, FlagNone, invalidField(st, 1, "flag %q not allowed", st.Fields[1])
	}
	return c, f, nil
}

func decodePoint(a Athlete) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		n, err := singleCount(st)
		if err != nil {
			return nil, err
		}
		return Point{Stamp: Stamp{At: at}, Athlete: a, Type: PointType(n)}, nil
	}
}

func decodeHitLevel(a Athlete) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		n, err := singleCount(st)
		if err != nil {
			return nil, err
		}
		return HitLevel{Stamp: Stamp{At: at}, Athlete: a, Level: n}, nil
	}
}

// decodeWarnings handles wg1;N, wg2;M and the combined wg1;N;wg2;M.
func decodeWarnings(st Statement, at time.Time) (Event, error) {
	ev := WarningGamJeom{Stamp: Stamp{At: at}}
	slot := 0
	if st.Tag == "wg2" {
		slot = 1
	}

	switch {
	case len(st.Fields) == 1:
	case len(st.Fields) == 3 && st.Tag == "wg1" && st.Fields[1] == "wg2":
	default:
		return nil, arityMismatch(st, "want %s;N or wg1;N;wg2;M, got %d fields", st.Tag, len(st.Fields))
	}

	n, ok := parseCount(st.Fields[0])
	if !ok {
		return nil, invalidField(st, 0, "%q is not a non-negative integer", st.Fields[0])
	}
	ev.Counts[slot], ev.Present[slot] = n, true

	if len(st.Fields) == 3 {
		m, ok := parseCount(st.Fields[2])
		if !ok {
			return nil, invalidField(st, 2, "%q is not a non-negative integer", st.Fields[2])
		}
		ev.Counts[1], ev.Present[1] = m, true
	}
	return ev, nil
}

func decodeInjury(a Athlete) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		c, f, err := clockWithFlag(st, FlagShow, FlagHide, FlagReset, FlagStart, FlagStop)
		if err != nil {
			return nil, err
		}
		return Injury{Stamp: Stamp{At: at}, Athlete: a, Remaining: c, Flag: f}, nil
	}
}

// decodeChallenge: no fields is a request; -1 canceled, 0 denied, 1 accepted;
// a second field (0 lost, 1 won) is only valid after 1.
func decodeChallenge(p Party) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		ev := Challenge{Stamp: Stamp{At: at}, Party: p}
		switch len(st.Fields) {
		case 0:
			ev.Status = ChallengePending
			return ev, nil
		case 1, 2:
		default:
			return nil, arityMismatch(st, "want at most result and outcome, got %d fields", len(st.Fields))
		}

		switch st.Fields[0] {
		case "-1":
			ev.Status = ChallengeCanceled
		case "0":
			ev.Status = ChallengeDenied
		case "1":
			ev.Status = ChallengeAccepted
		default:
			return nil, invalidField(st, 0, "result %q not in -1, 0, 1", st.Fields[0])
		}

		if len(st.Fields) == 2 {
			if ev.Status != ChallengeAccepted {
				return nil, arityMismatch(st, "outcome given for result %s", st.Fields[0])
			}
			switch st.Fields[1] {
			case "0":
				ev.Status = ChallengeLost
			case "1":
				ev.Status = ChallengeWon
			default:
				return nil, invalidField(st, 1, "outcome %q not in 0, 1", st.Fields[1])
			}
		}
		return ev, nil
	}
}

func decodeBreak(st Statement, at time.Time) (Event, error) {
	c, f, err := clockWithFlag(st, FlagStopEnd, FlagStart, FlagStop)
	if err != nil {
		return nil, err
	}
	return Break{Stamp: Stamp{At: at}, Remaining: c, Flag: f}, nil
}

// decodeRoundWinners requires the complete rd1;a;rd2;b;rd3;c form.
func decodeRoundWinners(st Statement, at time.Time) (Event, error) {
	if len(st.Fields) != 6 {
		return nil, arityMismatch(st, "want rd1;a;rd2;b;rd3;c, got %d fields", len(st.Fields))
	}
	ev := RoundWinners{Stamp: Stamp{At: at}}
	for i, label := range roundLabels {
		if st.Fields[2*i] != label {
			return nil, arityMismatch(st, "field %d is %q, want %s", 2*i, st.Fields[2*i], label)
		}
		v := st.Fields[2*i+1]
		n, ok := parseCount(v)
		if !ok || n > int(Athlete2) {
			return nil, invalidField(st, 2*i+1, "round winner %q not in 0, 1, 2", v)
		}
		ev.Winners[i] = Athlete(n)
	}
	return ev, nil
}

func decodeMatchWinner(st Statement, at time.Time) (Event, error) {
	if len(st.Fields) < 1 || len(st.Fields) > 2 {
		return nil, arityMismatch(st, "want name and optional score, got %d fields", len(st.Fields))
	}
	ev := MatchWinner{Stamp: Stamp{At: at}, Name: st.Fields[0]}
	if len(st.Fields) == 2 {
		ev.Score = st.Fields[1]
	}
	if ev.Name == "" && ev.Score == "" {
		return nil, invalidField(st, 0, "neither name nor score present")
	}
	return ev, nil
}

func decodeProvisionalWinner(st Statement, at time.Time) (Event, error) {
	if len(st.Fields) != 1 {
		return nil, arityMismatch(st, "want 1 field, got %d", len(st.Fields))
	}
	ev := ProvisionalWinner{Stamp: Stamp{At: at}}
	switch strings.ToUpper(st.Fields[0]) {
	case "0":
		ev.Athlete = AthleteNone
	case "1", "BLUE":
		ev.Athlete = Athlete1
	case "2", "RED":
		ev.Athlete = Athlete2
	default:
		return nil, invalidField(st, 0, "side %q not in 0, 1, 2, BLUE, RED", st.Fields[0])
	}
	return ev, nil
}

func decodeClock(st Statement, at time.Time) (Event, error) {
	c, f, err := clockWithFlag(st, FlagStart, FlagStop)
	if err != nil {
		return nil, err
	}
	return Clock{Stamp: Stamp{At: at}, Remaining: c, Flag: f}, nil
}

func decodeRound(st Statement, at time.Time) (Event, error) {
	n, err := singleCount(st)
	if err != nil {
		return nil, err
	}
	return Round{Stamp: Stamp{At: at}, Number: n}, nil
}

func literal(st Statement, want string) error {
	if len(st.Fields) != 1 {
		return arityMismatch(st, "want 1 field, got %d", len(st.Fields))
	}
	if st.Fields[0] != want {
		return invalidField(st, 0, "want %q, got %q", want, st.Fields[0])
	}
	return nil
}

func decodeMatchLoaded(st Statement, at time.Time) (Event, error) {
	if err := literal(st, loadedLiteral); err != nil {
		return nil, err
	}
	return MatchLoaded{Stamp: Stamp{At: at}}, nil
}

func decodeReady(st Statement, at time.Time) (Event, error) {
	if err := literal(st, readyLiteral); err != nil {
		return nil, err
	}
	return Ready{Stamp: Stamp{At: at}}, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func extra(fields []string, from int) []string {
	if len(fields) <= from {
		return nil
	}
	return append([]string(nil), fields[from:]...)
}

func decodeMatchMeta(st Statement, at time.Time) (Event, error) {
	if len(st.Fields) == 0 {
		return nil, arityMismatch(st, "want at least the match number")
	}
	if st.Fields[0] == "" {
		return nil, invalidField(st, 0, "empty match number")
	}
	return MatchMeta{
		Stamp:       Stamp{At: at},
		Number:      st.Fields[0],
		Phase:       field(st.Fields, 1),
		WeightClass: field(st.Fields, 2),
		Extra:       extra(st.Fields, 3),
	}, nil
}

func decodeAthleteInfo(a Athlete) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		if len(st.Fields) == 0 {
			return nil, arityMismatch(st, "want at least the short name")
		}
		return AthleteInfo{
			Stamp:     Stamp{At: at},
			Athlete:   a,
			ShortName: st.Fields[0],
			LongName:  field(st.Fields, 1),
			Country:   field(st.Fields, 2),
			Extra:     extra(st.Fields, 3),
		}, nil
	}
}

func decodeSubScore(a Athlete, round int) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		n, err := singleCount(st)
		if err != nil {
			return nil, err
		}
		return SubScore{Stamp: Stamp{At: at}, Athlete: a, Round: round, Value: n}, nil
	}
}

func decodeScore(a Athlete) decodeFunc {
	return func(st Statement, at time.Time) (Event, error) {
		n, err := singleCount(st)
		if err != nil {
			return nil, err
		}
		return Score{Stamp: Stamp{At: at}, Athlete: a, Value: n}, nil
	}
}

func decodeAdvantageVote(st Statement, at time.Time) (Event, error) {
	n, err := singleCount(st)
	if err != nil {
		return nil, err
	}
	return AdvantageVote{Stamp: Stamp{At: at}, Value: n}, nil
}

func decodeConnection(st Statement, at time.Time) (Event, error) {
	if len(st.Fields) != 2 {
		return nil, arityMismatch(st, "connection notice carries no fields")
	}
	port, ok := parseCount(st.Fields[0])
	if !ok {
		return nil, invalidField(st, 0, "port %q", st.Fields[0])
	}
	return Connection{Stamp: Stamp{At: at}, Port: port, Connected: st.Fields[1] == "connected"}, nil
}
