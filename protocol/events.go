package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the variant of an Event.
type Kind int

const (
	KindPoint Kind = iota + 1
	KindHitLevel
	KindWarningGamJeom
	KindInjury
	KindChallenge
	KindBreak
	KindRoundWinners
	KindMatchWinner
	KindProvisionalWinner
	KindClock
	KindRound
	KindMatchLoaded
	KindAthleteInfo
	KindMatchMeta
	KindSubScore
	KindScore
	KindAdvantageVote
	KindReady
	KindConnection
)

var kindNames = map[Kind]string{
	KindPoint:             "point",
	KindHitLevel:          "hit_level",
	KindWarningGamJeom:    "warning_gam_jeom",
	KindInjury:            "injury",
	KindChallenge:         "challenge",
	KindBreak:             "break",
	KindRoundWinners:      "round_winners",
	KindMatchWinner:       "match_winner",
	KindProvisionalWinner: "provisional_winner",
	KindClock:             "clock",
	KindRound:             "round",
	KindMatchLoaded:       "match_loaded",
	KindAthleteInfo:       "athlete_info",
	KindMatchMeta:         "match_meta",
	KindSubScore:          "sub_score",
	KindScore:             "score",
	KindAdvantageVote:     "advantage_vote",
	KindReady:             "ready",
	KindConnection:        "connection",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, ok := lookupName(kindNames, string(text))
	if !ok {
		return fmt.Errorf("unknown event kind %q", text)
	}
	*k = v
	return nil
}

// lookupName inverts one of the name tables.
func lookupName[T comparable](names map[T]string, s string) (T, bool) {
	for v, name := range names {
		if name == s {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Event is a decoded statement. Implementations are value types and are
// never mutated after Decode returns them.
type Event interface {
	Kind() Kind
	// Arrival is the arrival time of the datagram that carried the statement.
	Arrival() time.Time
	isEvent()
}

// Stamp carries the arrival time shared by every event.
type Stamp struct {
	At time.Time `json:"at"`
}

func (s Stamp) Arrival() time.Time { return s.At }
func (Stamp) isEvent()             {}

// Athlete identifies a competitor. AthleteNone doubles as "undecided" for
// winners and "unidentified" for injury time.
type Athlete int

const (
	AthleteNone Athlete = 0
	Athlete1    Athlete = 1
	Athlete2    Athlete = 2
)

func (a Athlete) String() string {
	switch a {
	case Athlete1:
		return "athlete 1"
	case Athlete2:
		return "athlete 2"
	default:
		return "none"
	}
}

// Index returns the zero-based slot of a competitor, or -1 for AthleteNone.
func (a Athlete) Index() int {
	if a != Athlete1 && a != Athlete2 {
		return -1
	}
	return int(a) - 1
}

// Party identifies who raised a video-review challenge.
type Party int

const (
	PartyReferee  Party = 0
	PartyAthlete1 Party = 1
	PartyAthlete2 Party = 2
)

func (p Party) String() string {
	switch p {
	case PartyReferee:
		return "referee"
	case PartyAthlete1:
		return "athlete 1"
	case PartyAthlete2:
		return "athlete 2"
	default:
		return fmt.Sprintf("party(%d)", int(p))
	}
}

// PointType is the technique reported by pt1/pt2.
type PointType int

const (
	PointPunch         PointType = 1
	PointBody          PointType = 2
	PointHead          PointType = 3
	PointTechnicalBody PointType = 4
	PointTechnicalHead PointType = 5
)

func (p PointType) String() string {
	switch p {
	case PointPunch:
		return "punch"
	case PointBody:
		return "body"
	case PointHead:
		return "head"
	case PointTechnicalBody:
		return "technical body"
	case PointTechnicalHead:
		return "technical head"
	default:
		return fmt.Sprintf("type %d", int(p))
	}
}

// ClockFlag is the optional trailing action on clock-bearing statements.
type ClockFlag int

const (
	FlagNone ClockFlag = iota
	FlagStart
	FlagStop
	FlagShow
	FlagHide
	FlagReset
	FlagStopEnd
)

var flagTokens = map[ClockFlag]string{
	FlagStart:   "start",
	FlagStop:    "stop",
	FlagShow:    "show",
	FlagHide:    "hide",
	FlagReset:   "reset",
	FlagStopEnd: "stopEnd",
}

// String returns the wire token, or "" for FlagNone.
func (f ClockFlag) String() string { return flagTokens[f] }

func (f ClockFlag) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *ClockFlag) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = FlagNone
		return nil
	}
	v, ok := lookupName(flagTokens, string(text))
	if !ok {
		return fmt.Errorf("unknown clock flag %q", text)
	}
	*f = v
	return nil
}

// ClockTime is a normalized clock reading, always whole seconds.
type ClockTime time.Duration

// Seconds builds a ClockTime from a second count.
func Seconds(n int) ClockTime { return ClockTime(time.Duration(n) * time.Second) }

func (c ClockTime) Duration() time.Duration { return time.Duration(c) }

// String renders the clock as m:ss.
func (c ClockTime) String() string {
	total := int(time.Duration(c) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("clock must be an m:ss string: %w", err)
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ChallengeStatus is the state of one party's video-review request.
type ChallengeStatus int

const (
	ChallengeNone ChallengeStatus = iota
	ChallengePending
	ChallengeCanceled
	ChallengeDenied
	ChallengeAccepted
	ChallengeWon
	ChallengeLost
)

var challengeNames = map[ChallengeStatus]string{
	ChallengeNone:     "none",
	ChallengePending:  "pending",
	ChallengeCanceled: "canceled",
	ChallengeDenied:   "denied",
	ChallengeAccepted: "accepted",
	ChallengeWon:      "accepted_won",
	ChallengeLost:     "accepted_lost",
}

func (s ChallengeStatus) String() string {
	if name, ok := challengeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("challenge(%d)", int(s))
}

func (s ChallengeStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ChallengeStatus) UnmarshalText(text []byte) error {
	v, ok := lookupName(challengeNames, string(text))
	if !ok {
		return fmt.Errorf("unknown challenge status %q", text)
	}
	*s = v
	return nil
}

// Point reports a scoring technique. It never changes scores by itself.
type Point struct {
	Stamp
	Athlete Athlete   `json:"athlete"`
	Type    PointType `json:"type"`
}

// HitLevel reports sensor impact strength (1-100 on reference hardware).
type HitLevel struct {
	Stamp
	Athlete Athlete `json:"athlete"`
	Level   int     `json:"level"`
}

// WarningGamJeom carries warning counts. Present marks which athletes the
// statement covered; wg1;N;wg2;M covers both.
type WarningGamJeom struct {
	Stamp
	Counts  [2]int  `json:"counts"`
	Present [2]bool `json:"present"`
}

// Injury updates the injury clock of one slot. Athlete is AthleteNone for ij0.
type Injury struct {
	Stamp
	Athlete   Athlete   `json:"athlete"`
	Remaining ClockTime `json:"remaining"`
	Flag      ClockFlag `json:"flag"`
}

// Challenge replaces the challenge status of one party.
type Challenge struct {
	Stamp
	Party  Party           `json:"party"`
	Status ChallengeStatus `json:"status"`
}

// Break updates the between-rounds clock.
type Break struct {
	Stamp
	Remaining ClockTime `json:"remaining"`
	Flag      ClockFlag `json:"flag"`
}

// RoundWinners is a full snapshot of the three round results.
type RoundWinners struct {
	Stamp
	Winners [3]Athlete `json:"winners"`
}

// MatchWinner carries the final result. Empty fields were absent on the wire.
type MatchWinner struct {
	Stamp
	Name  string `json:"name,omitempty"`
	Score string `json:"score,omitempty"`
}

// ProvisionalWinner is the early winner-side indicator.
type ProvisionalWinner struct {
	Stamp
	Athlete Athlete `json:"athlete"`
}

// Clock updates the main round clock.
type Clock struct {
	Stamp
	Remaining ClockTime `json:"remaining"`
	Flag      ClockFlag `json:"flag"`
}

// Round sets the current round number.
type Round struct {
	Stamp
	Number int `json:"number"`
}

// MatchLoaded starts a new match.
type MatchLoaded struct {
	Stamp
}

// AthleteInfo carries descriptive athlete fields.
type AthleteInfo struct {
	Stamp
	Athlete   Athlete  `json:"athlete"`
	ShortName string   `json:"short_name"`
	LongName  string   `json:"long_name,omitempty"`
	Country   string   `json:"country,omitempty"`
	Extra     []string `json:"extra,omitempty"`
}

// MatchMeta carries descriptive match fields.
type MatchMeta struct {
	Stamp
	Number      string   `json:"number"`
	Phase       string   `json:"phase,omitempty"`
	WeightClass string   `json:"weight_class,omitempty"`
	Extra       []string `json:"extra,omitempty"`
}

// SubScore is a per-round, per-athlete score snapshot. Round is 1-based.
type SubScore struct {
	Stamp
	Athlete Athlete `json:"athlete"`
	Round   int     `json:"round"`
	Value   int     `json:"value"`
}

// Score is a per-athlete total score snapshot.
type Score struct {
	Stamp
	Athlete Athlete `json:"athlete"`
	Value   int     `json:"value"`
}

// AdvantageVote carries the avt value.
type AdvantageVote struct {
	Stamp
	Value int `json:"value"`
}

// Ready marks the match ready to start.
type Ready struct {
	Stamp
}

// Connection reports the scoring system's link notice.
type Connection struct {
	Stamp
	Port      int  `json:"port"`
	Connected bool `json:"connected"`
}

func (Point) Kind() Kind             { return KindPoint }
func (HitLevel) Kind() Kind          { return KindHitLevel }
func (WarningGamJeom) Kind() Kind    { return KindWarningGamJeom }
func (Injury) Kind() Kind            { return KindInjury }
func (Challenge) Kind() Kind         { return KindChallenge }
func (Break) Kind() Kind             { return KindBreak }
func (RoundWinners) Kind() Kind      { return KindRoundWinners }
func (MatchWinner) Kind() Kind       { return KindMatchWinner }
func (ProvisionalWinner) Kind() Kind { return KindProvisionalWinner }
func (Clock) Kind() Kind             { return KindClock }
func (Round) Kind() Kind             { return KindRound }
func (MatchLoaded) Kind() Kind       { return KindMatchLoaded }
func (AthleteInfo) Kind() Kind       { return KindAthleteInfo }
func (MatchMeta) Kind() Kind         { return KindMatchMeta }
func (SubScore) Kind() Kind          { return KindSubScore }
func (Score) Kind() Kind             { return KindScore }
func (AdvantageVote) Kind() Kind     { return KindAdvantageVote }
func (Ready) Kind() Kind             { return KindReady }
func (Connection) Kind() Kind        { return KindConnection }
