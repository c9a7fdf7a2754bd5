package match

import (
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

// ClockState is the main round clock.
type ClockState struct {
	Remaining protocol.ClockTime `json:"remaining"`
	Running   bool               `json:"running"`
}

// InjuryClock is one injury-time slot.
type InjuryClock struct {
	Remaining protocol.ClockTime `json:"remaining"`
	Running   bool               `json:"running"`
	Visible   bool               `json:"visible"`
}

// BreakClock is the between-rounds clock.
type BreakClock struct {
	Remaining protocol.ClockTime `json:"remaining"`
	Running   bool               `json:"running"`
	Ended     bool               `json:"ended"`
}

// AthleteProfile holds the descriptive fields of one competitor.
type AthleteProfile struct {
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Country   string `json:"country"`
}

// Meta holds the descriptive fields of the match.
type Meta struct {
	Number      string `json:"number"`
	Phase       string `json:"phase"`
	WeightClass string `json:"weight_class"`
}

// Winner is the final result as last reported by wmh.
type Winner struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

// Link is the scoring system's connection status. It survives MatchLoaded.
type Link struct {
	Seen      bool `json:"seen"`
	Port      int  `json:"port"`
	Connected bool `json:"connected"`
}

// State is the reconstructed live match. It holds only arrays and plain
// values, so assignment yields an independent snapshot and two states can be
// compared with ==. Arrival times travel on the notifications, not here, so
// re-applying a snapshot statement leaves the state equal.
type State struct {
	Loaded   bool              `json:"loaded"`
	Ready    bool              `json:"ready"`
	Meta     Meta              `json:"meta"`
	Athletes [2]AthleteProfile `json:"athletes"`

	Round int        `json:"round"`
	Clock ClockState `json:"clock"`
	Break BreakClock `json:"break"`

	// Injuries is indexed by slot: 0 unidentified, 1 athlete 1, 2 athlete 2.
	Injuries [3]InjuryClock `json:"injuries"`

	// SubScores is indexed [round-1][athlete-1].
	SubScores [3][2]int `json:"sub_scores"`
	Scores    [2]int    `json:"scores"`
	Warnings  [2]int    `json:"warnings"`
	HitLevels [2]int    `json:"hit_levels"`

	// Challenges is indexed by party: 0 referee, 1 athlete 1, 2 athlete 2.
	Challenges [3]protocol.ChallengeStatus `json:"challenges"`

	RoundWinners      [3]protocol.Athlete `json:"round_winners"`
	ProvisionalWinner protocol.Athlete    `json:"provisional_winner"`
	Winner            Winner              `json:"winner"`
	AdvantageVote     int                 `json:"advantage_vote"`

	Link Link `json:"link"`
}

// New returns the state before any match has been loaded.
func New() State {
	return State{}
}
