package protocol

import (
	"sort"
	"time"
)

// ConnectionTag is the Statement tag given to "Udp Port N connected" notices.
const ConnectionTag = "Udp Port"

type decodeFunc func(st Statement, at time.Time) (Event, error)

// tagSpec describes one registered tag.
type tagSpec struct {
	tag  string
	kind Kind
	// embedded tokens are fields, not statement starts, inside this statement
	embedded []string
	// freeText statements are only ended by a registered tag
	freeText bool
	decode   decodeFunc
}

func (s *tagSpec) embeds(token string) bool {
	for _, e := range s.embedded {
		if e == token {
			return true
		}
	}
	return false
}

var registry = buildRegistry()

func buildRegistry() map[string]*tagSpec {
	specs := []*tagSpec{
		{tag: "pt1", kind: KindPoint, decode: decodePoint(Athlete1)},
		{tag: "pt2", kind: KindPoint, decode: decodePoint(Athlete2)},
		{tag: "hl1", kind: KindHitLevel, decode: decodeHitLevel(Athlete1)},
		{tag: "hl2", kind: KindHitLevel, decode: decodeHitLevel(Athlete2)},
		{tag: "wg1", kind: KindWarningGamJeom, embedded: []string{"wg2"}, decode: decodeWarnings},
		{tag: "wg2", kind: KindWarningGamJeom, decode: decodeWarnings},
		{tag: "ij0", kind: KindInjury, decode: decodeInjury(AthleteNone)},
		{tag: "ij1", kind: KindInjury, decode: decodeInjury(Athlete1)},
		{tag: "ij2", kind: KindInjury, decode: decodeInjury(Athlete2)},
		{tag: "ch0", kind: KindChallenge, decode: decodeChallenge(PartyReferee)},
		{tag: "ch1", kind: KindChallenge, decode: decodeChallenge(PartyAthlete1)},
		{tag: "ch2", kind: KindChallenge, decode: decodeChallenge(PartyAthlete2)},
		{tag: "brk", kind: KindBreak, decode: decodeBreak},
		{tag: "wrd", kind: KindRoundWinners, embedded: roundLabels[:], decode: decodeRoundWinners},
		{tag: "wmh", kind: KindMatchWinner, freeText: true, decode: decodeMatchWinner},
		{tag: "win", kind: KindProvisionalWinner, decode: decodeProvisionalWinner},
		{tag: "clk", kind: KindClock, decode: decodeClock},
		{tag: "rnd", kind: KindRound, decode: decodeRound},
		{tag: "pre", kind: KindMatchLoaded, decode: decodeMatchLoaded},
		{tag: "rdy", kind: KindReady, decode: decodeReady},
		{tag: "mch", kind: KindMatchMeta, freeText: true, decode: decodeMatchMeta},
		{tag: "at1", kind: KindAthleteInfo, freeText: true, decode: decodeAthleteInfo(Athlete1)},
		{tag: "at2", kind: KindAthleteInfo, freeText: true, decode: decodeAthleteInfo(Athlete2)},
		{tag: "sc1", kind: KindScore, decode: decodeScore(Athlete1)},
		{tag: "sc2", kind: KindScore, decode: decodeScore(Athlete2)},
		{tag: "avt", kind: KindAdvantageVote, decode: decodeAdvantageVote},
	}
	for _, athlete := range []Athlete{Athlete1, Athlete2} {
		for round := 1; round <= 3; round++ {
			specs = append(specs, &tagSpec{
				tag:    subScoreTag(athlete, round),
				kind:   KindSubScore,
				decode: decodeSubScore(athlete, round),
			})
		}
	}

	m := make(map[string]*tagSpec, len(specs))
	for _, s := range specs {
		m[s.tag] = s
	}
	return m
}

// IsTag reports whether token is a registered tag. Matching is case-sensitive.
func IsTag(token string) bool {
	_, ok := registry[token]
	return ok
}

// Tags returns the registered tags in sorted order.
func Tags() []string {
	tags := make([]string, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
