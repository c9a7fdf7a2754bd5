package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag returns the wire tag that carries ev. Combined wg1;N;wg2;M statements
// report "wg1".
func Tag(ev Event) string {
	switch e := ev.(type) {
	case Point:
		return fmt.Sprintf("pt%d", e.Athlete)
	case HitLevel:
		return fmt.Sprintf("hl%d", e.Athlete)
	case WarningGamJeom:
		if !e.Present[0] && e.Present[1] {
			return "wg2"
		}
		return "wg1"
	case Injury:
		return fmt.Sprintf("ij%d", e.Athlete)
	case Challenge:
		return fmt.Sprintf("ch%d", e.Party)
	case Break:
		return "brk"
	case RoundWinners:
		return "wrd"
	case MatchWinner:
		return "wmh"
	case ProvisionalWinner:
		return "win"
	case Clock:
		return "clk"
	case Round:
		return "rnd"
	case MatchLoaded:
		return "pre"
	case AthleteInfo:
		return fmt.Sprintf("at%d", e.Athlete)
	case MatchMeta:
		return "mch"
	case SubScore:
		return subScoreTag(e.Athlete, e.Round)
	case Score:
		return fmt.Sprintf("sc%d", e.Athlete)
	case AdvantageVote:
		return "avt"
	case Ready:
		return "rdy"
	case Connection:
		return ConnectionTag
	default:
		return ""
	}
}

// Encode renders ev in wire form, terminated by ';'. Decoding the result
// yields an event equal to ev apart from the arrival stamp.
func Encode(ev Event) string {
	tag := Tag(ev)
	var fields []string

	switch e := ev.(type) {
	case Point:
		fields = []string{strconv.Itoa(int(e.Type))}
	case HitLevel:
		fields = []string{strconv.Itoa(e.Level)}
	case WarningGamJeom:
		switch {
		case e.Present[0] && e.Present[1]:
			fields = []string{strconv.Itoa(e.Counts[0]), "wg2", strconv.Itoa(e.Counts[1])}
		case e.Present[1]:
			fields = []string{strconv.Itoa(e.Counts[1])}
		default:
			fields = []string{strconv.Itoa(e.Counts[0])}
		}
	case Injury:
		fields = clockFields(e.Remaining, e.Flag)
	case Challenge:
		fields = challengeFields(e.Status)
	case Break:
		fields = clockFields(e.Remaining, e.Flag)
	case RoundWinners:
		for i, w := range e.Winners {
			fields = append(fields, roundLabels[i], strconv.Itoa(int(w)))
		}
	case MatchWinner:
		fields = []string{e.Name}
		if e.Score != "" {
			fields = append(fields, e.Score)
		}
	case ProvisionalWinner:
		fields = []string{strconv.Itoa(int(e.Athlete))}
	case Clock:
		fields = clockFields(e.Remaining, e.Flag)
	case Round:
		fields = []string{strconv.Itoa(e.Number)}
	case MatchLoaded:
		fields = []string{loadedLiteral}
	case AthleteInfo:
		fields = append([]string{e.ShortName, e.LongName, e.Country}, e.Extra...)
	case MatchMeta:
		fields = append([]string{e.Number, e.Phase, e.WeightClass}, e.Extra...)
	case SubScore:
		fields = []string{strconv.Itoa(e.Value)}
	case Score:
		fields = []string{strconv.Itoa(e.Value)}
	case AdvantageVote:
		fields = []string{strconv.Itoa(e.Value)}
	case Ready:
		fields = []string{readyLiteral}
	case Connection:
		status := "disconnected"
		if e.Connected {
			status = "connected"
		}
		return fmt.Sprintf("%s %d %s;", ConnectionTag, e.Port, status)
	}

	var b strings.Builder
	b.WriteString(tag)
	for _, f := range fields {
		b.WriteByte(';')
		b.WriteString(f)
	}
	b.WriteByte(';')
	return b.String()
}

func clockFields(c ClockTime, f ClockFlag) []string {
	if f == FlagNone {
		return []string{c.String()}
	}
	return []string{c.String(), f.String()}
}

func challengeFields(s ChallengeStatus) []string {
	switch s {
	case ChallengeCanceled:
		return []string{"-1"}
	case ChallengeDenied:
		return []string{"0"}
	case ChallengeAccepted:
		return []string{"1"}
	case ChallengeWon:
		return []string{"1", "1"}
	case ChallengeLost:
		return []string{"1", "0"}
	default:
		return nil
	}
}
