package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

var arrival = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func stamp() Stamp { return Stamp{At: arrival} }

func decodeOne(t *testing.T, payload string) (Event, error) {
	t.Helper()
	stmts := Tokenize(payload)
	require.Len(t, stmts, 1, "payload %q", payload)
	return Decode(stmts[0], arrival)
}

func TestDecodeEvents(t *testing.T) {
	tests := []struct {
		payload string
		want    Event
	}{
		{"pt1;3;", Point{Stamp: stamp(), Athlete: Athlete1, Type: PointHead}},
		{"hl2;75;", HitLevel{Stamp: stamp(), Athlete: Athlete2, Level: 75}},
		{"wg1;0;wg2;0;", WarningGamJeom{Stamp: stamp(), Present: [2]bool{true, true}}},
		{"wg2;3;", WarningGamJeom{Stamp: stamp(), Counts: [2]int{0, 3}, Present: [2]bool{false, true}}},
		{"ij0;1:00;show;", Injury{Stamp: stamp(), Athlete: AthleteNone, Remaining: Seconds(60), Flag: FlagShow}},
		{"ij1;45;", Injury{Stamp: stamp(), Athlete: Athlete1, Remaining: Seconds(45)}},
		{"ch1;", Challenge{Stamp: stamp(), Party: PartyAthlete1, Status: ChallengePending}},
		{"ch0;-1;", Challenge{Stamp: stamp(), Party: PartyReferee, Status: ChallengeCanceled}},
		{"ch2;0;", Challenge{Stamp: stamp(), Party: PartyAthlete2, Status: ChallengeDenied}},
		{"ch2;1;", Challenge{Stamp: stamp(), Party: PartyAthlete2, Status: ChallengeAccepted}},
		{"ch1;1;1;", Challenge{Stamp: stamp(), Party: PartyAthlete1, Status: ChallengeWon}},
		{"ch1;1;0;", Challenge{Stamp: stamp(), Party: PartyAthlete1, Status: ChallengeLost}},
		{"brk;0:00;stopEnd;", Break{Stamp: stamp(), Remaining: 0, Flag: FlagStopEnd}},
		{"wrd;rd1;1;rd2;2;rd3;0;", RoundWinners{Stamp: stamp(), Winners: [3]Athlete{Athlete1, Athlete2, AthleteNone}}},
		{"wmh;KIM;2-1;", MatchWinner{Stamp: stamp(), Name: "KIM", Score: "2-1"}},
		{"wmh;;PTG;", MatchWinner{Stamp: stamp(), Score: "PTG"}},
		{"win;BLUE;", ProvisionalWinner{Stamp: stamp(), Athlete: Athlete1}},
		{"win;red;", ProvisionalWinner{Stamp: stamp(), Athlete: Athlete2}},
		{"clk;1:50;stop;", Clock{Stamp: stamp(), Remaining: Seconds(110), Flag: FlagStop}},
		{"clk;110;", Clock{Stamp: stamp(), Remaining: Seconds(110)}},
		{"rnd;1;", Round{Stamp: stamp(), Number: 1}},
		{"pre;FightLoaded;", MatchLoaded{Stamp: stamp()}},
		{"rdy;FightReady;", Ready{Stamp: stamp()}},
		{"mch;101;Round of 16;M- 80 kg;Senior;", MatchMeta{
			Stamp: stamp(), Number: "101", Phase: "Round of 16", WeightClass: "M- 80 kg", Extra: []string{"Senior"},
		}},
		{"at2;J. DOE;John DOE;USA;", AthleteInfo{
			Stamp: stamp(), Athlete: Athlete2, ShortName: "J. DOE", LongName: "John DOE", Country: "USA",
		}},
		{"s23;4;", SubScore{Stamp: stamp(), Athlete: Athlete2, Round: 3, Value: 4}},
		{"sc1;12;", Score{Stamp: stamp(), Athlete: Athlete1, Value: 12}},
		{"avt;1;", AdvantageVote{Stamp: stamp(), Value: 1}},
		{"Udp Port 6000 disconnected;", Connection{Stamp: stamp(), Port: 6000, Connected: false}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			ev, err := decodeOne(t, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, arrival, ev.Arrival())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		payload string
		kind    ErrorKind
		field   int
	}{
		{"zz1;5;", UnknownTag, -1},
		{"garbage;", UnknownTag, -1},
		{"pt1;", ArityMismatch, -1},
		{"pt1;3;4;", ArityMismatch, -1},
		{"pt1;-3;", InvalidField, 0},
		{"hl1;abc;", InvalidField, 0},
		{"wg1;0;1;", ArityMismatch, -1},
		{"wg1;0;wg2;x;", InvalidField, 2},
		{"clk;1:5;", InvalidField, 0},
		{"clk;1:75;", InvalidField, 0},
		{"clk;2:00;show;", InvalidField, 1},
		{"clk;", ArityMismatch, -1},
		{"brk;0:30;hide;", InvalidField, 1},
		{"ij1;1:00;stopEnd;", InvalidField, 1},
		{"ch1;2;", InvalidField, 0},
		{"ch1;0;1;", ArityMismatch, -1},
		{"ch1;1;5;", InvalidField, 1},
		{"ch1;1;1;1;", ArityMismatch, -1},
		{"wrd;rd1;0;rd2;0;", ArityMismatch, -1},
		{"wrd;rd1;0;rd3;0;rd2;0;", ArityMismatch, -1},
		{"wrd;rd1;0;rd2;3;rd3;0;", InvalidField, 3},
		{"wmh;;", InvalidField, 0},
		{"win;GREEN;", InvalidField, 0},
		{"pre;FightReady;", InvalidField, 0},
		{"rdy;", ArityMismatch, -1},
		{"mch;;Final;", InvalidField, 0},
		{"at1;", ArityMismatch, -1},
		{"Udp Port 6000 connected;extra;", ArityMismatch, -1},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			ev, err := decodeOne(t, tt.payload)
			require.Error(t, err)
			assert.Nil(t, ev)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.kind, de.Kind)
			assert.Equal(t, tt.field, de.Field)
			assert.NotEmpty(t, de.Raw)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDecodeErrorUnwrapsToSentinel(t *testing.T) {
	_, err := decodeOne(t, "zz1;5;")
	assert.ErrorIs(t, err, errors.ErrUnknownTag)

	_, err = decodeOne(t, "wrd;rd1;0;")
	assert.ErrorIs(t, err, errors.ErrArityMismatch)

	_, err = decodeOne(t, "rnd;x;")
	assert.ErrorIs(t, err, errors.ErrInvalidField)
	assert.Contains(t, err.Error(), "decode rnd field 0")
}

func TestParseKeepsOrderAroundRejectedStatements(t *testing.T) {
	results := Parse("clk;2:00;zz1;5;rnd;1;", arrival)
	require.Len(t, results, 3)

	assert.Equal(t, Clock{Stamp: stamp(), Remaining: Seconds(120)}, results[0].Event)
	assert.Nil(t, results[0].Err)

	assert.Nil(t, results[1].Event)
	require.NotNil(t, results[1].Err)
	assert.Equal(t, UnknownTag, results[1].Err.Kind)
	assert.Equal(t, "zz1;5;", results[1].Err.Raw)

	assert.Equal(t, Round{Stamp: stamp(), Number: 1}, results[2].Event)
}

func TestParseAcrossLineBreaks(t *testing.T) {
	results := Parse("pt1;3;\r\nclk;1:00;", arrival)
	require.Len(t, results, 2)
	assert.Equal(t, Point{Stamp: stamp(), Athlete: Athlete1, Type: PointHead}, results[0].Event)
	assert.Equal(t, Clock{Stamp: stamp(), Remaining: Seconds(60)}, results[1].Event)
}

func TestParseUnshapedUnknownTagRejectsNeighbour(t *testing.T) {
	results := Parse("clk;2:00;ZZ1;5;rnd;1;", arrival)
	require.Len(t, results, 2)

	require.NotNil(t, results[0].Err)
	assert.Equal(t, ArityMismatch, results[0].Err.Kind)
	assert.Equal(t, "clk;2:00;ZZ1;5;", results[0].Err.Raw)

	assert.Equal(t, Round{Stamp: stamp(), Number: 1}, results[1].Event)
}

func TestParseClock(t *testing.T) {
	for in, want := range map[string]ClockTime{
		"2:00":  Seconds(120),
		"0:00":  0,
		"10:05": Seconds(605),
		"90":    Seconds(90),
		"0":     0,
	} {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", ":", "1:", ":30", "1:5", "1:60", "-5", "1:00:00", "a:bc"} {
		_, err := ParseClock(in)
		assert.Error(t, err, in)
	}
	assert.Equal(t, "1:50", Seconds(110).String())
	assert.Equal(t, "0:00", ClockTime(0).String())
}

func TestRoundTrip(t *testing.T) {
	events := []Event{
		Point{Stamp: stamp(), Athlete: Athlete2, Type: PointTechnicalHead},
		HitLevel{Stamp: stamp(), Athlete: Athlete1, Level: 100},
		WarningGamJeom{Stamp: stamp(), Counts: [2]int{2, 1}, Present: [2]bool{true, true}},
		WarningGamJeom{Stamp: stamp(), Counts: [2]int{4, 0}, Present: [2]bool{true, false}},
		WarningGamJeom{Stamp: stamp(), Counts: [2]int{0, 4}, Present: [2]bool{false, true}},
		Injury{Stamp: stamp(), Athlete: AthleteNone, Remaining: Seconds(83), Flag: FlagReset},
		Injury{Stamp: stamp(), Athlete: Athlete2, Remaining: Seconds(60)},
		Challenge{Stamp: stamp(), Party: PartyReferee, Status: ChallengePending},
		Challenge{Stamp: stamp(), Party: PartyAthlete2, Status: ChallengeLost},
		Challenge{Stamp: stamp(), Party: PartyAthlete1, Status: ChallengeCanceled},
		Break{Stamp: stamp(), Remaining: Seconds(60), Flag: FlagStart},
		Break{Stamp: stamp(), Flag: FlagStopEnd},
		RoundWinners{Stamp: stamp(), Winners: [3]Athlete{Athlete2, Athlete2, AthleteNone}},
		MatchWinner{Stamp: stamp(), Name: "LEE", Score: "2-0"},
		MatchWinner{Stamp: stamp(), Name: "LEE"},
		MatchWinner{Stamp: stamp(), Score: "SUP"},
		ProvisionalWinner{Stamp: stamp(), Athlete: Athlete2},
		ProvisionalWinner{Stamp: stamp()},
		Clock{Stamp: stamp(), Remaining: Seconds(125), Flag: FlagStart},
		Round{Stamp: stamp(), Number: 3},
		MatchLoaded{Stamp: stamp()},
		AthleteInfo{Stamp: stamp(), Athlete: Athlete1, ShortName: "A. KIM"},
		AthleteInfo{Stamp: stamp(), Athlete: Athlete2, ShortName: "B", LongName: "Bo", Country: "KOR", Extra: []string{"x", ""}},
		MatchMeta{Stamp: stamp(), Number: "1201", Phase: "Final", WeightClass: "W-49 kg"},
		SubScore{Stamp: stamp(), Athlete: Athlete1, Round: 2, Value: 7},
		Score{Stamp: stamp(), Athlete: Athlete2, Value: 15},
		AdvantageVote{Stamp: stamp(), Value: 2},
		Ready{Stamp: stamp()},
		Connection{Stamp: stamp(), Port: 6000, Connected: true},
	}

	for _, ev := range events {
		wire := Encode(ev)
		t.Run(wire, func(t *testing.T) {
			got, err := decodeOne(t, wire)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
			assert.Equal(t, Tag(ev), Tokenize(wire)[0].Tag)
		})
	}
}

func TestRecordJSON(t *testing.T) {
	rec := NewRecord(Clock{Stamp: stamp(), Remaining: Seconds(110), Flag: FlagStop})
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "clock",
		"tag": "clk",
		"wire": "clk;1:50;stop;",
		"at": "2026-03-14T10:30:00Z",
		"data": {"at": "2026-03-14T10:30:00Z", "remaining": "1:50", "flag": "stop"}
	}`, string(data))
}

func TestEventJSONRoundTrip(t *testing.T) {
	roundTrip := func(t *testing.T, in, out any) {
		t.Helper()
		data, err := json.Marshal(in)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}

	clk := Clock{Stamp: stamp(), Remaining: Seconds(110), Flag: FlagStop}
	var gotClk Clock
	roundTrip(t, clk, &gotClk)
	assert.Equal(t, clk, gotClk)

	brk := Break{Stamp: stamp(), Remaining: Seconds(0), Flag: FlagStopEnd}
	var gotBrk Break
	roundTrip(t, brk, &gotBrk)
	assert.Equal(t, brk, gotBrk)

	inj := Injury{Stamp: stamp(), Athlete: AthleteNone, Remaining: Seconds(60)}
	var gotInj Injury
	roundTrip(t, inj, &gotInj)
	assert.Equal(t, inj, gotInj)

	ch := Challenge{Stamp: stamp(), Party: PartyAthlete2, Status: ChallengeWon}
	var gotCh Challenge
	roundTrip(t, ch, &gotCh)
	assert.Equal(t, ch, gotCh)

	var kinds []Kind
	require.NoError(t, json.Unmarshal([]byte(`["clock","round_winners"]`), &kinds))

	var errKind ErrorKind
	require.NoError(t, json.Unmarshal([]byte(`"arity_mismatch"`), &errKind))
	assert.Equal(t, ArityMismatch, errKind)
	assert.Equal(t, []Kind{KindClock, KindRoundWinners}, kinds)
}

func TestEventJSONRejectsUnknownNames(t *testing.T) {
	tests := []struct {
		name string
		data string
		into any
	}{
		{"clock not a string", `{"remaining": 110}`, &Clock{}},
		{"clock bad seconds", `{"remaining": "1:75"}`, &Clock{}},
		{"unknown flag", `{"remaining": "1:00", "flag": "pause"}`, &Clock{}},
		{"unknown status", `{"party": 1, "status": "maybe"}`, &Challenge{}},
		{"unknown kind", `"sparring"`, new(Kind)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, json.Unmarshal([]byte(tt.data), tt.into))
		})
	}
}

func TestIsASCII(t *testing.T) {
	assert.True(t, IsASCII([]byte("pt1;3;")))
	assert.True(t, IsASCII(nil))
	assert.False(t, IsASCII([]byte("at1;M\xc3\xbcller;")))
}
