package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

var at = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestWrapEvent(t *testing.T) {
	n := publisher.EventNotification(protocol.Score{Stamp: protocol.Stamp{At: at}, Athlete: protocol.Athlete1, Value: 3})
	n.Seq = 7

	env, err := Wrap(n)
	require.NoError(t, err)
	assert.Equal(t, "event", env.Type)
	assert.Equal(t, uint64(7), env.Seq)
	assert.Equal(t, at.UnixMilli(), env.Timestamp)
	_, err = uuid.Parse(env.ID)
	assert.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "sc1", payload["tag"])
	assert.Equal(t, "sc1;3;", payload["wire"])
}

func TestWrapState(t *testing.T) {
	s := match.New()
	s.Round = 2
	s.Clock = match.ClockState{Remaining: protocol.Seconds(95), Running: true}
	s.Challenges[protocol.PartyAthlete1] = protocol.ChallengeAccepted

	env, err := Wrap(publisher.StateNotification(s, at))
	require.NoError(t, err)
	assert.Equal(t, "state", env.Type)

	assert.Equal(t, at.UnixMilli(), env.Timestamp)

	var got match.State
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, s, got)
}

func TestWrapDiagnostic(t *testing.T) {
	results := protocol.Parse("ch1;1;7;", at)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Err)

	env, err := Wrap(publisher.DiagnosticNotification(results[0].Err, "ch1;1;7;", at))
	require.NoError(t, err)
	assert.Equal(t, "diagnostic", env.Type)

	var d Diagnostic
	require.NoError(t, json.Unmarshal(env.Payload, &d))
	assert.Equal(t, "invalid_field", d.Kind)
	assert.Equal(t, "ch1", d.Tag)
	assert.Equal(t, 1, d.Field)
	assert.Equal(t, "ch1;1;7;", d.Raw)
	assert.NotEmpty(t, d.Error)
}

func TestNewDiagnosticNonASCII(t *testing.T) {
	d := NewDiagnostic(errors.ErrNonASCII, "x")
	assert.Equal(t, "non_ascii", d.Kind)
	assert.Equal(t, errors.ErrNonASCII.Error(), d.Error)
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a, err := StateEnvelope(match.New(), 1, at)
	require.NoError(t, err)
	b, err := StateEnvelope(match.New(), 1, at)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
