package pipeline

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/input/udp"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

var arrival = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func datagram(payload string, offset time.Duration) protocol.Datagram {
	return protocol.Datagram{Payload: []byte(payload), ReceivedAt: arrival.Add(offset)}
}

func TestStatementsProcessedInWireOrder(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pub := publisher.New(publisher.WithMetrics(registry))
	sub, err := pub.Subscribe("test")
	require.NoError(t, err)

	p := New(Deps{Publisher: pub, MetricsRegistry: registry})
	p.HandleDatagram(datagram("clk;2:00;zz1;5;rnd;1;", 0))

	got := sub.Drain(10)
	require.Len(t, got, 5)

	wantKinds := []publisher.Kind{
		publisher.KindEvent, publisher.KindState,
		publisher.KindDiagnostic,
		publisher.KindEvent, publisher.KindState,
	}
	for i, n := range got {
		assert.Equal(t, wantKinds[i], n.Kind, "notification %d", i)
		assert.Equal(t, uint64(i+1), n.Seq)
		assert.Equal(t, arrival, n.At)
	}

	assert.Equal(t, "clk;2:00;", got[0].Raw)
	assert.Equal(t, protocol.Seconds(120), got[1].State.Clock.Remaining)
	assert.Equal(t, 0, got[1].State.Round, "state after clk must not yet include rnd")

	assert.ErrorIs(t, got[2].Err, errors.ErrUnknownTag)
	assert.Equal(t, "zz1;5;", got[2].Raw)

	assert.Equal(t, 1, got[4].State.Round)
	assert.Equal(t, got[4].State, p.State())

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, prom.ToFloat64(core.StatementsDecoded.WithLabelValues("clk")))
	assert.Equal(t, 1.0, prom.ToFloat64(core.DecodeErrors.WithLabelValues("unknown_tag")))
	assert.Equal(t, Stats{Datagrams: 1, Statements: 2, Rejected: 1}, p.Stats())
}

func TestLoadScenario(t *testing.T) {
	p := New(Deps{Publisher: publisher.New()})

	payloads := []string{
		"pre;FightLoaded;",
		"mch;101;Round of 16;M- 80 kg;",
		"wg1;0;wg2;0;",
		"wrd;rd1;0;rd2;0;rd3;0;",
		"clk;2:00;",
		"rnd;1;",
		"rdy;FightReady;",
	}
	for i, payload := range payloads {
		p.HandleDatagram(datagram(payload, time.Duration(i)*time.Millisecond))
	}

	s := p.State()
	assert.True(t, s.Ready)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, protocol.Seconds(120), s.Clock.Remaining)
	assert.False(t, s.Clock.Running)
	assert.Equal(t, [2]int{0, 0}, s.Warnings)
	assert.Equal(t, [3]protocol.Athlete{}, s.RoundWinners)
}

func TestRejectedStatementLeavesState(t *testing.T) {
	pub := publisher.New()
	sub, err := pub.Subscribe("test", publisher.WithKinds(publisher.KindDiagnostic))
	require.NoError(t, err)

	p := New(Deps{Publisher: pub})
	p.HandleDatagram(datagram("sc1;4;", 0))
	before := p.State()

	p.HandleDatagram(datagram("sc1;x;ch1;1;7;wrd;rd1;0;", time.Second))
	assert.Equal(t, before, p.State())

	diags := sub.Drain(10)
	require.Len(t, diags, 3)
	assert.ErrorIs(t, diags[0].Err, errors.ErrInvalidField)
	assert.ErrorIs(t, diags[1].Err, errors.ErrInvalidField)
	assert.ErrorIs(t, diags[2].Err, errors.ErrArityMismatch)
	for _, d := range diags {
		assert.Equal(t, arrival.Add(time.Second), d.At)
	}
}

func TestDroppedDatagramBecomesDiagnostic(t *testing.T) {
	pub := publisher.New()
	sub, err := pub.Subscribe("test")
	require.NoError(t, err)

	p := New(Deps{Publisher: pub})
	p.HandleDropped(datagram("at1;\xff;", 0), errors.ErrNonASCII)

	got := sub.Drain(10)
	require.Len(t, got, 1)
	assert.Equal(t, publisher.KindDiagnostic, got[0].Kind)
	assert.ErrorIs(t, got[0].Err, errors.ErrNonASCII)
	assert.Equal(t, arrival, got[0].At)
}

func TestConnectionNoticeUpdatesLinkGauge(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	p := New(Deps{Publisher: publisher.New(), MetricsRegistry: registry})

	p.HandleDatagram(datagram("Udp Port 6000 connected;", 0))
	assert.True(t, p.State().Link.Connected)
	assert.Equal(t, 1.0, prom.ToFloat64(registry.CoreMetrics().ScoringLinkUp))

	p.HandleDatagram(datagram("Udp Port 6000 disconnected;", time.Second))
	assert.False(t, p.State().Link.Connected)
	assert.Equal(t, 0.0, prom.ToFloat64(registry.CoreMetrics().ScoringLinkUp))
}

func TestStateReadableDuringIngest(t *testing.T) {
	p := New(Deps{Publisher: publisher.New()})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p.HandleDatagram(datagram("sc1;1;sc2;2;clk;1:00;", time.Duration(i)))
		}
	}()
	for i := 0; i < 200; i++ {
		s := p.State()
		assert.True(t, s.Scores == [2]int{0, 0} || s.Scores[0] == 1)
	}
	wg.Wait()
	assert.Equal(t, [2]int{1, 2}, p.State().Scores)
}

func TestEndToEndOverUDP(t *testing.T) {
	pub := publisher.New()
	sub, err := pub.Subscribe("e2e", publisher.WithKinds(publisher.KindState))
	require.NoError(t, err)

	p := New(Deps{Publisher: pub})
	listener := udp.NewListener(udp.ListenerDeps{
		Config:  udp.Config{Bind: "127.0.0.1", Port: 0},
		Handler: p,
	})
	require.NoError(t, listener.Initialize())
	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop(time.Second)

	conn, err := net.Dial("udp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	for _, payload := range []string{
		"pre;FightLoaded;",
		"pt1;3;",
		"s11;3;s21;0;s12;0;s22;0;s13;0;s23;0;",
		"sc1;3;sc2;0;",
		"ch1;",
		"ch1;1;1;",
	} {
		_, err := conn.Write([]byte(payload))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// pre, pt1, six sub-scores, two scores, two challenges
	const wantStates = 12
	var last publisher.Notification
	for i := 0; i < wantStates; i++ {
		last, err = sub.Next(ctx)
		require.NoError(t, err, "state %d", i)
	}

	s := last.State
	assert.Equal(t, [2]int{3, 0}, s.Scores)
	assert.Equal(t, [2]int{3, 0}, s.SubScores[0])
	assert.Equal(t, protocol.ChallengeWon, s.Challenges[protocol.PartyAthlete1])
	assert.Equal(t, s, p.State())
}
