package publisher

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

var at = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func roundEvent(n int) protocol.Event {
	return protocol.Round{Stamp: protocol.Stamp{At: at}, Number: n}
}

func TestPublishOrderAndSequence(t *testing.T) {
	pub := New()
	a, err := pub.Subscribe("a")
	require.NoError(t, err)
	b, err := pub.Subscribe("b")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		n := pub.Publish(EventNotification(roundEvent(i)))
		assert.Equal(t, uint64(i), n.Seq)
	}
	assert.Equal(t, uint64(5), pub.Seq())

	for _, sub := range []*Subscription{a, b} {
		got := sub.Drain(10)
		require.Len(t, got, 5)
		for i, n := range got {
			assert.Equal(t, uint64(i+1), n.Seq)
			assert.Equal(t, i+1, n.Event.(protocol.Round).Number)
			assert.Equal(t, at, n.At)
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pub := New(WithQueueSize(8), WithMetrics(registry))

	slow, err := pub.Subscribe("slow", WithSubscriberQueueSize(2))
	require.NoError(t, err)
	fast, err := pub.Subscribe("fast")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		pub.Publish(EventNotification(roundEvent(i)))
	}

	got := slow.Drain(10)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].Seq)
	assert.Equal(t, uint64(5), got[1].Seq)
	assert.Equal(t, uint64(3), slow.Dropped())

	assert.Len(t, fast.Drain(10), 5)
	assert.Zero(t, fast.Dropped())

	m := registry.CoreMetrics()
	assert.Equal(t, 3.0, prom.ToFloat64(m.SubscriberDrops.WithLabelValues("slow")))
	assert.Equal(t, 5.0, prom.ToFloat64(m.Notifications.WithLabelValues("event")))
	assert.Equal(t, 2.0, prom.ToFloat64(m.Subscribers))
}

func TestPublishNeverBlocks(t *testing.T) {
	pub := New(WithQueueSize(1))
	_, err := pub.Subscribe("idle")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			pub.Publish(StateNotification(match.New(), time.Time{}))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on an idle subscriber")
	}
}

func TestNextWaitsForPublish(t *testing.T) {
	pub := New()
	sub, err := pub.Subscribe("reader")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		pub.Publish(DiagnosticNotification(errors.ErrUnknownTag, "zz1;5;", at))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindDiagnostic, n.Kind)
	assert.Equal(t, "zz1;5;", n.Raw)
	assert.ErrorIs(t, n.Err, errors.ErrUnknownTag)
}

func TestNextHonoursContext(t *testing.T) {
	pub := New()
	sub, err := pub.Subscribe("reader")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnblocksReaders(t *testing.T) {
	pub := New()
	sub, err := pub.Subscribe("reader")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSubscriptionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	assert.Zero(t, pub.Subscribers())
}

func TestQueuedNotificationsSurviveClose(t *testing.T) {
	pub := New()
	sub, err := pub.Subscribe("reader")
	require.NoError(t, err)

	pub.Publish(EventNotification(roundEvent(1)))
	require.NoError(t, pub.Close())
	pub.Publish(EventNotification(roundEvent(2)))

	n, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n.Seq)

	_, err = sub.Next(context.Background())
	assert.True(t, stderrors.Is(err, ErrSubscriptionClosed))

	_, err = pub.Subscribe("late")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestSubscribeNames(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pub := New(WithMetrics(registry))

	_, err := pub.Subscribe("")
	assert.True(t, errors.IsInvalid(err))

	first, err := pub.Subscribe("overlay")
	require.NoError(t, err)

	_, err = pub.Subscribe("overlay")
	assert.ErrorIs(t, err, ErrDuplicateSubscriber)

	require.NoError(t, first.Close())
	again, err := pub.Subscribe("overlay")
	require.NoError(t, err, "a closed subscription frees its name and queue metrics")
	assert.Equal(t, "overlay", again.Name())
}

func TestKindFilter(t *testing.T) {
	pub := New()
	states, err := pub.Subscribe("states", WithKinds(KindState))
	require.NoError(t, err)
	all, err := pub.Subscribe("all")
	require.NoError(t, err)

	pub.Publish(EventNotification(roundEvent(1)))
	pub.Publish(StateNotification(match.New(), time.Time{}))
	pub.Publish(DiagnosticNotification(errors.ErrNonASCII, "\xff", at))

	got := states.Drain(10)
	require.Len(t, got, 1)
	assert.Equal(t, KindState, got[0].Kind)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Len(t, all.Drain(10), 3)
	assert.Zero(t, states.Pending())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "event", KindEvent.String())
	assert.Equal(t, "state", KindState.String())
	assert.Equal(t, "diagnostic", KindDiagnostic.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
