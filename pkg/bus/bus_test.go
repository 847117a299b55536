package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/small-frappuccino/plana/pkg/models"
)

func verifyNoLeaks(t *testing.T) {
	t.Helper()
	opt := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, opt) })
}

func startBus(t *testing.T, dedupe time.Duration) (*miniredis.Miniredis, *Bus) {
	t.Helper()
	mr := miniredis.RunT(t)
	b := New(&redis.Options{Addr: mr.Addr()}, dedupe)
	t.Cleanup(func() { _ = b.Disconnect(context.Background()) })
	return mr, b
}

// listen runs the loop in the background and waits until it is receiving.
func listen(t *testing.T, b *Bus) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- b.Listen(context.Background()) }()
	require.Eventually(t, func() bool { return b.State() == StateListening }, 2*time.Second, 10*time.Millisecond)
	return errc
}

func refreshPayload(t *testing.T, guildID models.Snowflake, name string, ts time.Time) string {
	t.Helper()
	raw, err := Encode(Event{Kind: KindGuildConfigRefresh, GuildID: guildID, Data: &ConfigRefresh{Name: name}, Timestamp: ts})
	require.NoError(t, err)
	return string(raw)
}

func TestConnectIsIdempotent(t *testing.T) {
	verifyNoLeaks(t)
	_, b := startBus(t, 0)
	ctx := context.Background()

	require.NoError(t, b.Connect(ctx))
	first := b.Client()
	require.NoError(t, b.Connect(ctx))
	assert.Same(t, first, b.Client())
	assert.Equal(t, StateConnected, b.State())

	require.NoError(t, b.Disconnect(ctx))
	assert.Equal(t, StateDisconnected, b.State())
	assert.Nil(t, b.Client())
}

func TestConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	b := New(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond}, 0)
	assert.Error(t, b.Connect(context.Background()))
	assert.Equal(t, StateDisconnected, b.State())
}

func TestListenRequiresSubscription(t *testing.T) {
	b := New(&redis.Options{Addr: "127.0.0.1:0"}, 0)
	assert.ErrorIs(t, b.Listen(context.Background()), ErrNotSubscribed)
}

func TestSubscribeModes(t *testing.T) {
	mr, b := startBus(t, 0)
	ctx := context.Background()

	require.NoError(t, b.Subscribe(ctx, 1, 2))
	require.NoError(t, b.Subscribe(ctx, 2, 3))
	assert.Equal(t, StateSubscribed, b.State())
	assert.ElementsMatch(t, []string{"events:1", "events:2", "events:3"}, b.Topics())
	require.Eventually(t, func() bool {
		n := mr.PubSubNumSub("events:1", "events:2", "events:3")
		return n["events:1"] == 1 && n["events:2"] == 1 && n["events:3"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Subscribe(ctx))
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedEnvelopeDoesNotStopDispatch(t *testing.T) {
	verifyNoLeaks(t)
	mr, b := startBus(t, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	got := make(chan Event, 4)
	b.RegisterHandler(KindGuildConfigRefresh, func(_ context.Context, ev Event) error {
		calls.Add(1)
		got <- ev
		return nil
	})
	require.NoError(t, b.Subscribe(ctx))
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)
	errc := listen(t, b)

	mr.Publish("events:7", `{"event":"GUILD_CONFIG_REFRESH","guild_id":`)
	mr.Publish("events:7", refreshPayload(t, 7, "levels", time.Now()))

	select {
	case ev := <-got:
		assert.Equal(t, models.Snowflake(7), ev.GuildID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, b.Disconnect(ctx))
	require.NoError(t, <-errc)
}

func TestDuplicateEnvelopeDispatchedOnce(t *testing.T) {
	mr, b := startBus(t, time.Minute)
	ctx := context.Background()

	got := make(chan Event, 4)
	b.RegisterHandler(KindGuildConfigRefresh, func(_ context.Context, ev Event) error {
		got <- ev
		return nil
	})
	require.NoError(t, b.Subscribe(ctx, 7))
	require.Eventually(t, func() bool { return mr.PubSubNumSub("events:7")["events:7"] == 1 }, 2*time.Second, 10*time.Millisecond)
	listen(t, b)

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := refreshPayload(t, 7, "rss", ts)
	mr.Publish("events:7", payload)
	mr.Publish("events:7", payload)
	mr.Publish("events:7", refreshPayload(t, 7, "rss", ts.Add(time.Second)))

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected two dispatches, got %d", i)
		}
	}
	select {
	case <-got:
		t.Fatal("duplicate was dispatched")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFailedEventCanBeRedelivered(t *testing.T) {
	mr, b := startBus(t, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	done := make(chan struct{}, 4)
	b.RegisterHandler(KindGuildConfigRefresh, func(_ context.Context, _ Event) error {
		defer func() { done <- struct{}{} }()
		if calls.Add(1) == 1 {
			return errors.New("backend unavailable")
		}
		return nil
	})
	require.NoError(t, b.Subscribe(ctx, 7))
	require.Eventually(t, func() bool { return mr.PubSubNumSub("events:7")["events:7"] == 1 }, 2*time.Second, 10*time.Millisecond)
	listen(t, b)

	payload := refreshPayload(t, 7, "levels", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 3; i++ {
		mr.Publish("events:7", payload)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected the failed event to be retried, got %d calls", calls.Load())
		}
	}
	select {
	case <-done:
		t.Fatal("event handled successfully was dispatched again")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandlerFailuresAreContained(t *testing.T) {
	mr, b := startBus(t, 0)
	ctx := context.Background()

	var n atomic.Int32
	done := make(chan struct{})
	b.RegisterHandler(KindGuildConfigRefresh, func(context.Context, Event) error {
		switch n.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("backend down")
		default:
			close(done)
			return nil
		}
	})
	require.NoError(t, b.Subscribe(ctx))
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)
	listen(t, b)

	for i := 0; i < 3; i++ {
		mr.Publish("events:1", refreshPayload(t, 1, "levels", time.Now().Add(time.Duration(i)*time.Second)))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop stopped after %d events", n.Load())
	}
}

func TestRegisterHandlerReplaces(t *testing.T) {
	mr, b := startBus(t, 0)
	ctx := context.Background()

	var first, second atomic.Int32
	done := make(chan struct{}, 1)
	b.RegisterHandler(KindMessageDelete, func(context.Context, Event) error { first.Add(1); return nil })
	b.RegisterHandler(KindMessageDelete, func(context.Context, Event) error {
		second.Add(1)
		done <- struct{}{}
		return nil
	})
	require.NoError(t, b.Subscribe(ctx))
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)
	listen(t, b)

	mr.Publish("events:3", `{"event":"MESSAGE_DELETE","guild_id":3,"data":{"id":1}}`)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestStopWaitsForLoop(t *testing.T) {
	mr, b := startBus(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, b.Subscribe(ctx))
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)
	errc := listen(t, b)

	require.NoError(t, b.Stop(ctx))
	require.NoError(t, <-errc)
	assert.Equal(t, StateSubscribed, b.State())
	require.NoError(t, b.Stop(ctx))

	errc = listen(t, b)
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, b.Disconnect(stopCtx))
	require.NoError(t, <-errc)
}

func TestPublisherRoundTrip(t *testing.T) {
	mr, b := startBus(t, 0)
	ctx := context.Background()

	got := make(chan Event, 1)
	b.RegisterHandler(KindMessageCreate, func(_ context.Context, ev Event) error {
		got <- ev
		return nil
	})
	require.NoError(t, b.Subscribe(ctx, 9))
	require.Eventually(t, func() bool { return mr.PubSubNumSub("events:9")["events:9"] == 1 }, 2*time.Second, 10*time.Millisecond)
	listen(t, b)

	pub := NewPublisher(b.Client())
	n, err := pub.Publish(ctx, Event{Kind: KindMessageCreate, GuildID: 9, Data: &models.Message{ID: 4, ChannelID: 5, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case ev := <-got:
		m, ok := ev.Message()
		require.True(t, ok)
		assert.Equal(t, "hi", m.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}

	_, err = pub.Publish(ctx, Event{Kind: KindMessageCreate})
	assert.Error(t, err)
}
