package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	a := reg.GetOrCreate("dev-1")
	b := reg.GetOrCreate("dev-1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "dev-1", a.ID())
}

func TestRegistry_GetDoesNotCreate(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Get("ghost")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Pending("ghost"))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_TouchAndRecordEvent(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	reg.Touch("dev")
	now = now.Add(time.Minute)
	reg.RecordEvent("dev", KindDOMSnapshot)
	reg.RecordEvent("dev", KindNavigationComplete)

	info, ok := reg.Get("dev")
	require.True(t, ok)
	assert.Equal(t, now.Add(-time.Minute), info.FirstSeen)
	assert.Equal(t, now, info.LastSeen)
	assert.Equal(t, int64(2), info.EventCount)
	assert.Equal(t, KindNavigationComplete, info.LastEvent)
}

func TestRegistry_QueueFIFO(t *testing.T) {
	reg := NewRegistry()
	g := NewGate(reg, DefaultGateConfig())
	var ids []string
	for i := 0; i < 4; i++ {
		cmd := mustCommand(t, ActionScroll, "")
		ids = append(ids, cmd.ID)
		_, err := g.Submit("dev", cmd)
		require.NoError(t, err)
	}
	assert.Len(t, reg.Pending("dev"), 4)

	got := g.Drain("dev")
	require.Len(t, got, 4)
	for i, c := range got {
		assert.Equal(t, ids[i], c.ID)
	}
	empty := g.Drain("dev")
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRegistry_NoDeduplication(t *testing.T) {
	reg := NewRegistry()
	g := NewGate(reg, DefaultGateConfig())
	cmd := mustCommand(t, ActionScroll, "")
	_, _ = g.Submit("dev", cmd)
	_, _ = g.Submit("dev", cmd)
	assert.Len(t, g.Drain("dev"), 2)
}

func TestRegistry_PendingDoesNotBypassGate(t *testing.T) {
	reg := NewRegistry()
	g := NewGate(reg, DefaultGateConfig())
	_, _ = g.Submit("dev", mustCommand(t, ActionNavigate, "https://x/"))
	require.Len(t, g.Drain("dev"), 1)
	_, _ = g.Submit("dev", mustCommand(t, ActionScroll, ""))

	// inspecting the queue leaves it intact behind the confirmation
	assert.Len(t, reg.Pending("dev"), 1)
	assert.Len(t, reg.Pending("dev"), 1)
	assert.Empty(t, g.Drain("dev"))
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	reg.now = func() time.Time { return now }
	reg.Touch("old")
	now = now.Add(time.Second)
	reg.Touch("new")

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "new", snap[0].ID)
	assert.Equal(t, "old", snap[1].ID)
}

func TestRegistry_SubscribeReplacesPrevious(t *testing.T) {
	reg := NewRegistry()
	first := reg.Subscribe("dev", "c1")
	second := reg.Subscribe("dev", "c2")

	select {
	case <-first.Done():
	default:
		t.Fatal("first subscription should be cancelled")
	}
	select {
	case <-second.Done():
		t.Fatal("second subscription should be live")
	default:
	}

	// closing the stale one must not detach the live one
	first.Close()
	info, _ := reg.Get("dev")
	assert.True(t, info.Subscribed)

	second.Close()
	second.Close()
	info, _ = reg.Get("dev")
	assert.False(t, info.Subscribed)
}

func TestRegistry_EnqueueWakesSubscriber(t *testing.T) {
	reg := NewRegistry()
	g := NewGate(reg, DefaultGateConfig())
	sub := reg.Subscribe("dev", "c1")
	<-sub.C() // initial flush signal

	_, _ = g.Submit("dev", mustCommand(t, ActionScroll, ""))
	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no wake-up after enqueue")
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	reg.now = func() time.Time { return now }
	g := NewGate(reg, DefaultGateConfig())

	_, _ = g.Submit("idle", mustCommand(t, ActionScroll, ""))
	reg.Touch("subscribed")
	sub := reg.Subscribe("subscribed", "c1")
	defer sub.Close()

	now = now.Add(10 * time.Minute)
	reg.Touch("fresh")

	ev := reg.EvictIdle(5 * time.Minute)
	require.Len(t, ev, 1)
	assert.Equal(t, "idle", ev[0].DeviceID)
	assert.Equal(t, 1, ev[0].Discarded)

	_, ok := reg.Get("idle")
	assert.False(t, ok)
	_, ok = reg.Get("subscribed")
	assert.True(t, ok)

	// the id is valid again and starts empty
	assert.Empty(t, g.Drain("idle"))
	_, ok = reg.Get("idle")
	assert.True(t, ok)
}

func TestRegistry_EvictedDeviceIsRecreatedOnRace(t *testing.T) {
	reg := NewRegistry()
	stale := reg.GetOrCreate("dev")
	now := time.Now().Add(time.Hour)
	reg.now = func() time.Time { return now }
	require.Len(t, reg.EvictIdle(time.Minute), 1)

	g := NewGate(reg, DefaultGateConfig())
	_, _ = g.Submit("dev", mustCommand(t, ActionScroll, ""))
	fresh := reg.GetOrCreate("dev")
	assert.NotSame(t, stale, fresh)
	assert.Len(t, reg.Pending("dev"), 1)
}

func TestRegistry_ConcurrentDevices(t *testing.T) {
	reg := NewRegistry()
	g := NewGate(reg, DefaultGateConfig())
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				cmd, _ := NewCommand(ActionScroll, id)
				_, _ = g.Submit(id, cmd)
			}
		}(id)
	}
	wg.Wait()
	for _, id := range []string{"a", "b", "c", "d"} {
		got := g.Drain(id)
		require.Len(t, got, 100)
		for _, c := range got {
			assert.Equal(t, id, c.Value)
		}
	}
}

func TestReaper_Sweep(t *testing.T) {
	reg := NewRegistry()
	cfg := DefaultGateConfig()
	cfg.ConfirmTTL = time.Minute
	gate := NewGate(reg, cfg)

	now := time.Now()
	reg.now = func() time.Time { return now }
	gate.now = func() time.Time { return now }

	_, _ = gate.Submit("nav", mustCommand(t, ActionNavigate, "https://example.com/"))
	require.Len(t, gate.Drain("nav"), 1)
	reg.Touch("gone")

	var evicted []string
	r := NewReaper(reg, gate, ReaperConfig{
		IdleTimeout: 10 * time.Minute,
		OnEvict:     func(e Eviction) { evicted = append(evicted, e.DeviceID) },
	}, zerolog.Nop())

	now = now.Add(2 * time.Minute)
	reg.Touch("nav")
	expired, ev := r.Sweep()
	assert.Equal(t, 1, expired)
	assert.Empty(t, ev)

	now = now.Add(9 * time.Minute)
	expired, ev = r.Sweep()
	assert.Equal(t, 0, expired)
	require.Len(t, ev, 1)
	assert.Equal(t, []string{"gone"}, evicted)
}

func TestReaper_StartStop(t *testing.T) {
	reg := NewRegistry()
	r := NewReaper(reg, NewGate(reg, DefaultGateConfig()), ReaperConfig{SweepInterval: 5 * time.Millisecond}, zerolog.Nop())
	r.Start()
	r.Start()
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	r.Stop()
}
