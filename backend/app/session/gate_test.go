package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCommand(t *testing.T, action, value string) Command {
	t.Helper()
	cmd, err := NewCommand(action, value)
	require.NoError(t, err)
	return cmd
}

func newTestGate(cfg GateConfig) (*Registry, *Gate) {
	reg := NewRegistry()
	return reg, NewGate(reg, cfg)
}

func TestGate_GatedCommandDeliveredOnce(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())
	nav := mustCommand(t, ActionNavigate, "https://example.com/a/")

	outcome, err := g.Submit("dev-1", nav)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	first := g.Drain("dev-1")
	require.Len(t, first, 1)
	assert.Equal(t, nav.ID, first[0].ID)

	second := g.Drain("dev-1")
	assert.NotNil(t, second)
	assert.Empty(t, second)

	pending, ok := g.Pending("dev-1")
	require.True(t, ok)
	assert.Equal(t, nav.ID, pending.Command.ID)
}

func TestGate_PendingBlocksEntireQueue(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())
	_, _ = g.Submit("dev-1", mustCommand(t, ActionNavigate, "https://example.com/"))
	require.Len(t, g.Drain("dev-1"), 1)

	for i := 0; i < 3; i++ {
		outcome, err := g.Submit("dev-1", mustCommand(t, ActionScroll, ""))
		require.NoError(t, err)
		assert.Equal(t, OutcomeQueued, outcome)
	}
	for i := 0; i < 5; i++ {
		assert.Empty(t, g.Drain("dev-1"), "poll %d must be empty while confirmation pending", i)
	}

	_, ok := g.Confirm("dev-1", "https://example.com/")
	require.True(t, ok)

	got := g.Drain("dev-1")
	require.Len(t, got, 3)
	for _, c := range got {
		assert.Equal(t, ActionScroll, c.Action)
	}
}

func TestGate_DrainStopsAfterFirstGatedCommand(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.Overlap = OverlapQueue
	_, g := newTestGate(cfg)

	s1 := mustCommand(t, ActionScroll, "")
	n1 := mustCommand(t, ActionNavigate, "https://example.com/one")
	s2 := mustCommand(t, ActionScroll, "")
	n2 := mustCommand(t, ActionNavigate, "https://example.com/two")
	for _, c := range []Command{s1, n1, s2, n2} {
		_, err := g.Submit("dev-1", c)
		require.NoError(t, err)
	}

	got := g.Drain("dev-1")
	require.Len(t, got, 2)
	assert.Equal(t, []string{s1.ID, n1.ID}, []string{got[0].ID, got[1].ID})
	assert.Empty(t, g.Drain("dev-1"))

	_, ok := g.Confirm("dev-1", "https://example.com/one")
	require.True(t, ok)
	got = g.Drain("dev-1")
	require.Len(t, got, 2)
	assert.Equal(t, []string{s2.ID, n2.ID}, []string{got[0].ID, got[1].ID})
}

func TestGate_OverlapDrop(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())

	outcome, _ := g.Submit("dev-1", mustCommand(t, ActionNavigate, "https://example.com/1"))
	assert.Equal(t, OutcomeQueued, outcome)

	// queued but not yet dispatched
	outcome, _ = g.Submit("dev-1", mustCommand(t, ActionNavigate, "https://example.com/2"))
	assert.Equal(t, OutcomeDropped, outcome)

	require.Len(t, g.Drain("dev-1"), 1)

	// dispatched and pending confirmation
	outcome, _ = g.Submit("dev-1", mustCommand(t, ActionNavigate, "https://example.com/3"))
	assert.Equal(t, OutcomeDropped, outcome)

	// non-gated commands are unaffected
	outcome, _ = g.Submit("dev-1", mustCommand(t, ActionScroll, ""))
	assert.Equal(t, OutcomeQueued, outcome)

	_, ok := g.Confirm("dev-1", "https://example.com/1")
	require.True(t, ok)
	got := g.Drain("dev-1")
	require.Len(t, got, 1)
	assert.Equal(t, ActionScroll, got[0].Action)
}

func TestGate_OverlapQueue(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.Overlap = OverlapQueue
	_, g := newTestGate(cfg)

	_, _ = g.Submit("dev-1", mustCommand(t, ActionNavigate, "https://example.com/1"))
	require.Len(t, g.Drain("dev-1"), 1)

	outcome, _ := g.Submit("dev-1", mustCommand(t, ActionNavigate, "https://example.com/2"))
	assert.Equal(t, OutcomeQueued, outcome)
	assert.Empty(t, g.Drain("dev-1"))

	_, ok := g.Confirm("dev-1", "")
	require.True(t, ok)
	got := g.Drain("dev-1")
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/2", got[0].Value)
}

func TestGate_MatchModes(t *testing.T) {
	const target = "https://www.linkedin.com/company/test-company/"
	tests := []struct {
		mode     MatchMode
		reported string
		want     bool
	}{
		{MatchAny, "", true},
		{MatchAny, "https://elsewhere.example/", true},
		{MatchExact, target, true},
		{MatchExact, "https://www.linkedin.com/company/test-company", false},
		{MatchExact, target + "?trk=1", false},
		{MatchPrefix, target, true},
		{MatchPrefix, "https://www.linkedin.com/company/test-company", true},
		{MatchPrefix, target + "jobs/?trk=1", true},
		{MatchPrefix, "https://www.linkedin.com/company/other/", false},
		{MatchPrefix, "https://www.linkedin.com/company/test-companyX", false},
		{MatchPrefix, "https://www.linkedin.com/company/test-company-two/", false},
		{MatchPrefix, "https://www.linkedin.com/company/test-company?trk=1", true},
		{MatchPrefix, "https://www.linkedin.com/company/test-company#about", true},
		{MatchPrefix, "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.mode, tt.reported), func(t *testing.T) {
			cfg := DefaultGateConfig()
			cfg.Match = tt.mode
			_, g := newTestGate(cfg)
			_, _ = g.Submit("dev", mustCommand(t, ActionNavigate, target))
			require.Len(t, g.Drain("dev"), 1)

			_, ok := g.Confirm("dev", tt.reported)
			assert.Equal(t, tt.want, ok)
			_, stillPending := g.Pending("dev")
			assert.Equal(t, !tt.want, stillPending)
		})
	}
}

func TestGate_ConfirmWithoutPendingIsNoop(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())
	_, ok := g.Confirm("never-seen", "https://example.com/")
	assert.False(t, ok)

	_, _ = g.Submit("dev", mustCommand(t, ActionScroll, ""))
	_, ok = g.Confirm("dev", "https://example.com/")
	assert.False(t, ok)
	assert.Len(t, g.Drain("dev"), 1)
}

func TestGate_ConfirmTTL(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.ConfirmTTL = time.Minute
	_, g := newTestGate(cfg)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	var expired []string
	g.OnExpire(func(deviceID string, c Confirmation) {
		expired = append(expired, deviceID+"|"+c.Command.Value)
	})

	_, _ = g.Submit("dev", mustCommand(t, ActionNavigate, "https://example.com/"))
	require.Len(t, g.Drain("dev"), 1)
	_, _ = g.Submit("dev", mustCommand(t, ActionScroll, ""))

	now = now.Add(30 * time.Second)
	assert.Empty(t, g.Drain("dev"))
	assert.Equal(t, 0, g.Expire())

	now = now.Add(31 * time.Second)
	// lazily expired on the next drain
	got := g.Drain("dev")
	require.Len(t, got, 1)
	assert.Equal(t, ActionScroll, got[0].Action)
	assert.Equal(t, []string{"dev|https://example.com/"}, expired)
}

func TestGate_ExpireSweep(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.ConfirmTTL = time.Second
	reg, g := newTestGate(cfg)
	now := time.Now()
	g.now = func() time.Time { return now }

	for _, id := range []string{"a", "b"} {
		_, _ = g.Submit(id, mustCommand(t, ActionNavigate, "https://example.com/"+id))
		require.Len(t, g.Drain(id), 1)
	}
	sub := reg.Subscribe("a", "conn-a")
	<-sub.C()
	_, _ = g.Submit("a", mustCommand(t, ActionScroll, ""))
	<-sub.C()

	now = now.Add(2 * time.Second)
	assert.Equal(t, 2, g.Expire())

	select {
	case <-sub.C():
	default:
		t.Fatal("expected wake-up after expiry released queued commands")
	}
	_, ok := g.Pending("a")
	assert.False(t, ok)
}

func TestGate_ZeroTTLNeverExpires(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.ConfirmTTL = 0
	_, g := newTestGate(cfg)
	now := time.Now()
	g.now = func() time.Time { return now }

	_, _ = g.Submit("dev", mustCommand(t, ActionNavigate, "https://example.com/"))
	require.Len(t, g.Drain("dev"), 1)
	now = now.Add(24 * time.Hour)
	assert.Equal(t, 0, g.Expire())
	_, ok := g.Pending("dev")
	assert.True(t, ok)
}

func TestGate_RequeueRestoresOrderAndDropsConfirmation(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())
	s := mustCommand(t, ActionScroll, "")
	n := mustCommand(t, ActionNavigate, "https://example.com/")
	_, _ = g.Submit("dev", s)
	_, _ = g.Submit("dev", n)

	batch := g.Drain("dev")
	require.Len(t, batch, 2)
	_, ok := g.Pending("dev")
	require.True(t, ok)

	// the transport delivered s but failed on n
	g.Requeue("dev", batch[1:])
	_, ok = g.Pending("dev")
	assert.False(t, ok)

	again := g.Drain("dev")
	require.Len(t, again, 1)
	assert.Equal(t, n.ID, again[0].ID)
}

func TestGate_SubmitValidation(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())
	_, err := g.Submit("", Command{Action: ActionScroll})
	assert.ErrorIs(t, err, ErrEmptyDeviceID)
	_, err = g.Submit("dev", Command{})
	assert.ErrorIs(t, err, ErrEmptyAction)
}

func TestGate_ConfigurableGatedActions(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.GatedActions = []string{"navigate", "click"}
	_, g := newTestGate(cfg)
	assert.True(t, g.IsGated(ActionNavigate))
	assert.True(t, g.IsGated(ActionClick))
	assert.False(t, g.IsGated(ActionScroll))

	g.Configure(GateConfig{Overlap: "bogus", Match: MatchExact})
	got := g.Config()
	assert.Equal(t, OverlapDrop, got.Overlap)
	assert.Equal(t, MatchAny, got.Match)
	assert.Equal(t, []string{ActionNavigate}, got.GatedActions)
}

func TestGate_DevicesAreIsolated(t *testing.T) {
	_, g := newTestGate(DefaultGateConfig())
	_, _ = g.Submit("a", mustCommand(t, ActionNavigate, "https://example.com/a"))
	_, _ = g.Submit("b", mustCommand(t, ActionScroll, ""))

	require.Len(t, g.Drain("a"), 1)
	got := g.Drain("b")
	require.Len(t, got, 1)
	assert.Equal(t, ActionScroll, got[0].Action)

	_, _ = g.Submit("b", mustCommand(t, ActionNavigate, "https://example.com/b"))
	assert.Len(t, g.Drain("b"), 1, "a's confirmation must not gate b")

	_, ok := g.Confirm("a", "")
	require.True(t, ok)
	_, ok = g.Pending("b")
	assert.True(t, ok, "clearing a must not clear b")
}

func TestGate_ConcurrentPollersNeverSeeTwoDirectives(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.Overlap = OverlapQueue
	_, g := newTestGate(cfg)

	const navs = 50
	for i := 0; i < navs; i++ {
		_, err := g.Submit("dev", mustCommand(t, ActionNavigate, fmt.Sprintf("https://example.com/%d", i)))
		require.NoError(t, err)
	}

	var (
		mu        sync.Mutex
		delivered []Command
		wg        sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				done := len(delivered) == navs
				mu.Unlock()
				if done {
					return
				}
				batch := g.Drain("dev")
				if len(batch) > 1 {
					t.Errorf("drain returned %d gated commands", len(batch))
					return
				}
				if len(batch) == 1 {
					mu.Lock()
					delivered = append(delivered, batch[0])
					mu.Unlock()
					if _, ok := g.Confirm("dev", ""); !ok {
						t.Errorf("confirmation missing after delivery")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, delivered, navs)
	seen := make(map[string]bool)
	for _, c := range delivered {
		assert.False(t, seen[c.ID], "command %s delivered twice", c.ID)
		seen[c.ID] = true
	}
}

func TestGate_PrefixMatchStopsAtSegment(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.Match = MatchPrefix
	_, g := newTestGate(cfg)
	_, _ = g.Submit("dev", mustCommand(t, ActionNavigate, "https://www.linkedin.com/company/test/"))
	require.Len(t, g.Drain("dev"), 1)

	_, ok := g.Confirm("dev", "https://www.linkedin.com/company/testing-other-co")
	assert.False(t, ok)
	_, ok = g.Confirm("dev", "https://www.linkedin.com/company/test/jobs/")
	assert.True(t, ok)
}
