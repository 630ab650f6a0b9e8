// internal/match/match_test.go
package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clashcourse/clashcourse/internal/models"
	"github.com/clashcourse/clashcourse/internal/question"
)

// correctShortAnswer is the canned answer StaticService accepts for short
// questions.
const correctShortAnswer = "The main concept involves understanding the fundamental principles presented in the text."

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event            // Events sent to everyone
	playerEvents map[string][]Event // Events sent to specific players
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[string][]Event),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(player string, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[player] = append(mb.playerEvents[player], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = []Event{}
	mb.playerEvents = make(map[string][]Event)
}

func (mb *mockBroadcaster) getLastPlayerEvent(player string) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events, ok := mb.playerEvents[player]
	if !ok || len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

func (mb *mockBroadcaster) getLastPlayerEventOfType(player string, et EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[player]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == et {
			return &events[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) getLastOfType(et EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == et {
			return &mb.allEvents[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) countOfType(et EventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.allEvents {
		if ev.Type == et {
			n++
		}
	}
	return n
}

// testFragments builds a small course content pool.
func testFragments(n int) []models.Fragment {
	frags := make([]models.Fragment, n)
	for i := range frags {
		frags[i] = models.Fragment{
			DocID:      "doc-1",
			FileName:   "notes.pdf",
			Page:       i + 1,
			FragmentID: fmt.Sprintf("frag-%d", i),
			CharStart:  i * 100,
			CharEnd:    i*100 + 99,
			Text:       fmt.Sprintf("Study fragment %d covering the fundamental principles of the subject.", i),
		}
	}
	return frags
}

// setupCustomMatch seats alice and bob on a match built from cfg, with a
// fake clock and the mock broadcaster attached. The match is still waiting;
// nobody is connected yet.
func setupCustomMatch(t *testing.T, cfg Config) (*Match, *mockBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	cfg.Clock = fc
	if cfg.Fragments == nil {
		cfg.Fragments = testFragments(3)
	}
	m := New(cfg)
	mb := newMockBroadcaster()
	m.BroadcastFn = mb.broadcastFn
	m.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	for _, name := range []string{"alice", "bob"} {
		_, err := m.AddPlayer(name)
		require.NoError(t, err)
	}
	return m, mb, fc
}

// setupTestMatch is setupCustomMatch with canned short questions.
func setupTestMatch(t *testing.T, timeLimit int) (*Match, *mockBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	return setupCustomMatch(t, Config{
		CourseID:  "course-1",
		TimeLimit: timeLimit,
		Types:     []models.QuestionType{models.QuestionShort},
		Questions: question.NewStaticService(),
	})
}

// connectBoth attaches both players with mock connections and checks that the
// match activated. Conn/out/cancel stay nil: socket behavior is the gateway's
// concern, the engine only tracks attachment.
func connectBoth(t *testing.T, m *Match, mb *mockBroadcaster) {
	t.Helper()
	require.NoError(t, m.HandleConnect("alice", nil, nil, nil))
	require.NoError(t, m.HandleConnect("bob", nil, nil, nil))
	require.Equal(t, StatusActive, matchStatus(m))
	require.Equal(t, 1, mb.countOfType(EventMatchReady))
}

// startFirstRound advances through the ready grace and waits for round 1.
// Round starts run on timer goroutines, so the broadcast is polled.
func startFirstRound(t *testing.T, m *Match, mb *mockBroadcaster, fc *clockwork.FakeClock) RoundStartData {
	t.Helper()
	fc.BlockUntil(1)
	fc.Advance(ReadyGrace)
	require.Eventually(t, func() bool {
		return mb.countOfType(EventRoundStart) >= 1
	}, time.Second, 5*time.Millisecond, "round 1 should start after the ready grace")
	ev := mb.getLastOfType(EventRoundStart)
	return ev.Data.(RoundStartData)
}

// tickOnce advances the countdown by one second and waits for the engine to
// process the tick.
func tickOnce(t *testing.T, mb *mockBroadcaster, fc *clockwork.FakeClock) RoundUpdateData {
	t.Helper()
	before := mb.countOfType(EventRoundUpdate)
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return mb.countOfType(EventRoundUpdate) > before
	}, time.Second, 5*time.Millisecond, "countdown tick should broadcast a round_update")
	return mb.getLastOfType(EventRoundUpdate).Data.(RoundUpdateData)
}

// Lock-safe state readers.

func matchStatus(m *Match) Status {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Status
}

func matchWinner(m *Match) string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Winner
}

func currentRound(m *Match) *Round {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Round
}

func playerHP(m *Match, name string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	p := m.getPlayer(name)
	if p == nil {
		return -1
	}
	return p.HP
}

func setPlayerHP(m *Match, name string, hp int) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.getPlayer(name).HP = hp
}

func TestNewDefaults(t *testing.T) {
	m := New(Config{Questions: question.NewStaticService()})
	assert.Len(t, m.ID, 8)
	assert.Equal(t, StatusWaiting, m.Status)
	assert.Equal(t, DefaultTimeLimit, m.TimeLimit)
	assert.Equal(t, models.DifficultyMedium, m.Difficulty)
	assert.Equal(t, []models.QuestionType{models.QuestionShort, models.QuestionCalc}, m.Types)
}

func TestAddPlayerSeatingRules(t *testing.T) {
	m := New(Config{Questions: question.NewStaticService(), Clock: clockwork.NewFakeClock()})

	_, err := m.AddPlayer("alice")
	require.NoError(t, err)

	_, err = m.AddPlayer("alice")
	assert.ErrorIs(t, err, ErrNameTaken)

	_, err = m.AddPlayer("bob")
	require.NoError(t, err)

	_, err = m.AddPlayer("carol")
	assert.ErrorIs(t, err, ErrMatchFull)
}

// TestActivationHappensOnce races both connects and checks the transition is
// single-shot.
func TestActivationHappensOnce(t *testing.T) {
	m, mb, _ := setupTestMatch(t, 30)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			errs <- m.HandleConnect(name, nil, nil, nil)
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, StatusActive, matchStatus(m))
	assert.Equal(t, 1, mb.countOfType(EventMatchReady), "activation must broadcast exactly once")
}

func TestConnectUnknownPlayer(t *testing.T) {
	m, _, _ := setupTestMatch(t, 30)
	err := m.HandleConnect("mallory", nil, nil, nil)
	assert.ErrorIs(t, err, ErrPlayerNotInMatch)
	assert.Equal(t, StatusWaiting, matchStatus(m))
}

func TestMatchReadyCarriesHealths(t *testing.T) {
	m, mb, _ := setupTestMatch(t, 30)
	connectBoth(t, m, mb)

	ev := mb.getLastOfType(EventMatchReady)
	require.NotNil(t, ev)
	data := ev.Data.(MatchReadyData)
	assert.Equal(t, MaxHealth, data.Players["alice"].HP)
	assert.Equal(t, MaxHealth, data.Players["bob"].HP)
}

// TestReconnectReplaysLiveRound drops bob mid-round and checks the snapshot
// he gets back: both healths, the open question with decremented time, and
// citation metadata with the fragment text stripped.
func TestReconnectReplaysLiveRound(t *testing.T) {
	m, mb, fc := setupTestMatch(t, 30)
	connectBoth(t, m, mb)
	startFirstRound(t, m, mb, fc)
	tickOnce(t, mb, fc)

	m.HandleDisconnect("bob", nil)
	mb.clear()
	require.NoError(t, m.HandleConnect("bob", nil, nil, nil))

	ready := mb.getLastPlayerEventOfType("bob", EventMatchReady)
	require.NotNil(t, ready, "reconnect must replay the health snapshot")
	assert.Equal(t, MaxHealth, ready.Data.(MatchReadyData).Players["alice"].HP)

	snap := mb.getLastPlayerEvent("bob")
	require.NotNil(t, snap)
	require.Equal(t, EventRoundStart, snap.Type, "reconnect must replay the live round")
	data := snap.Data.(RoundStartData)
	assert.Equal(t, 1, data.RoundNumber)
	assert.Equal(t, 29, data.SecondsLeft, "replayed round carries the remaining time, not the full limit")
	assert.NotEmpty(t, data.QuestionText)
	require.NotEmpty(t, data.Citation)
	for _, f := range data.Citation {
		assert.Empty(t, f.Text, "citation fragments must not leak content before resolution")
		assert.NotEmpty(t, f.FragmentID)
	}

	assert.Equal(t, 0, mb.countOfType(EventMatchReady), "snapshot is private, not broadcast")
}

// TestDisconnectKeepsMatchState checks a drop never mutates combat state and
// the remaining player can still win the round.
func TestDisconnectKeepsMatchState(t *testing.T) {
	m, mb, fc := setupTestMatch(t, 30)
	connectBoth(t, m, mb)
	start := startFirstRound(t, m, mb, fc)

	m.HandleDisconnect("bob", nil)
	assert.Equal(t, MaxHealth, playerHP(m, "bob"))
	assert.Equal(t, StatusActive, matchStatus(m))
	require.NotNil(t, currentRound(m))

	res, err := m.SubmitAnswer(context.Background(), "alice", start.QuestionID, correctShortAnswer)
	require.NoError(t, err)
	assert.Equal(t, 50, res.DamageDealt)
	assert.Equal(t, 50, playerHP(m, "bob"), "an absent player still takes damage")
}

// TestDisconnectIgnoresReplacedSocket checks that the read loop of an old
// socket exiting after a reconnect does not detach the live connection.
func TestDisconnectIgnoresReplacedSocket(t *testing.T) {
	m, mb, _ := setupTestMatch(t, 30)
	connectBoth(t, m, mb)

	m.HandleDisconnect("bob", new(websocket.Conn))

	m.Mu.Lock()
	connected := m.getPlayer("bob").Connected
	m.Mu.Unlock()
	assert.True(t, connected, "a stale socket's exit must not disconnect the live one")
}

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name    string
		aliceHP int
		bobHP   int
		want    string
	}{
		{"higher health wins", 80, 60, "alice"},
		{"sole survivor wins", 0, 12, "bob"},
		{"equal health is a draw", 50, 50, ""},
		{"double zero is a draw", 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := setupTestMatch(t, 30)
			setPlayerHP(m, "alice", tt.aliceHP)
			setPlayerHP(m, "bob", tt.bobHP)

			m.Mu.Lock()
			got := m.decideWinner()
			m.Mu.Unlock()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndMatchAnnouncesOnce(t *testing.T) {
	m, mb, _ := setupTestMatch(t, 30)
	connectBoth(t, m, mb)
	setPlayerHP(m, "bob", 40)

	m.Mu.Lock()
	m.endMatch()
	m.endMatch()
	m.Mu.Unlock()

	assert.Equal(t, StatusFinished, matchStatus(m))
	assert.Equal(t, "alice", matchWinner(m))
	require.Equal(t, 1, mb.countOfType(EventMatchEnd))
	data := mb.getLastOfType(EventMatchEnd).Data.(MatchEndData)
	assert.Equal(t, "alice", data.Winner)
	assert.Equal(t, 100, data.FinalHP["alice"])
	assert.Equal(t, 40, data.FinalHP["bob"])
}

func TestSnapshotView(t *testing.T) {
	m, mb, _ := setupTestMatch(t, 45)

	snap := m.Snapshot()
	assert.Equal(t, m.ID, snap.MatchID)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Equal(t, 45, snap.TimeLimit)
	assert.Empty(t, snap.Winner)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, MaxHealth, snap.Players["alice"].HP)
	assert.False(t, snap.Players["alice"].Connected)

	connectBoth(t, m, mb)
	snap = m.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.True(t, snap.Players["bob"].Connected)
}

func TestStore(t *testing.T) {
	s := NewStore()
	m := New(Config{Questions: question.NewStaticService(), Clock: clockwork.NewFakeClock()})

	s.Add(m)
	got, ok := s.Get(m.ID)
	require.True(t, ok)
	assert.Same(t, m, got)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	s.Delete(m.ID)
	_, ok = s.Get(m.ID)
	assert.False(t, ok)
}
