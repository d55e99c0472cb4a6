package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"triviarena/config"

	"github.com/stretchr/testify/require"
)

// fakeScheduler gives tests full control over time. Timers fire when advance
// crosses their deadline; firing enqueues into the room inbox exactly like
// production, and tests drain the inbox themselves.
type fakeScheduler struct {
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) Now() time.Time { return s.now }

func (s *fakeScheduler) Schedule(d time.Duration, fn func()) TimerHandle {
	t := &fakeTimer{at: s.now.Add(d), fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() { t.stopped = true }

func (s *fakeScheduler) advance(d time.Duration) {
	s.now = s.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(s.now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fired = true
		t.fn()
	}
}

// recordingSender captures outbound frames per connection id.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][][]byte)}
}

func (s *recordingSender) Send(connID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[connID] = append(s.frames[connID], data)
}

// stubSource returns a fixed question set, or an error.
type stubSource struct {
	questions []Question
	err       error
}

func (s stubSource) Fetch(context.Context, string, string, int) ([]Question, error) {
	return s.questions, s.err
}

func testRoomConfig() config.RoomConfig {
	return config.RoomConfig{
		MaxParticipants:   20,
		QuestionCount:     2,
		TeamRevealTime:    5 * time.Second,
		CaptainVoteTime:   20 * time.Second,
		TeamNamingTime:    20 * time.Second,
		QuestionTime:      30 * time.Second,
		RevealTime:        5 * time.Second,
		HostReconnectTime: 30 * time.Second,
		ChatHistorySize:   16,
	}
}

func fixedQuestions(n int) []Question {
	questions := make([]Question, n)
	for i := range questions {
		questions[i] = Question{
			ID:         uint(i + 1),
			Text:       "Which option is first?",
			Options:    [4]string{"first", "second", "third", "fourth"},
			Correct:    0,
			Difficulty: "easy",
		}
	}
	return questions
}

// testRoom drives the actor synchronously: commands are dispatched inline and
// the inbox is drained by hand, so tests control interleaving exactly.
type testRoom struct {
	t      *testing.T
	room   *Room
	sched  *fakeScheduler
	sender *recordingSender
}

func newTestRoom(t *testing.T, mode GameMode, questions []Question) *testRoom {
	t.Helper()
	sched := newFakeScheduler()
	sender := newRecordingSender()
	room, err := NewRoom(RoomParams{
		Pin:           "abc123",
		Topic:         "general",
		Difficulty:    "easy",
		Mode:          mode,
		QuestionCount: len(questions),
	}, testRoomConfig(), sched, stubSource{questions: questions}, nil, sender)
	require.NoError(t, err)
	return &testRoom{t: t, room: room, sched: sched, sender: sender}
}

// drain processes everything already queued.
func (tr *testRoom) drain() {
	for {
		select {
		case cmd := <-tr.room.inbox:
			if tr.room.dispatch(cmd) {
				tr.room.broadcast()
			}
		default:
			return
		}
	}
}

func (tr *testRoom) join(name string, params JoinParams) JoinResult {
	tr.t.Helper()
	params.Name = name
	if params.ConnID == "" {
		params.ConnID = "conn-" + name
	}
	reply := make(chan joinReply, 1)
	tr.room.dispatch(joinCmd{params: params, reply: reply})
	rep := <-reply
	require.Nil(tr.t, rep.err, "join %s rejected: %v", name, rep.err)
	return rep.result
}

func (tr *testRoom) joinErr(name string, params JoinParams) *HandshakeError {
	tr.t.Helper()
	params.Name = name
	if params.ConnID == "" {
		params.ConnID = "conn-" + name
	}
	reply := make(chan joinReply, 1)
	tr.room.dispatch(joinCmd{params: params, reply: reply})
	rep := <-reply
	require.NotNil(tr.t, rep.err, "join %s unexpectedly accepted", name)
	return rep.err
}

func (tr *testRoom) command(participantID, cmdType string, payload []byte) {
	tr.t.Helper()
	p := tr.room.roster.ByID(participantID)
	require.NotNil(tr.t, p, "no participant %s", participantID)
	tr.room.dispatch(clientCmd{connID: p.ConnID, msg: ClientMessage{Type: cmdType, Payload: payload}})
	tr.drain()
}

// startGame issues start-game and pumps the async question load back through
// the inbox.
func (tr *testRoom) startGame(hostID string) {
	tr.t.Helper()
	p := tr.room.roster.ByID(hostID)
	require.NotNil(tr.t, p)
	tr.room.dispatch(clientCmd{connID: p.ConnID, msg: ClientMessage{Type: CmdStartGame}})
	select {
	case cmd := <-tr.room.inbox:
		tr.room.dispatch(cmd)
	case <-time.After(2 * time.Second):
		tr.t.Fatal("question load never reported back")
	}
	tr.drain()
}

func (tr *testRoom) advance(d time.Duration) {
	tr.sched.advance(d)
	tr.drain()
}

func (tr *testRoom) disconnect(participantID string) {
	tr.t.Helper()
	p := tr.room.roster.ByID(participantID)
	require.NotNil(tr.t, p)
	tr.room.dispatch(disconnectCmd{connID: p.ConnID})
	tr.drain()
}

func (tr *testRoom) phase() Phase { return tr.room.phase }

func submitPayload(index int) []byte {
	switch index {
	case 0:
		return []byte(`{"index":0}`)
	case 1:
		return []byte(`{"index":1}`)
	case 2:
		return []byte(`{"index":2}`)
	default:
		return []byte(`{"index":3}`)
	}
}
