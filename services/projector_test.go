package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (tr *testRoom) viewFor(participantID string) RoomView {
	tr.t.Helper()
	p := tr.room.roster.ByID(participantID)
	require.NotNil(tr.t, p, "no participant %s", participantID)
	return tr.room.projectFor(p)
}

func participantIn(t *testing.T, view RoomView, id string) ParticipantView {
	t.Helper()
	for _, pv := range view.Participants {
		if pv.ID == id {
			return pv
		}
	}
	t.Fatalf("participant %s missing from view", id)
	return ParticipantView{}
}

func TestViewHidesCorrectOptionUntilReveal(t *testing.T) {
	tr := newTestRoom(t, ModeFFA, fixedQuestions(1))
	host := tr.join("host", JoinParams{})
	p1 := tr.join("p1", JoinParams{})

	tr.startGame(host.ParticipantID)
	tr.command(p1.ParticipantID, CmdSubmitAnswer, submitPayload(2))
	require.Equal(t, PhaseQuestion, tr.phase())

	playerView := tr.viewFor(p1.ParticipantID)
	require.NotNil(t, playerView.Question)
	assert.Nil(t, playerView.Question.Correct, "correct option leaks before reveal")
	pv := participantIn(t, playerView, p1.ParticipantID)
	assert.True(t, pv.Answered)
	assert.Nil(t, pv.Answer, "a player sees that others answered, never what")

	hostView := tr.viewFor(host.ParticipantID)
	require.NotNil(t, hostView.Question.Correct)
	assert.Equal(t, 0, *hostView.Question.Correct)
	hv := participantIn(t, hostView, p1.ParticipantID)
	require.NotNil(t, hv.Answer)
	assert.Equal(t, 2, *hv.Answer)

	// Close the question: now everyone sees the answer and the outcome.
	tr.command(host.ParticipantID, CmdSubmitAnswer, submitPayload(0))
	require.Equal(t, PhaseReveal, tr.phase())
	playerView = tr.viewFor(p1.ParticipantID)
	require.NotNil(t, playerView.Question.Correct)
	assert.Equal(t, 0, *playerView.Question.Correct)
	assert.NotNil(t, playerView.LastReveal)
}

func TestViewDiagnosticsAreHostOnly(t *testing.T) {
	tr := newTestRoom(t, ModeFFA, fixedQuestions(1))
	host := tr.join("host", JoinParams{})
	p1 := tr.join("p1", JoinParams{})

	assert.NotNil(t, tr.viewFor(host.ParticipantID).Diagnostics)
	assert.Nil(t, tr.viewFor(p1.ParticipantID).Diagnostics)
}

func TestViewFiltersTeamChat(t *testing.T) {
	tr := newTestRoom(t, ModeChaos, fixedQuestions(1))
	host := tr.join("host", JoinParams{})
	tr.join("p1", JoinParams{})
	tr.join("p2", JoinParams{})
	tr.join("p3", JoinParams{})

	tr.startGame(host.ParticipantID)
	tr.advance(tr.room.cfg.TeamRevealTime)
	require.Equal(t, PhaseQuestion, tr.phase())

	teamB := tr.room.roster.TeamMembers(TeamB)
	require.NotEmpty(t, teamB)
	var sender, teammate *Participant
	for _, p := range teamB {
		if !p.Host && sender == nil {
			sender = p
		} else if !p.Host {
			teammate = p
		}
	}
	require.NotNil(t, sender)
	require.NotNil(t, teammate)

	tr.command(sender.ID, CmdSendChat, []byte(`{"text":"answer two","team_only":true}`))

	sees := func(id string) bool {
		for _, msg := range tr.viewFor(id).Chat {
			if msg.Text == "answer two" {
				return true
			}
		}
		return false
	}
	assert.True(t, sees(teammate.ID), "teammates read team chat")
	assert.True(t, sees(tr.room.roster.Host().ID), "the host reads everything")
	for _, p := range tr.room.roster.TeamMembers(TeamA) {
		if !p.Host {
			assert.False(t, sees(p.ID), "%s is on the other team", p.Name)
		}
	}
}

func TestViewDeadlineAbsentWhileFrozen(t *testing.T) {
	tr := newTestRoom(t, ModeFFA, fixedQuestions(1))
	host := tr.join("host", JoinParams{})
	tr.join("p1", JoinParams{})

	tr.startGame(host.ParticipantID)
	view := tr.viewFor(host.ParticipantID)
	require.NotNil(t, view.Deadline)
	expected := tr.sched.Now().Add(30 * time.Second).UnixMilli()
	assert.Equal(t, expected, *view.Deadline)

	tr.command(host.ParticipantID, CmdPauseGame, nil)
	view = tr.viewFor(host.ParticipantID)
	assert.Nil(t, view.Deadline, "a frozen phase has no running deadline")
}

func TestViewWinnerAtResults(t *testing.T) {
	tr := newTestRoom(t, ModeClassic, fixedQuestions(2))
	captainA, captainB := classicToQuestion(t, tr)

	tr.command(captainA.ID, CmdSubmitAnswer, submitPayload(0))
	tr.advance(tr.room.cfg.RevealTime)
	tr.command(captainB.ID, CmdSubmitAnswer, submitPayload(3))
	tr.advance(tr.room.cfg.RevealTime)
	require.Equal(t, PhaseResults, tr.phase())

	view := tr.viewFor(captainB.ID)
	assert.Equal(t, "Alphas", view.Winner)
}

func TestViewWinnerDrawOnTie(t *testing.T) {
	tr := newTestRoom(t, ModeClassic, fixedQuestions(2))
	captainA, captainB := classicToQuestion(t, tr)

	tr.command(captainA.ID, CmdSubmitAnswer, submitPayload(0))
	tr.advance(tr.room.cfg.RevealTime)
	tr.command(captainB.ID, CmdSubmitAnswer, submitPayload(0))
	tr.advance(tr.room.cfg.RevealTime)
	require.Equal(t, PhaseResults, tr.phase())

	assert.Equal(t, "draw", tr.viewFor(captainA.ID).Winner)
}

func TestViewStandingsRankFFAPlayers(t *testing.T) {
	tr := newTestRoom(t, ModeFFA, fixedQuestions(1))
	host := tr.join("host", JoinParams{})
	p1 := tr.join("p1", JoinParams{})

	tr.startGame(host.ParticipantID)
	tr.command(host.ParticipantID, CmdSubmitAnswer, submitPayload(0))
	tr.command(p1.ParticipantID, CmdSubmitAnswer, submitPayload(1))
	tr.advance(tr.room.cfg.RevealTime)
	require.Equal(t, PhaseResults, tr.phase())

	view := tr.viewFor(p1.ParticipantID)
	require.Len(t, view.Standings, 2)
	assert.Equal(t, 1, view.Standings[0].Rank)
	assert.Equal(t, host.ParticipantID, view.Standings[0].ParticipantID)
	assert.Equal(t, 2, view.Standings[1].Rank)
	assert.Equal(t, "host", view.Winner)
}
