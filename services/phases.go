package services

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

const maxChatViolations = 5

// handleClientCommand is the single dispatch point for everything a client
// can say. Out-of-phase or ineligible commands are dropped silently: they are
// stale client races, not faults.
func (r *Room) handleClientCommand(connID string, msg ClientMessage) bool {
	p := r.roster.ByConnID(connID)
	if p == nil {
		return false
	}

	switch msg.Type {
	case CmdPing:
		r.sendTo(p, marshalServerMessage(EvtPong, nil))
		return false

	case CmdStartGame:
		return r.handleStartGame(p)

	case CmdSubmitAnswer:
		var payload SubmitAnswerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false
		}
		return r.handleSubmitAnswer(p, payload.Index)

	case CmdVoteCaptain:
		var payload VoteCaptainPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false
		}
		return r.handleVoteCaptain(p, payload.CandidateID)

	case CmdSetTeamName:
		var payload SetTeamNamePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false
		}
		return r.handleSetTeamName(p, payload.Name)

	case CmdRandomTeamName:
		return r.handleSetTeamName(p, randomTeamName())

	case CmdSendChat:
		var payload SendChatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false
		}
		return r.handleChat(p, payload)

	case CmdRequestSkip:
		return r.handleSkipRequest(p)

	case CmdHostSkip:
		if !p.Host || r.phase != PhaseQuestion {
			return false
		}
		r.logEvent("host skipped question %d", r.qIndex)
		r.finalizeQuestion(true, true)
		return true

	case CmdPauseGame:
		if !p.Host || !r.phase.inGame() {
			return false
		}
		r.freeze(PhaseManualPause)
		r.logEvent("paused by host")
		return true

	case CmdResumeGame:
		if !p.Host || r.phase != PhaseManualPause {
			return false
		}
		r.resumeFrozen()
		return true

	case CmdNewGame:
		if !p.Host || r.phase != PhaseResults {
			return false
		}
		r.resetToLobby()
		return true
	}

	log.Printf("Room %s: unknown command %q from %s", r.pin, msg.Type, p.Name)
	return false
}

// ---- game start ----

func (r *Room) handleStartGame(p *Participant) bool {
	if !p.Host || r.phase != PhaseLobby || r.loading {
		return false
	}
	minPlayers := 1
	if r.mode.HasTeams() {
		minPlayers = 2
	}
	if r.roster.PlayerCount() < minPlayers {
		r.sendTo(p, errorMessage("NOT_ENOUGH_PLAYERS", ErrNotEnoughPlayers.Error()))
		return false
	}

	r.loading = true
	topic, difficulty, count := r.topic, r.difficulty, r.questionCount
	// The fetch may hit the database; it runs off the actor and reports back
	// through the inbox.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		questions, err := r.source.Fetch(ctx, topic, difficulty, count)
		r.enqueue(questionsLoadedCmd{questions: questions, err: err})
	}()
	return false
}

func (r *Room) handleQuestionsLoaded(c questionsLoadedCmd) bool {
	r.loading = false
	if r.phase != PhaseLobby {
		return false
	}
	if c.err != nil || len(c.questions) == 0 {
		log.Printf("Room %s: question source failed: %v", r.pin, c.err)
		if host := r.roster.Host(); host != nil {
			r.sendTo(host, errorMessage("QUESTION_SOURCE_UNAVAILABLE", ErrQuestionSource.Error()))
		}
		return false
	}

	r.questions = c.questions
	r.logEvent("game started (%s, %d questions)", r.mode, len(r.questions))

	if r.mode == ModeFFA {
		// No teams at all: straight into the first question.
		r.beginQuestion(0)
		return true
	}

	r.roster.AssignTeams()
	r.phase = PhaseTeamReveal
	r.scheduleDeadline(r.cfg.TeamRevealTime)
	return true
}

func (r *Room) leaveTeamReveal() {
	if r.mode == ModeClassic {
		r.startCaptainVote()
		return
	}
	r.beginQuestion(0)
}

// ---- captain vote (classic only) ----

func (r *Room) startCaptainVote() {
	r.phase = PhaseCaptainVote
	r.captainBallots = make(map[Team][]CaptainBallot)
	r.captainVoters = map[Team]map[string]bool{TeamA: {}, TeamB: {}}
	r.teamReady = map[Team]bool{}
	for _, team := range []Team{TeamA, TeamB} {
		if len(r.eligibleMembers(team)) == 0 {
			r.teamReady[team] = true
		}
	}
	r.scheduleDeadline(r.cfg.CaptainVoteTime)
}

func (r *Room) handleVoteCaptain(p *Participant, candidateID string) bool {
	if r.phase != PhaseCaptainVote || !p.eligible() || p.Team == TeamNone {
		return false
	}
	if r.captainVoters[p.Team][p.ID] {
		return false // one ballot per voter
	}
	candidate := r.roster.ByID(candidateID)
	if candidate == nil || candidate.Team != p.Team || candidate.Spectator {
		return false
	}
	r.ballotSeq++
	r.captainVoters[p.Team][p.ID] = true
	r.captainBallots[p.Team] = append(r.captainBallots[p.Team], CaptainBallot{
		CandidateID: candidateID,
		CastSeq:     r.ballotSeq,
	})

	if len(r.captainVoters[p.Team]) >= len(r.eligibleMembers(p.Team)) {
		r.teamReady[p.Team] = true
	}
	if r.teamReady[TeamA] && r.teamReady[TeamB] {
		r.finishCaptainVote()
	}
	return true
}

// refreshVoteReadiness re-evaluates the early-resolve condition after the
// eligible set shrinks: a team whose remaining members have all voted is
// ready even if the leaver never cast a ballot.
func (r *Room) refreshVoteReadiness() {
	if r.phase != PhaseCaptainVote {
		return
	}
	for _, team := range []Team{TeamA, TeamB} {
		if len(r.captainVoters[team]) >= len(r.eligibleMembers(team)) {
			r.teamReady[team] = true
		}
	}
	if r.teamReady[TeamA] && r.teamReady[TeamB] {
		r.finishCaptainVote()
	}
}

func (r *Room) finishCaptainVote() {
	for _, team := range []Team{TeamA, TeamB} {
		winnerID := ResolveCaptain(r.captainBallots[team])
		if winnerID == "" {
			continue // a team with no ballots plays without a captain
		}
		if captain := r.roster.ByID(winnerID); captain != nil {
			captain.Captain = true
			r.logEvent("team %s captain: %s", team, captain.Name)
		}
	}
	r.startTeamNaming()
}

// ---- team naming (classic only) ----

func (r *Room) startTeamNaming() {
	r.phase = PhaseTeamNaming
	r.teamReady = map[Team]bool{}
	for _, team := range []Team{TeamA, TeamB} {
		if r.roster.Captain(team) == nil {
			r.teamReady[team] = true // default name retained
		}
	}
	if r.teamReady[TeamA] && r.teamReady[TeamB] {
		r.finishTeamNaming()
		return
	}
	r.scheduleDeadline(r.cfg.TeamNamingTime)
}

func (r *Room) handleSetTeamName(p *Participant, name string) bool {
	if r.phase != PhaseTeamNaming || !p.Captain || name == "" {
		return false
	}
	name = TruncateRunes(name, 40)
	r.teamNames[p.Team] = name
	r.teamReady[p.Team] = true
	r.logEvent("team %s named %q", p.Team, name)
	if r.teamReady[TeamA] && r.teamReady[TeamB] {
		r.finishTeamNaming()
	}
	return true
}

// refreshNamingReadiness marks a team ready when its captain can no longer
// submit a name; the current (default) name is retained.
func (r *Room) refreshNamingReadiness() {
	if r.phase != PhaseTeamNaming {
		return
	}
	for _, team := range []Team{TeamA, TeamB} {
		captain := r.roster.Captain(team)
		if captain == nil || !captain.eligible() {
			r.teamReady[team] = true
		}
	}
	if r.teamReady[TeamA] && r.teamReady[TeamB] {
		r.finishTeamNaming()
	}
}

func (r *Room) finishTeamNaming() {
	r.beginQuestion(0)
}

// ---- question rounds ----

func (r *Room) beginQuestion(index int) {
	r.phase = PhaseQuestion
	r.qIndex = index
	r.answers = make(map[string]answerRecord)
	r.skipRequests = make(map[string]bool)
	if r.mode == ModeClassic {
		if index == 0 {
			r.activeTeam = TeamA
		} else {
			r.activeTeam = r.activeTeam.Other()
		}
	}
	r.logEvent("question %d", index)
	r.scheduleDeadline(r.cfg.QuestionTime)
}

func (r *Room) handleSubmitAnswer(p *Participant, option int) bool {
	if r.phase != PhaseQuestion || option < 0 || option > 3 {
		return false
	}
	if !r.isEligibleAnswerer(p) {
		return false
	}
	if _, dup := r.answers[p.ID]; dup {
		return false // one submission per answerer per question
	}
	now := r.scheduler.Now()
	remaining := r.deadlineAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	r.answers[p.ID] = answerRecord{option: option, at: now, remaining: remaining}
	p.AnswersSubmitted++
	p.TotalAnswerDelay += r.cfg.QuestionTime - remaining

	r.checkEarlyFinalize()
	return true
}

func (r *Room) isEligibleAnswerer(p *Participant) bool {
	if !p.eligible() {
		return false
	}
	switch r.mode {
	case ModeClassic:
		return p.Captain && p.Team == r.activeTeam
	case ModeFFA:
		return true
	case ModeChaos:
		return p.Team != TeamNone
	}
	return false
}

// checkEarlyFinalize closes the question as soon as every eligible answerer
// has submitted. A deadline that fires after this is a stale generation.
func (r *Room) checkEarlyFinalize() {
	if r.phase != PhaseQuestion {
		return
	}
	required := 0
	for _, p := range r.roster.All() {
		if r.isEligibleAnswerer(p) {
			required++
			if _, ok := r.answers[p.ID]; !ok {
				return
			}
		}
	}
	if required == 0 {
		return // nobody can answer; only the deadline or a skip closes it
	}
	r.finalizeQuestion(false, false)
}

func (r *Room) handleSkipRequest(p *Participant) bool {
	if r.phase != PhaseQuestion || r.mode == ModeFFA {
		return false
	}
	if p.Host || !p.eligible() {
		return false
	}
	if r.skipRequests[p.ID] {
		return false
	}
	r.skipRequests[p.ID] = true
	p.SkipRequests++

	eligible := 0
	for _, q := range r.roster.All() {
		if !q.Host && q.eligible() {
			eligible++
		}
	}
	votes := 0
	for id := range r.skipRequests {
		if q := r.roster.ByID(id); q != nil && !q.Host && q.eligible() {
			votes++
		}
	}
	if votes*2 > eligible {
		r.logEvent("question %d skipped by vote (%d/%d)", r.qIndex, votes, eligible)
		r.finalizeQuestion(true, false)
	}
	return true
}

// finalizeQuestion closes the current question, applies scoring and moves to
// reveal. A skipped question awards nothing but still shows the answer.
func (r *Room) finalizeQuestion(skipped, byHost bool) {
	if r.phase != PhaseQuestion {
		return
	}
	r.stopTimer()
	question := r.questions[r.qIndex]
	reveal := &RevealRecord{
		QuestionIndex: r.qIndex,
		Correct:       question.Correct,
		Skipped:       skipped,
		SkippedByHost: byHost,
	}

	if !skipped {
		switch r.mode {
		case ModeClassic:
			r.scoreClassic(question, reveal)
		case ModeFFA:
			r.scoreFFA(question, reveal)
		case ModeChaos:
			r.scoreChaos(question, reveal)
		}
	}

	r.lastReveal = reveal
	r.phase = PhaseReveal
	r.logEvent("reveal %d", r.qIndex)
	r.scheduleDeadline(r.cfg.RevealTime)
	r.writeSnapshot(false)
}

func (r *Room) scoreClassic(question Question, reveal *RevealRecord) {
	captain := r.roster.Captain(r.activeTeam)
	if captain == nil {
		return
	}
	rec, ok := r.answers[captain.ID]
	if !ok {
		return
	}
	correct := rec.option == question.Correct
	points := 0
	if correct {
		points = BasePoints(question.Difficulty)
		r.teamScores[r.activeTeam] += points
	} else {
		captain.WrongAnswers++
	}
	reveal.Awards = append(reveal.Awards, Award{
		Team:          r.teamNames[r.activeTeam],
		ParticipantID: captain.ID,
		Name:          captain.Name,
		Option:        rec.option,
		Correct:       correct,
		Points:        points,
	})
}

func (r *Room) scoreFFA(question Question, reveal *RevealRecord) {
	base := BasePoints(question.Difficulty)
	for _, p := range r.roster.All() {
		rec, ok := r.answers[p.ID]
		if !ok {
			continue
		}
		correct := rec.option == question.Correct
		points := 0
		if correct {
			points = base + SpeedBonus(base, rec.remaining, r.cfg.QuestionTime)
			r.playerScores[p.ID] += points
		} else {
			p.WrongAnswers++
		}
		reveal.Awards = append(reveal.Awards, Award{
			ParticipantID: p.ID,
			Name:          p.Name,
			Option:        rec.option,
			Correct:       correct,
			Points:        points,
		})
	}
}

func (r *Room) scoreChaos(question Question, reveal *RevealRecord) {
	// Both teams are tallied and scored independently on the same question.
	for _, team := range []Team{TeamA, TeamB} {
		tally := VoteTally{}
		for _, p := range r.roster.TeamMembers(team) {
			if rec, ok := r.answers[p.ID]; ok {
				tally[rec.option]++
			}
		}
		option, tie := ResolveVotes(tally)
		if option < 0 {
			continue // no votes, no effective answer
		}
		if tie {
			reveal.TieResolvedRandomly = true
		}
		correct := option == question.Correct
		points := 0
		if correct {
			points = BasePoints(question.Difficulty)
			r.teamScores[team] += points
		}
		reveal.Awards = append(reveal.Awards, Award{
			Team:    r.teamNames[team],
			Option:  option,
			Correct: correct,
			Points:  points,
		})
	}
}

func (r *Room) advanceAfterReveal() {
	if r.qIndex+1 >= len(r.questions) {
		r.finishGame()
		return
	}
	r.beginQuestion(r.qIndex + 1)
}

func (r *Room) finishGame() {
	r.stopTimer()
	r.phase = PhaseResults
	r.logEvent("results")
	r.writeSnapshot(true)
}

// resetToLobby implements new-game: scores and per-game state are wiped, the
// question set is regenerated at the next start, and late-join spectators get
// their seats back.
func (r *Room) resetToLobby() {
	r.stopTimer()
	r.phase = PhaseLobby
	r.questions = nil
	r.qIndex = -1
	r.activeTeam = TeamNone
	r.answers = make(map[string]answerRecord)
	r.skipRequests = make(map[string]bool)
	r.captainBallots = make(map[Team][]CaptainBallot)
	r.captainVoters = make(map[Team]map[string]bool)
	r.teamReady = map[Team]bool{}
	r.teamNames = map[Team]string{TeamA: "Team A", TeamB: "Team B"}
	r.teamScores = map[Team]int{TeamA: 0, TeamB: 0}
	r.playerScores = make(map[string]int)
	r.lastReveal = nil
	for _, p := range r.roster.All() {
		p.Team = TeamNone
		p.Captain = false
		if p.Spectator && !p.Disqualified && !r.roster.AtCapacity() {
			p.Spectator = false
		}
	}
	r.logEvent("new game")
}

// ---- chat & moderation ----

func (r *Room) handleChat(p *Participant, payload SendChatPayload) bool {
	if payload.Text == "" {
		return false
	}
	if !p.chatLimiter.Allow() {
		p.violations++
		if p.violations >= maxChatViolations && !p.Disqualified {
			p.Disqualified = true
			p.Spectator = true
			r.logEvent("%s disqualified for chat flooding", p.Name)
			r.sendTo(p, marshalServerMessage(EvtModerationNotice, ModerationNoticePayload{
				Message:      "You have been disqualified for flooding the chat.",
				Level:        "disqualified",
				Disqualified: true,
			}))
			return true
		}
		r.sendTo(p, marshalServerMessage(EvtModerationNotice, ModerationNoticePayload{
			Message: "You are sending messages too quickly.",
			Level:   "warn",
		}))
		return false
	}

	team := TeamNone
	if payload.TeamOnly && !p.Spectator && p.Team != TeamNone {
		team = p.Team
	}
	text := TruncateRunes(payload.Text, 500)
	msg := ChatMessage{
		ID:       newChatID(),
		SenderID: p.ID,
		Name:     p.Name,
		Text:     text,
		At:       r.scheduler.Now(),
		Team:     team,
	}
	r.chat = append(r.chat, msg)
	if max := r.cfg.ChatHistorySize; max > 0 && len(r.chat) > max {
		r.chat = r.chat[len(r.chat)-max:]
	}
	return true
}

func (r *Room) eligibleMembers(team Team) []*Participant {
	var members []*Participant
	for _, p := range r.roster.TeamMembers(team) {
		if p.eligible() {
			members = append(members, p)
		}
	}
	return members
}
