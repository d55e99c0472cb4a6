package services

import "time"

// RoomView is the redacted per-viewer snapshot sent in every state-sync.
// One underlying room produces a different view per role: the correct option
// and submitted answers stay hidden from non-hosts until reveal, team chat
// stays inside the team, and diagnostics go to the host alone.
type RoomView struct {
	Pin           string            `json:"pin"`
	Topic         string            `json:"topic"`
	Difficulty    string            `json:"difficulty"`
	Mode          string            `json:"mode"`
	Phase         string            `json:"phase"`
	Deadline      *int64            `json:"deadline,omitempty"` // unix ms, absent while frozen
	QuestionIndex int               `json:"question_index"`
	QuestionCount int               `json:"question_count"`
	ActiveTeam    string            `json:"active_team,omitempty"`
	Question      *QuestionView     `json:"question,omitempty"`
	Participants  []ParticipantView `json:"participants"`
	Teams         []TeamView        `json:"teams,omitempty"`
	Standings     []PlayerRank      `json:"standings,omitempty"`
	LastReveal    *RevealRecord     `json:"last_reveal,omitempty"`
	Chat          []ChatView        `json:"chat"`
	SkipVotes     int               `json:"skip_votes,omitempty"`
	AwaitingHost  string            `json:"awaiting_host,omitempty"`
	Winner        string            `json:"winner,omitempty"` // team name or "draw"
	You           string            `json:"you"`
	Diagnostics   *DiagnosticsView  `json:"diagnostics,omitempty"`
}

type QuestionView struct {
	Index   int       `json:"index"`
	Text    string    `json:"text"`
	Options [4]string `json:"options"`
	Correct *int      `json:"correct,omitempty"` // nil until reveal for non-hosts
}

type ParticipantView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Team      string `json:"team,omitempty"`
	Host      bool   `json:"host"`
	Captain   bool   `json:"captain,omitempty"`
	Spectator bool   `json:"spectator,omitempty"`
	Connected bool   `json:"connected"`
	Score     int    `json:"score"`
	Answered  bool   `json:"answered,omitempty"`
	Answer    *int   `json:"answer,omitempty"` // host only, pre-reveal
}

type TeamView struct {
	Team    string `json:"team"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Captain string `json:"captain_id,omitempty"`
}

type ChatView struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Text string `json:"text"`
	At   int64  `json:"at"` // unix ms
	Team string `json:"team,omitempty"`
}

type DiagnosticsView struct {
	Participants []ParticipantDiag `json:"participants"`
	EventLog     []string          `json:"event_log"`
}

type ParticipantDiag struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	AvgAnswerMs    int64  `json:"avg_answer_ms"`
	SkipRequests   int    `json:"skip_requests"`
	WrongAnswers   int    `json:"wrong_answers"`
	ChatViolations int    `json:"chat_violations"`
}

// projectFor builds the view one participant is allowed to see. Runs on the
// room goroutine.
func (r *Room) projectFor(viewer *Participant) RoomView {
	view := RoomView{
		Pin:           r.pin,
		Topic:         r.topic,
		Difficulty:    r.difficulty,
		Mode:          string(r.mode),
		Phase:         r.phase.String(),
		QuestionIndex: r.qIndex,
		QuestionCount: r.questionCount,
		You:           viewer.ID,
	}
	if len(r.questions) > 0 {
		view.QuestionCount = len(r.questions)
	}

	if !r.deadlineAt.IsZero() {
		ms := r.deadlineAt.UnixMilli()
		view.Deadline = &ms
	}

	if r.mode == ModeClassic && r.phase != PhaseLobby {
		view.ActiveTeam = r.activeTeam.String()
	}

	revealed := r.phase == PhaseReveal || r.phase == PhaseResults
	if r.qIndex >= 0 && r.qIndex < len(r.questions) && r.phase != PhaseLobby {
		q := r.questions[r.qIndex]
		qv := &QuestionView{Index: r.qIndex, Text: q.Text, Options: q.Options}
		if revealed || viewer.Host {
			correct := q.Correct
			qv.Correct = &correct
		}
		view.Question = qv
	}

	for _, p := range r.roster.All() {
		pv := ParticipantView{
			ID:        p.ID,
			Name:      p.Name,
			Team:      p.Team.String(),
			Host:      p.Host,
			Captain:   p.Captain,
			Spectator: p.Spectator,
			Connected: p.Connected,
			Score:     r.playerScores[p.ID],
		}
		if _, ok := r.answers[p.ID]; ok {
			pv.Answered = true
			if viewer.Host {
				rec := r.answers[p.ID]
				option := rec.option
				pv.Answer = &option
			}
		}
		view.Participants = append(view.Participants, pv)
	}

	if r.mode.HasTeams() {
		for _, team := range []Team{TeamA, TeamB} {
			tv := TeamView{
				Team:  team.String(),
				Name:  r.teamNames[team],
				Score: r.teamScores[team],
			}
			if captain := r.roster.Captain(team); captain != nil {
				tv.Captain = captain.ID
			}
			view.Teams = append(view.Teams, tv)
		}
	} else {
		view.Standings = r.standings()
	}

	// The reveal record only becomes visible once the reveal fires; the host
	// sees it as soon as it exists.
	if r.lastReveal != nil && (revealed || viewer.Host) {
		view.LastReveal = r.lastReveal
	}

	for _, msg := range r.chat {
		if msg.Team != TeamNone && !viewer.Host {
			if viewer.Spectator || viewer.Team != msg.Team {
				continue
			}
		}
		view.Chat = append(view.Chat, ChatView{
			ID:   msg.ID,
			From: msg.Name,
			Text: msg.Text,
			At:   msg.At.UnixMilli(),
			Team: msg.Team.String(),
		})
	}

	if r.phase == PhaseQuestion {
		view.SkipVotes = len(r.skipRequests)
	}

	if r.phase == PhaseHostReconnect {
		if gone := r.roster.ByID(r.awaitingHostID); gone != nil {
			view.AwaitingHost = gone.Name
		}
	}

	if r.phase == PhaseResults {
		view.Winner = r.winnerLabel()
	}

	if viewer.Host {
		view.Diagnostics = r.diagnostics()
	}

	return view
}

func (r *Room) standings() []PlayerRank {
	ranks := make([]PlayerRank, 0, r.roster.Len())
	for _, p := range r.roster.All() {
		if p.Spectator {
			continue
		}
		ranks = append(ranks, PlayerRank{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         r.playerScores[p.ID],
		})
	}
	return RankPlayers(ranks)
}

func (r *Room) winnerLabel() string {
	if !r.mode.HasTeams() {
		standings := r.standings()
		if len(standings) == 0 {
			return ""
		}
		return standings[0].Name
	}
	switch WinnerTeam(r.teamScores[TeamA], r.teamScores[TeamB]) {
	case TeamA:
		return r.teamNames[TeamA]
	case TeamB:
		return r.teamNames[TeamB]
	}
	return "draw"
}

func (r *Room) diagnostics() *DiagnosticsView {
	diag := &DiagnosticsView{EventLog: r.eventLog}
	for _, p := range r.roster.All() {
		var avg time.Duration
		if p.AnswersSubmitted > 0 {
			avg = p.TotalAnswerDelay / time.Duration(p.AnswersSubmitted)
		}
		diag.Participants = append(diag.Participants, ParticipantDiag{
			ID:             p.ID,
			Name:           p.Name,
			AvgAnswerMs:    avg.Milliseconds(),
			SkipRequests:   p.SkipRequests,
			WrongAnswers:   p.WrongAnswers,
			ChatViolations: p.violations,
		})
	}
	return diag
}
