package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"triviarena/config"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// OutboundSender delivers a serialized server message to one attached
// connection. Implementations must never block the caller; the gateway
// buffers per connection and drops slow consumers.
type OutboundSender interface {
	Send(connID string, data []byte)
}

// RoomParams is everything needed to create a room.
type RoomParams struct {
	Pin           string // optional, generated when empty
	Topic         string
	Difficulty    string
	Mode          GameMode
	Password      string // optional, stored as a bcrypt hash
	QuestionCount int
}

// JoinParams carries the handshake of one connection attempt.
type JoinParams struct {
	ConnID         string
	Name           string
	Password       string
	AccountID      uint // 0 = anonymous, already verified by the gateway
	ReconnectToken string
	HostToken      string
}

// JoinResult reports the seat granted to a successful handshake.
type JoinResult struct {
	ParticipantID  string
	ReconnectToken string
	Host           bool
	Spectator      bool
	Team           Team
	Resumed        bool
}

// ChatMessage is immutable once appended to the room log. Team scopes
// visibility; TeamNone means everyone sees it.
type ChatMessage struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
	Team     Team      `json:"-"`
}

// Award is one score delta recorded at reveal.
type Award struct {
	Team          string `json:"team,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Option        int    `json:"option"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
}

// RevealRecord is the outcome of one closed question.
type RevealRecord struct {
	QuestionIndex       int     `json:"question_index"`
	Correct             int     `json:"correct"`
	Skipped             bool    `json:"skipped"`
	SkippedByHost       bool    `json:"skipped_by_host"`
	TieResolvedRandomly bool    `json:"tie_resolved_randomly,omitempty"`
	Awards              []Award `json:"awards"`
}

// answerRecord is one accepted submission for the current question.
type answerRecord struct {
	option    int
	at        time.Time
	remaining time.Duration
}

// ---- room commands (closed set, processed one at a time) ----

type roomCommand interface{ isRoomCommand() }

type joinCmd struct {
	params JoinParams
	reply  chan joinReply
}

type joinReply struct {
	result JoinResult
	err    *HandshakeError
}

type disconnectCmd struct{ connID string }

type clientCmd struct {
	connID string
	msg    ClientMessage
}

type deadlineCmd struct{ gen int }

type questionsLoadedCmd struct {
	questions []Question
	err       error
}

type stopCmd struct{}

func (joinCmd) isRoomCommand()            {}
func (disconnectCmd) isRoomCommand()      {}
func (clientCmd) isRoomCommand()          {}
func (deadlineCmd) isRoomCommand()        {}
func (questionsLoadedCmd) isRoomCommand() {}
func (stopCmd) isRoomCommand()            {}

// Room owns one live session: the phase machine, its roster, timers and chat.
// All state is mutated exclusively by the run goroutine draining inbox, so
// none of it is locked.
type Room struct {
	pin           string
	topic         string
	difficulty    string
	mode          GameMode
	passwordHash  string
	hostToken     string
	questionCount int
	cfg           config.RoomConfig

	roster *Roster
	phase  Phase

	questions  []Question
	qIndex     int
	activeTeam Team
	answers    map[string]answerRecord
	loading    bool

	captainBallots map[Team][]CaptainBallot
	captainVoters  map[Team]map[string]bool
	teamReady      map[Team]bool
	teamNames      map[Team]string
	teamScores     map[Team]int
	playerScores   map[string]int
	lastReveal     *RevealRecord
	skipRequests   map[string]bool
	ballotSeq      int

	chat     []ChatMessage
	eventLog []string

	// Active deadline. gen invalidates late firings from superseded phases.
	timer      TimerHandle
	timerGen   int
	deadlineAt time.Time

	// Captured state while host-reconnect or manual-pause interrupts play.
	frozenPhase     Phase
	frozenRemaining time.Duration
	frozenDeadline  bool
	awaitingHostID  string

	inbox     chan roomCommand
	done      chan struct{}
	scheduler Scheduler
	source    QuestionSource
	sink      SnapshotSink
	sender    OutboundSender
	onEmpty   func(pin string)
}

// NewRoom builds a room in the lobby phase. The caller starts the actor with
// Run.
func NewRoom(params RoomParams, cfg config.RoomConfig, scheduler Scheduler, source QuestionSource, sink SnapshotSink, sender OutboundSender) (*Room, error) {
	if !params.Mode.Valid() {
		return nil, fmt.Errorf("invalid game mode %q", params.Mode)
	}
	passwordHash := ""
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		passwordHash = string(hash)
	}
	questionCount := params.QuestionCount
	if questionCount <= 0 {
		questionCount = cfg.QuestionCount
	}
	if sink == nil {
		sink = nopSnapshotSink{}
	}
	r := &Room{
		pin:            params.Pin,
		topic:          params.Topic,
		difficulty:     params.Difficulty,
		mode:           params.Mode,
		passwordHash:   passwordHash,
		hostToken:      uuid.NewString(),
		questionCount:  questionCount,
		cfg:            cfg,
		roster:         NewRoster(cfg.MaxParticipants),
		phase:          PhaseLobby,
		qIndex:         -1,
		answers:        make(map[string]answerRecord),
		captainBallots: make(map[Team][]CaptainBallot),
		captainVoters:  make(map[Team]map[string]bool),
		teamReady:      make(map[Team]bool),
		teamNames:      map[Team]string{TeamA: "Team A", TeamB: "Team B"},
		teamScores:     map[Team]int{TeamA: 0, TeamB: 0},
		playerScores:   make(map[string]int),
		skipRequests:   make(map[string]bool),
		inbox:          make(chan roomCommand, 256),
		done:           make(chan struct{}),
		scheduler:      scheduler,
		source:         source,
		sink:           sink,
		sender:         sender,
	}
	return r, nil
}

func (r *Room) Pin() string        { return r.pin }
func (r *Room) Mode() GameMode     { return r.mode }
func (r *Room) Topic() string      { return r.topic }
func (r *Room) Difficulty() string { return r.difficulty }
func (r *Room) QuestionCount() int { return r.questionCount }
func (r *Room) HostToken() string  { return r.hostToken }

// HasPassword is safe off the actor goroutine: the hash never changes after
// construction.
func (r *Room) HasPassword() bool { return r.passwordHash != "" }

// PasswordMatches reports whether the supplied password is the one the room
// was created with. Passwordless rooms only match the empty password.
func (r *Room) PasswordMatches(password string) bool {
	if r.passwordHash == "" {
		return password == ""
	}
	return bcrypt.CompareHashAndPassword([]byte(r.passwordHash), []byte(password)) == nil
}

// SetOnEmpty installs the registry's teardown hook. Called before Run.
func (r *Room) SetOnEmpty(fn func(pin string)) { r.onEmpty = fn }

// Run drains the inbox until Stop. Every command is handled to completion
// before the next is dequeued; this is the room's entire concurrency story.
func (r *Room) Run() {
	for {
		select {
		case <-r.done:
			return
		case cmd := <-r.inbox:
			if r.dispatch(cmd) {
				r.broadcast()
			}
		}
	}
}

// Stop cancels timers and stops the actor. Idempotent.
func (r *Room) Stop() {
	select {
	case <-r.done:
		return
	default:
	}
	r.enqueue(stopCmd{})
}

func (r *Room) enqueue(cmd roomCommand) {
	select {
	case <-r.done:
	case r.inbox <- cmd:
	default:
		// A full inbox means a storm of inputs; dropping is safer than
		// stalling the gateway read pumps.
		log.Printf("Room %s: inbox full, dropping %T", r.pin, cmd)
	}
}

// Join performs the handshake on the room goroutine and waits for the seat.
func (r *Room) Join(ctx context.Context, params JoinParams) (JoinResult, *HandshakeError) {
	reply := make(chan joinReply, 1)
	select {
	case <-r.done:
		return JoinResult{}, ErrRoomNotFound
	case r.inbox <- joinCmd{params: params, reply: reply}:
	case <-ctx.Done():
		return JoinResult{}, ErrRoomNotFound
	}
	select {
	case rep := <-reply:
		return rep.result, rep.err
	case <-ctx.Done():
		return JoinResult{}, ErrRoomNotFound
	case <-r.done:
		return JoinResult{}, ErrRoomNotFound
	}
}

// Disconnected reports a dropped connection; routed like any other command so
// it can never interleave with a submission.
func (r *Room) Disconnected(connID string) {
	r.enqueue(disconnectCmd{connID: connID})
}

// HandleClientMessage feeds one decoded client message into the room.
func (r *Room) HandleClientMessage(connID string, msg ClientMessage) {
	r.enqueue(clientCmd{connID: connID, msg: msg})
}

// dispatch handles one command and reports whether state changed in a way
// viewers need to see.
func (r *Room) dispatch(cmd roomCommand) bool {
	switch c := cmd.(type) {
	case joinCmd:
		return r.handleJoin(c)
	case disconnectCmd:
		return r.handleDisconnect(c.connID)
	case clientCmd:
		return r.handleClientCommand(c.connID, c.msg)
	case deadlineCmd:
		if c.gen != r.timerGen {
			return false // superseded deadline, guaranteed no-op
		}
		return r.handleDeadline()
	case questionsLoadedCmd:
		return r.handleQuestionsLoaded(c)
	case stopCmd:
		r.stopTimer()
		close(r.done)
		return false
	}
	return false
}

// ---- join / leave / reconnect ----

func (r *Room) handleJoin(c joinCmd) bool {
	params := c.params

	// Reconnection resumes the old seat, never a new join.
	if p := r.roster.ByReconnectToken(params.ReconnectToken); p != nil && !p.Connected {
		p.Connected = true
		p.ConnID = params.ConnID
		result := JoinResult{
			ParticipantID:  p.ID,
			ReconnectToken: p.ReconnectToken,
			Host:           p.Host,
			Spectator:      p.Spectator,
			Team:           p.Team,
			Resumed:        true,
		}
		c.reply <- joinReply{result: result}
		r.sendConnected(p, result)
		log.Printf("Room %s: %s reconnected", r.pin, p.Name)
		r.logEvent("%s reconnected", p.Name)
		if r.phase == PhaseHostReconnect && p.ID == r.awaitingHostID {
			r.resumeFrozen()
		} else if r.phase == PhaseResults {
			// Cancels a pending abandonment teardown.
			r.stopTimer()
		}
		return true
	}

	if r.passwordHash != "" {
		if params.Password == "" {
			c.reply <- joinReply{err: ErrPasswordNeeded}
			return false
		}
		if bcrypt.CompareHashAndPassword([]byte(r.passwordHash), []byte(params.Password)) != nil {
			c.reply <- joinReply{err: ErrBadPassword}
			return false
		}
	}

	if params.HostToken != "" && params.HostToken != r.hostToken {
		c.reply <- joinReply{err: ErrBadHostToken}
		return false
	}

	if r.roster.HasAccount(params.AccountID) {
		c.reply <- joinReply{err: ErrAccountInRoom}
		return false
	}

	// Spectators get twice the player capacity before the room is truly full.
	if r.roster.Len() >= 2*r.cfg.MaxParticipants {
		c.reply <- joinReply{err: ErrRoomFull}
		return false
	}

	// Beyond player capacity or after the first question started, joiners watch.
	spectator := r.roster.AtCapacity() || r.gameStarted()

	p := r.roster.Add(params.Name, params.AccountID, params.ConnID, spectator, r.scheduler.Now())
	if params.HostToken == r.hostToken && params.HostToken != "" {
		// The original host reclaims hosting even without a reconnect token.
		if cur := r.roster.Host(); cur != nil && cur.ID != p.ID {
			cur.Host = false
		}
		p.Host = true
		p.Spectator = spectator && r.gameStarted()
	}

	result := JoinResult{
		ParticipantID:  p.ID,
		ReconnectToken: p.ReconnectToken,
		Host:           p.Host,
		Spectator:      p.Spectator,
		Team:           p.Team,
	}
	c.reply <- joinReply{result: result}
	r.sendConnected(p, result)
	log.Printf("Room %s: %s joined (host=%v spectator=%v)", r.pin, p.Name, p.Host, p.Spectator)
	r.logEvent("%s joined", p.Name)
	return true
}

// sendConnected acknowledges the seat before the first state-sync goes out.
func (r *Room) sendConnected(p *Participant, result JoinResult) {
	r.sendTo(p, marshalServerMessage(EvtConnected, ConnectedPayload{
		ParticipantID:  result.ParticipantID,
		ReconnectToken: result.ReconnectToken,
		Host:           result.Host,
		Spectator:      result.Spectator,
		Team:           result.Team.String(),
		Resumed:        result.Resumed,
	}))
}

// gameStarted reports whether the question rounds have begun.
func (r *Room) gameStarted() bool {
	if r.phase == PhaseQuestion || r.phase == PhaseReveal || r.phase == PhaseResults {
		return true
	}
	if (r.phase == PhaseHostReconnect || r.phase == PhaseManualPause) && (r.frozenPhase == PhaseQuestion || r.frozenPhase == PhaseReveal) {
		return true
	}
	return false
}

func (r *Room) handleDisconnect(connID string) bool {
	p := r.roster.ByConnID(connID)
	if p == nil {
		return false
	}
	p.Connected = false
	p.ConnID = ""
	log.Printf("Room %s: %s disconnected", r.pin, p.Name)
	r.logEvent("%s disconnected", p.Name)

	if r.phase == PhaseLobby {
		// No game in flight: a lobby drop is a permanent leave.
		r.roster.Remove(p.ID)
		if p.Host {
			if next := r.roster.PromoteNextHost(); next != nil {
				r.logEvent("%s promoted to host", next.Name)
			}
		}
	} else if p.Host && r.phase == PhaseResults {
		if next := r.roster.PromoteNextHost(); next != nil {
			p.Host = false
			r.logEvent("%s promoted to host", next.Name)
		}
	} else if p.Host && r.phase != PhaseHostReconnect {
		r.enterHostReconnect(p)
	}

	if r.roster.Len() == 0 {
		r.teardown()
		return false
	}
	if r.roster.ConnectedCount() == 0 {
		// Every remaining seat still holds a live reconnect token; hold the
		// room through the grace window instead of destroying it. The
		// host-reconnect path already has its own grace timer running.
		if r.phase != PhaseHostReconnect {
			r.scheduleDeadline(r.cfg.HostReconnectTime)
		}
		return true
	}

	// The eligible set shrank; the interrupted step may now be complete.
	switch r.phase {
	case PhaseQuestion:
		r.checkEarlyFinalize()
	case PhaseCaptainVote:
		r.refreshVoteReadiness()
	case PhaseTeamNaming:
		r.refreshNamingReadiness()
	}
	return true
}

func (r *Room) teardown() {
	log.Printf("Room %s: empty, tearing down", r.pin)
	r.stopTimer()
	r.writeSnapshot(true)
	if r.onEmpty != nil {
		r.onEmpty(r.pin)
	}
	close(r.done)
}

// ---- timers ----

func (r *Room) scheduleDeadline(d time.Duration) {
	r.stopTimer()
	r.timerGen++
	gen := r.timerGen
	r.deadlineAt = r.scheduler.Now().Add(d)
	r.timer = r.scheduler.Schedule(d, func() {
		r.enqueue(deadlineCmd{gen: gen})
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++ // a fired-but-queued deadline is now stale
	r.deadlineAt = time.Time{}
}

// freeze captures the in-flight phase and its remaining time so resume can
// restore it exactly. Frozen time does not count against the deadline.
func (r *Room) freeze(into Phase) {
	r.frozenPhase = r.phase
	r.frozenDeadline = !r.deadlineAt.IsZero()
	if r.frozenDeadline {
		r.frozenRemaining = r.deadlineAt.Sub(r.scheduler.Now())
		if r.frozenRemaining < 0 {
			r.frozenRemaining = 0
		}
	}
	r.stopTimer()
	r.phase = into
}

func (r *Room) resumeFrozen() {
	r.phase = r.frozenPhase
	r.awaitingHostID = ""
	if r.frozenDeadline {
		r.scheduleDeadline(r.frozenRemaining)
	}
	r.logEvent("resumed %s", r.phase)
}

func (r *Room) enterHostReconnect(host *Participant) {
	r.awaitingHostID = host.ID
	if r.phase == PhaseManualPause {
		// The pause already captured the interrupted phase; keep it.
		r.phase = PhaseHostReconnect
	} else {
		r.freeze(PhaseHostReconnect)
	}
	r.logEvent("host %s dropped, waiting %s", host.Name, r.cfg.HostReconnectTime)

	// The grace window is its own deadline generation.
	r.timerGen++
	gen := r.timerGen
	r.timer = r.scheduler.Schedule(r.cfg.HostReconnectTime, func() {
		r.enqueue(deadlineCmd{gen: gen})
	})
}

// ---- deadline dispatch ----

func (r *Room) handleDeadline() bool {
	if r.roster.ConnectedCount() == 0 {
		// A grace window expired with nobody back.
		r.teardown()
		return false
	}
	switch r.phase {
	case PhaseTeamReveal:
		r.leaveTeamReveal()
	case PhaseCaptainVote:
		r.finishCaptainVote()
	case PhaseTeamNaming:
		r.finishTeamNaming()
	case PhaseQuestion:
		r.finalizeQuestion(false, false)
	case PhaseReveal:
		r.advanceAfterReveal()
	case PhaseHostReconnect:
		r.failoverHost()
	default:
		return false
	}
	return true
}

func newChatID() string {
	return uuid.NewString()
}

func (r *Room) failoverHost() {
	gone := r.roster.ByID(r.awaitingHostID)
	next := r.roster.PromoteNextHost()
	if gone != nil {
		r.roster.Remove(gone.ID)
		r.roster.Rebalance()
	}
	if next == nil {
		r.teardown()
		return
	}
	log.Printf("Room %s: host failover to %s", r.pin, next.Name)
	r.logEvent("%s promoted to host", next.Name)
	r.resumeFrozen()
	switch r.phase {
	case PhaseQuestion:
		r.checkEarlyFinalize()
	case PhaseCaptainVote:
		r.refreshVoteReadiness()
	case PhaseTeamNaming:
		r.refreshNamingReadiness()
	}
}

func (r *Room) logEvent(format string, args ...interface{}) {
	entry := r.scheduler.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	r.eventLog = append(r.eventLog, entry)
	if len(r.eventLog) > 64 {
		r.eventLog = r.eventLog[len(r.eventLog)-64:]
	}
}

func (r *Room) writeSnapshot(terminal bool) {
	teamScores := map[string]int{}
	if r.mode.HasTeams() {
		teamScores[r.teamNames[TeamA]] = r.teamScores[TeamA]
		teamScores[r.teamNames[TeamB]] = r.teamScores[TeamB]
	}
	playerScores := map[string]int{}
	for id, score := range r.playerScores {
		if p := r.roster.ByID(id); p != nil {
			playerScores[p.Name] = score
		}
	}
	snap := RoomSnapshotData{
		Pin:        r.pin,
		GameMode:   string(r.mode),
		Phase:      r.phase.String(),
		QIndex:     r.qIndex,
		TeamScores: teamScores,
		Scores:     playerScores,
		Terminal:   terminal,
		TakenAt:    r.scheduler.Now(),
	}
	// Persistence is a side effect, never awaited before broadcasting.
	go r.sink.Write(snap)
}

// broadcast projects a fresh view for every attached connection.
func (r *Room) broadcast() {
	select {
	case <-r.done:
		return
	default:
	}
	now := r.scheduler.Now()
	for _, p := range r.roster.All() {
		if !p.Connected || p.ConnID == "" {
			continue
		}
		view := r.projectFor(p)
		if data := stateSyncMessage(now, view); data != nil {
			r.sender.Send(p.ConnID, data)
		}
	}
}

func (r *Room) sendTo(p *Participant, data []byte) {
	if p.Connected && p.ConnID != "" && data != nil {
		r.sender.Send(p.ConnID, data)
	}
}
