package services

// Phase is the server-authoritative state of a room session. Transitions only
// move forward within a round; host-reconnect and manual-pause interrupt any
// in-game phase and return to it.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseTeamReveal
	PhaseCaptainVote
	PhaseTeamNaming
	PhaseQuestion
	PhaseReveal
	PhaseResults
	PhaseHostReconnect
	PhaseManualPause
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseTeamReveal:
		return "team-reveal"
	case PhaseCaptainVote:
		return "captain-vote"
	case PhaseTeamNaming:
		return "team-naming"
	case PhaseQuestion:
		return "question"
	case PhaseReveal:
		return "reveal"
	case PhaseResults:
		return "results"
	case PhaseHostReconnect:
		return "host-reconnect"
	case PhaseManualPause:
		return "manual-pause"
	}
	return "unknown"
}

// inGame reports whether p is a phase that a pause/host-reconnect freeze can
// interrupt and later restore.
func (p Phase) inGame() bool {
	switch p {
	case PhaseTeamReveal, PhaseCaptainVote, PhaseTeamNaming, PhaseQuestion, PhaseReveal:
		return true
	}
	return false
}

// GameMode selects the answering and scoring rules of a session.
type GameMode string

const (
	ModeClassic GameMode = "classic"
	ModeFFA     GameMode = "ffa"
	ModeChaos   GameMode = "chaos"
)

func (m GameMode) Valid() bool {
	switch m {
	case ModeClassic, ModeFFA, ModeChaos:
		return true
	}
	return false
}

// HasTeams reports whether the mode splits players into two sides.
func (m GameMode) HasTeams() bool {
	return m != ModeFFA
}

// Team identifies one of the two sides in classic/chaos modes.
type Team int

const (
	TeamNone Team = iota
	TeamA
	TeamB
)

func (t Team) String() string {
	switch t {
	case TeamA:
		return "A"
	case TeamB:
		return "B"
	}
	return ""
}

func (t Team) Other() Team {
	switch t {
	case TeamA:
		return TeamB
	case TeamB:
		return TeamA
	}
	return TeamNone
}
