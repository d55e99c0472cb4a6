package services

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Participant is one seat in a room. Transport is referenced only through the
// opaque ConnID; the runtime never touches a socket directly.
type Participant struct {
	ID             string
	Name           string
	AccountID      uint // 0 = anonymous
	ConnID         string
	Team           Team
	Host           bool
	Captain        bool
	Spectator      bool
	Connected      bool
	ReconnectToken string
	Disqualified   bool
	JoinSeq        int
	JoinedAt       time.Time

	chatLimiter *rate.Limiter
	violations  int

	// Host diagnostics.
	AnswersSubmitted int
	WrongAnswers     int
	SkipRequests     int
	TotalAnswerDelay time.Duration
}

// eligible reports whether the participant can answer, vote and request
// skips: connected, not a spectator.
func (p *Participant) eligible() bool {
	return p.Connected && !p.Spectator
}

// Roster tracks every participant of one room. It is plain data owned by the
// room actor; all access happens on the room goroutine.
type Roster struct {
	participants []*Participant
	byID         map[string]*Participant
	maxSize      int
	joinSeq      int
}

func NewRoster(maxSize int) *Roster {
	return &Roster{
		byID:    make(map[string]*Participant),
		maxSize: maxSize,
	}
}

// Add seats a new participant. The first joiner becomes host. The caller has
// already decided spectator status (capacity / late join).
func (r *Roster) Add(name string, accountID uint, connID string, spectator bool, now time.Time) *Participant {
	r.joinSeq++
	p := &Participant{
		ID:             uuid.NewString(),
		Name:           name,
		AccountID:      accountID,
		ConnID:         connID,
		Host:           len(r.participants) == 0,
		Spectator:      spectator,
		Connected:      true,
		ReconnectToken: uuid.NewString(),
		JoinSeq:        r.joinSeq,
		JoinedAt:       now,
		chatLimiter:    rate.NewLimiter(rate.Limit(1), 5),
	}
	r.participants = append(r.participants, p)
	r.byID[p.ID] = p
	return p
}

func (r *Roster) ByID(id string) *Participant {
	return r.byID[id]
}

func (r *Roster) ByConnID(connID string) *Participant {
	for _, p := range r.participants {
		if p.Connected && p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Roster) ByReconnectToken(token string) *Participant {
	if token == "" {
		return nil
	}
	for _, p := range r.participants {
		if p.ReconnectToken == token {
			return p
		}
	}
	return nil
}

// HasAccount reports whether an account already has an active participant.
func (r *Roster) HasAccount(accountID uint) bool {
	if accountID == 0 {
		return false
	}
	for _, p := range r.participants {
		if p.AccountID == accountID {
			return true
		}
	}
	return false
}

func (r *Roster) Host() *Participant {
	for _, p := range r.participants {
		if p.Host {
			return p
		}
	}
	return nil
}

// Remove drops a participant permanently.
func (r *Roster) Remove(id string) {
	p := r.byID[id]
	if p == nil {
		return
	}
	delete(r.byID, id)
	for i, q := range r.participants {
		if q.ID == id {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}
}

// PromoteNextHost hands hosting to the longest-tenured connected non-host
// participant and returns the new host, or nil when nobody qualifies.
func (r *Roster) PromoteNextHost() *Participant {
	old := r.Host()
	var next *Participant
	for _, p := range r.participants {
		if p.Host || !p.Connected {
			continue
		}
		if next == nil || p.JoinSeq < next.JoinSeq {
			next = p
		}
	}
	if next == nil {
		return nil
	}
	if old != nil {
		old.Host = false
	}
	next.Host = true
	return next
}

// All returns the seating in join order.
func (r *Roster) All() []*Participant {
	return r.participants
}

func (r *Roster) Len() int {
	return len(r.participants)
}

func (r *Roster) ConnectedCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

// PlayerCount counts non-spectator participants.
func (r *Roster) PlayerCount() int {
	n := 0
	for _, p := range r.participants {
		if !p.Spectator {
			n++
		}
	}
	return n
}

// AtCapacity reports whether any further joiner must be a spectator.
func (r *Roster) AtCapacity() bool {
	return r.PlayerCount() >= r.maxSize
}

// AssignTeams distributes every unassigned non-spectator to the smaller team
// in join order, ties going to team A. Runs at the lobby to team-reveal
// transition.
func (r *Roster) AssignTeams() {
	sizeA, sizeB := r.TeamSizes()
	for _, p := range r.participants {
		if p.Spectator || p.Team != TeamNone {
			continue
		}
		if sizeB < sizeA {
			p.Team = TeamB
			sizeB++
		} else {
			p.Team = TeamA
			sizeA++
		}
	}
}

func (r *Roster) TeamSizes() (a, b int) {
	for _, p := range r.participants {
		if p.Spectator {
			continue
		}
		switch p.Team {
		case TeamA:
			a++
		case TeamB:
			b++
		}
	}
	return a, b
}

// TeamMembers returns the non-spectator members of a team.
func (r *Roster) TeamMembers(team Team) []*Participant {
	var members []*Participant
	for _, p := range r.participants {
		if !p.Spectator && p.Team == team {
			members = append(members, p)
		}
	}
	return members
}

// Captain returns a team's captain, or nil.
func (r *Roster) Captain(team Team) *Participant {
	for _, p := range r.participants {
		if p.Captain && p.Team == team {
			return p
		}
	}
	return nil
}

// Rebalance moves the most recent joiner from the larger team to the smaller
// one when a permanent leave has skewed sizes past one. Keeps the balance
// invariant after team-reveal without touching anyone unnecessarily.
func (r *Roster) Rebalance() {
	for {
		a, b := r.TeamSizes()
		diff := a - b
		if diff >= -1 && diff <= 1 {
			return
		}
		from := TeamA
		if diff < 0 {
			from = TeamB
		}
		var mover *Participant
		for _, p := range r.TeamMembers(from) {
			if p.Captain {
				continue // captains stay put
			}
			if mover == nil || p.JoinSeq > mover.JoinSeq {
				mover = p
			}
		}
		if mover == nil {
			return
		}
		mover.Team = from.Other()
	}
}
