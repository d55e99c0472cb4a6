package services

import (
	"math/rand"
	"sort"
	"time"
)

// Scoring is pure: no clocks, no room state. The room hands it the facts of
// a closed question and records whatever comes back.

const (
	basePointsEasy   = 100
	basePointsMedium = 200
	basePointsHard   = 300
)

// BasePoints returns the fixed award for a correct answer at a difficulty
// tier. Unknown tiers score as easy.
func BasePoints(difficulty string) int {
	switch difficulty {
	case "medium":
		return basePointsMedium
	case "hard":
		return basePointsHard
	}
	return basePointsEasy
}

// SpeedBonus computes the ffa bonus for answering with time to spare. The
// bonus decreases linearly with elapsed time, bottoms out at zero and is
// capped at half the base points.
func SpeedBonus(base int, remaining, total time.Duration) int {
	if total <= 0 || remaining <= 0 {
		return 0
	}
	if remaining > total {
		remaining = total
	}
	return int(float64(base) / 2 * (float64(remaining) / float64(total)))
}

// VoteTally is one team's ballot box in chaos mode: option index to count.
type VoteTally map[int]int

// ResolveVotes picks the plurality option of a tally. Ties are broken
// uniformly at random and flagged so the reveal can say so. An empty tally
// resolves to no answer (-1).
func ResolveVotes(tally VoteTally) (option int, tieResolvedRandomly bool) {
	best := -1
	bestCount := 0
	var tied []int
	for opt, count := range tally {
		switch {
		case count > bestCount:
			bestCount = count
			best = opt
			tied = tied[:0]
			tied = append(tied, opt)
		case count == bestCount && count > 0:
			tied = append(tied, opt)
		}
	}
	if best < 0 {
		return -1, false
	}
	if len(tied) > 1 {
		sort.Ints(tied) // deterministic candidate order before the roll
		return tied[rand.Intn(len(tied))], true
	}
	return best, false
}

// CaptainBallot is a single captain-election vote with its arrival order.
type CaptainBallot struct {
	CandidateID string
	CastSeq     int
}

// ResolveCaptain returns the plurality candidate of a team's ballots; a tie
// goes to the candidate whose earliest vote was cast first. No ballots means
// no captain.
func ResolveCaptain(ballots []CaptainBallot) string {
	if len(ballots) == 0 {
		return ""
	}
	counts := make(map[string]int)
	earliest := make(map[string]int)
	for _, b := range ballots {
		counts[b.CandidateID]++
		if cur, ok := earliest[b.CandidateID]; !ok || b.CastSeq < cur {
			earliest[b.CandidateID] = b.CastSeq
		}
	}
	winner := ""
	for candidate := range counts {
		if winner == "" {
			winner = candidate
			continue
		}
		if counts[candidate] > counts[winner] {
			winner = candidate
		} else if counts[candidate] == counts[winner] && earliest[candidate] < earliest[winner] {
			winner = candidate
		}
	}
	return winner
}

// PlayerRank is one row of the ffa final standings. Equal scores share rank.
type PlayerRank struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
}

// RankPlayers orders ffa standings by score descending with shared ranks.
func RankPlayers(ranks []PlayerRank) []PlayerRank {
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return ranks[i].Name < ranks[j].Name
	})
	for i := range ranks {
		if i > 0 && ranks[i].Score == ranks[i-1].Score {
			ranks[i].Rank = ranks[i-1].Rank
		} else {
			ranks[i].Rank = i + 1
		}
	}
	return ranks
}

// WinnerTeam compares final team scores. TeamNone means a draw.
func WinnerTeam(scoreA, scoreB int) Team {
	switch {
	case scoreA > scoreB:
		return TeamA
	case scoreB > scoreA:
		return TeamB
	}
	return TeamNone
}
