package services

import (
	"encoding/json"
	"log"
	"time"
)

// Client command types. The set is closed; the room dispatches on it
// exhaustively and logs anything it does not recognize.
const (
	CmdStartGame      = "start-game"
	CmdSubmitAnswer   = "submit-answer"
	CmdVoteCaptain    = "vote-captain"
	CmdSetTeamName    = "set-team-name"
	CmdRandomTeamName = "random-team-name"
	CmdSendChat       = "send-chat"
	CmdRequestSkip    = "request-skip-question"
	CmdHostSkip       = "host-skip-question"
	CmdPauseGame      = "pause-game"
	CmdResumeGame     = "resume-game"
	CmdNewGame        = "new-game"
	CmdPing           = "ping"
)

// Server event types.
const (
	EvtConnected        = "connected"
	EvtStateSync        = "state-sync"
	EvtModerationNotice = "moderation-notice"
	EvtError            = "error"
	EvtPong             = "pong"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubmitAnswerPayload struct {
	Index int `json:"index"`
}

type VoteCaptainPayload struct {
	CandidateID string `json:"candidate_id"`
}

type SetTeamNamePayload struct {
	Name string `json:"name"`
}

type SendChatPayload struct {
	Text     string `json:"text"`
	TeamOnly bool   `json:"team_only"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type ConnectedPayload struct {
	ParticipantID  string `json:"participant_id"`
	ReconnectToken string `json:"reconnect_token,omitempty"`
	Host           bool   `json:"host"`
	Spectator      bool   `json:"spectator"`
	Team           string `json:"team,omitempty"`
	Resumed        bool   `json:"resumed"`
}

type StateSyncPayload struct {
	ServerTime int64    `json:"server_time"` // unix milliseconds
	Room       RoomView `json:"room"`
}

type ModerationNoticePayload struct {
	Message      string `json:"message"`
	Level        string `json:"level"` // warn, disqualified
	Disqualified bool   `json:"disqualified,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TruncateRunes caps s at max runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, max int) string {
	if len(s) <= max {
		return s // byte length bounds rune count
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func marshalServerMessage(msgType string, payload interface{}) []byte {
	data, err := json.Marshal(ServerMessage{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", msgType, err)
		return nil
	}
	return data
}

func errorMessage(code, message string) []byte {
	return marshalServerMessage(EvtError, ErrorPayload{Code: code, Message: message})
}

func stateSyncMessage(now time.Time, view RoomView) []byte {
	return marshalServerMessage(EvtStateSync, StateSyncPayload{
		ServerTime: now.UnixMilli(),
		Room:       view,
	})
}
