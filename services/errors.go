package services

import "errors"

// Handshake rejection codes surfaced to the client verbatim. A connection
// rejected with one of these must not retry with the same credential.
const (
	CodeRoomNotFound         = "ROOM_NOT_FOUND"
	CodeRoomFull             = "ROOM_FULL"
	CodeRoomPasswordRequired = "ROOM_PASSWORD_REQUIRED"
	CodeRoomPasswordInvalid  = "ROOM_PASSWORD_INVALID"
	CodeHostTokenInvalid     = "HOST_TOKEN_INVALID"
	CodeAccountAlreadyInRoom = "ACCOUNT_ALREADY_IN_ROOM"
	CodeAuthTokenInvalid     = "AUTH_TOKEN_INVALID"
	CodeDuplicatePin         = "DUPLICATE_PIN"
)

// HandshakeError pairs a stable wire code with a human-readable message.
type HandshakeError struct {
	Code    string
	Message string
}

func (e *HandshakeError) Error() string {
	return e.Code + ": " + e.Message
}

func handshakeErr(code, message string) *HandshakeError {
	return &HandshakeError{Code: code, Message: message}
}

var (
	ErrRoomNotFound   = handshakeErr(CodeRoomNotFound, "room not found")
	ErrRoomFull       = handshakeErr(CodeRoomFull, "room is full")
	ErrPasswordNeeded = handshakeErr(CodeRoomPasswordRequired, "room requires a password")
	ErrBadPassword    = handshakeErr(CodeRoomPasswordInvalid, "room password is invalid")
	ErrBadHostToken   = handshakeErr(CodeHostTokenInvalid, "host credential is invalid")
	ErrAccountInRoom  = handshakeErr(CodeAccountAlreadyInRoom, "account already has a participant in this room")
	ErrBadAuthToken   = handshakeErr(CodeAuthTokenInvalid, "auth token is invalid")
	ErrDuplicatePin   = handshakeErr(CodeDuplicatePin, "an active room with this pin already exists")
)

var (
	ErrQuestionSource   = errors.New("question source unavailable")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
)
