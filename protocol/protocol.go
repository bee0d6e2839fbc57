// Package protocol defines the JSON wire contract between the server
// and its browser clients. Every frame is an envelope of the form
// {"type": "...", "data": {...}}.
package protocol

import "encoding/json"

// Client → server event types.
const (
	EvtCreateRoom     = "create-room"
	EvtJoinRoom       = "join-room"
	EvtRestoreSession = "restore-session"
	EvtLeaveRoom      = "leave-room"
	EvtStartGame      = "start-game"
	EvtPauseTimer     = "pause-timer"
	EvtResumeTimer    = "resume-timer"
	EvtSubmitAnswer   = "submit-answer"
	EvtRequestState   = "request-current-state"
	// Early-skip signals for the photo screen: the client either knows
	// up front there is nothing to show, or failed to decode the image.
	EvtNoPhoto         = "no-photo-for-question"
	EvtPhotoLoadFailed = "photo-load-failed"
)

// Server → client event types.
const (
	EvtRoomJoined         = "room-joined"
	EvtPlayersUpdated     = "players-updated"
	EvtGameStarted        = "game-started"
	EvtScreenChanged      = "screen-changed"
	EvtTimeRemaining      = "time-remaining"
	EvtAnswerAccepted     = "answer-accepted"
	EvtLeaderboardUpdated = "leaderboard-updated"
	EvtAllAnswered        = "all-players-answered"
	EvtGameEnded          = "game-ended"
	EvtCurrentState       = "current-state"
	EvtError              = "error"
)

// Screen names as they appear on the wire.
const (
	ScreenPhoto       = "photo"
	ScreenQuestion    = "question"
	ScreenLeaderboard = "leaderboard"
	ScreenWarning     = "last-question-warning"
	ScreenResults     = "results"
)

// Error kinds reported in ErrorData.Kind.
const (
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindInvalidState = "invalid_state"
	KindUnauthorized = "unauthorized"
)

// Envelope is an inbound frame; Data stays raw until the type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
