package room

import "github.com/quizparty/quizparty/protocol"

// Broadcaster delivers outbound events to the connections of a room.
// This is defined here to break the import cycle between room and
// broadcast. Sends are fire-and-forget; a dead connection must never
// block the caller.
type Broadcaster interface {
	ToRoom(code string, msg protocol.Message)
	ToConn(connID string, msg protocol.Message)
}
