package game

import "github.com/quizparty/quizparty/protocol"

// RoomContext is the view of a room the session engine needs. Defined
// here to break the import cycle between game and room; room.Room
// implements it. Implementations lock internally, and must never call
// back into the session while holding their own lock.
type RoomContext interface {
	Code() string
	// ActivePlayerIDs returns the ids of connected, non-host players.
	// This is the "all answered" denominator, snapshotted at call time.
	ActivePlayerIDs() []string
	// AddScore adds points to a player and returns the new total.
	AddScore(playerID string, points int) int
	Standings() []protocol.Standing
	SetFinished()
	// DetachSession is called when the retention window ends and the
	// session destroys itself.
	DetachSession()
}

// Sender pushes outbound events. Deliveries are fire-and-forget: a slow
// or dead connection must never block the caller.
type Sender interface {
	ToRoom(code string, msg protocol.Message)
	ToConn(connID string, msg protocol.Message)
}
