// broadcast/broadcast.go
package broadcast

import (
	"github.com/quizparty/quizparty/gateway"
	"github.com/quizparty/quizparty/protocol"
	"github.com/quizparty/quizparty/room"
)

// RoomBroadcaster fans events out to the connections of a room. It
// resolves membership through the registry at send time, so a player
// that reconnected since the last event still gets it on the new
// connection.
type RoomBroadcaster struct {
	rooms *room.Registry
	gw    *gateway.Gateway
}

func NewRoomBroadcaster(rooms *room.Registry, gw *gateway.Gateway) *RoomBroadcaster {
	return &RoomBroadcaster{rooms: rooms, gw: gw}
}

// ToRoom sends msg to every connected participant of the room. Unknown
// rooms are a no-op; deletion races with in-flight sends are harmless.
func (b *RoomBroadcaster) ToRoom(code string, msg protocol.Message) {
	rm, ok := b.rooms.Get(code)
	if !ok {
		return
	}
	for _, connID := range rm.ConnIDs() {
		b.gw.Send(connID, msg)
	}
}

// ToConn sends msg to a single connection.
func (b *RoomBroadcaster) ToConn(connID string, msg protocol.Message) {
	b.gw.Send(connID, msg)
}
