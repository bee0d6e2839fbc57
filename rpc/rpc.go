package rpc

import (
	"net"
	"net/rpc"
	"time"

	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/room"
)

// Server manages the RPC listener for the admin interface.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer registers the admin service and opens the listener.
func NewServer(addr string, admin *AdminService) (*Server, error) {
	if err := rpc.RegisterName("Admin", admin); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes read-only operational queries over net/rpc.
// Methods follow the net/rpc signature rules: exported method, exported
// argument types, pointer reply, error return.
type AdminService struct {
	rooms *room.Registry
}

func NewAdminService(rooms *room.Registry) *AdminService {
	return &AdminService{rooms: rooms}
}

type RoomSummary struct {
	Code      string
	Phase     string
	Screen    string
	Players   int
	Connected int
	CreatedAt time.Time
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []RoomSummary
}

// ListRooms reports every live room.
func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, s := range a.rooms.Summaries() {
		reply.Rooms = append(reply.Rooms, RoomSummary{
			Code:      s.Code,
			Phase:     s.Phase,
			Screen:    s.Screen,
			Players:   s.Players,
			Connected: s.Connected,
			CreatedAt: s.CreatedAt,
		})
	}
	return nil
}

type StatsArgs struct{}

type StatsReply struct {
	Rooms   int
	Players int
}

// Stats reports aggregate counts.
func (a *AdminService) Stats(args *StatsArgs, reply *StatsReply) error {
	for _, s := range a.rooms.Summaries() {
		reply.Rooms++
		reply.Players += s.Players
	}
	return nil
}
