package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/quizparty/quizparty/broadcast"
	"github.com/quizparty/quizparty/config"
	"github.com/quizparty/quizparty/game"
	"github.com/quizparty/quizparty/gateway"
	"github.com/quizparty/quizparty/identity"
	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/monitor"
	"github.com/quizparty/quizparty/protocol"
	"github.com/quizparty/quizparty/question"
	"github.com/quizparty/quizparty/room"
	quizrpc "github.com/quizparty/quizparty/rpc"
	"github.com/quizparty/quizparty/timer"
)

// GameServer wires the whole thing together: the websocket gateway,
// the room registry, the admin RPC listener and the metrics endpoint.
type GameServer struct {
	cfg      *config.Config
	upgrader websocket.Upgrader

	gw     *gateway.Gateway
	rooms  *room.Registry
	timers *timer.Manager

	rpcServer *quizrpc.Server
	mon       *monitor.Monitor
	httpSrv   *http.Server
}

func NewGameServer(cfg *config.Config) (*GameServer, error) {
	ids := identity.NewManager()
	timers := timer.NewManager()

	bank := question.Load(cfg.Questions.CSVPath, question.Defaults{
		AnswerSeconds: cfg.Game.QuestionSeconds,
		ImageSeconds:  cfg.Game.PhotoSeconds,
	})

	gameCfg := game.Config{
		LeaderboardSeconds: cfg.Game.LeaderboardSeconds,
		WarningSeconds:     cfg.Game.WarningSeconds,
		AllAnsweredGrace:   cfg.Game.AllAnsweredGrace,
		PhotoSkipRemainder: cfg.Game.PhotoSkipRemainder,
		BasePoints:         cfg.Game.BasePoints,
		ResultsRetention:   time.Duration(cfg.Game.ResultsRetention) * time.Second,
	}

	rooms := room.NewRegistry(ids, timers, gameCfg, bank)
	gw := gateway.New()
	rooms.SetBroadcaster(broadcast.NewRoomBroadcaster(rooms, gw))

	rpcServer, err := quizrpc.NewServer(cfg.Server.RPCAddress, quizrpc.NewAdminService(rooms))
	if err != nil {
		return nil, err
	}

	s := &GameServer{
		cfg:       cfg,
		gw:        gw,
		rooms:     rooms,
		timers:    timers,
		rpcServer: rpcServer,
		mon:       monitor.NewMonitor(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	return s, nil
}

func (s *GameServer) Start() error {
	s.mon.StartServer(s.cfg.Server.MetricsAddress)
	go s.rpcServer.Start()
	s.rooms.StartSweeper(
		time.Duration(s.cfg.Rooms.SweepIntervalMinutes)*time.Minute,
		time.Duration(s.cfg.Rooms.MaxIdleMinutes)*time.Minute,
	)

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/ws", s.handleWebSocket)
	router.GET("/qr/:code", s.handleQR)
	router.HandlerFunc(http.MethodGet, "/healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:    s.cfg.Server.HTTPAddress,
		Handler: router,
	}
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	return s.httpSrv.ListenAndServe()
}

func (s *GameServer) Shutdown() {
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(ctx)
	}
	s.rpcServer.Stop()
	s.rooms.Shutdown()
	s.gw.Close()
	s.timers.Stop()
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleQR serves a QR code that phones can scan to join a room.
func (s *GameServer) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if _, ok := s.rooms.Get(code); !ok {
		http.NotFound(w, r)
		return
	}
	png, err := qrcode.Encode(s.cfg.Server.PublicURL+"/join/"+code, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "qr encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	go s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	client := s.gw.Add(conn)
	logger.Log.Infof("New connection from %s, conn ID: %s", conn.RemoteAddr(), client.ID)

	defer func() {
		logger.Log.Infof("Connection closed, conn ID: %s", client.ID)
		s.rooms.MarkDisconnected(client.ID)
		s.gw.Remove(client.ID)
	}()

	for {
		env, err := client.ReadEnvelope()
		if err != nil {
			return
		}
		s.dispatch(client, env)
	}
}

func (s *GameServer) dispatch(client *gateway.Client, env protocol.Envelope) {
	start := time.Now()
	monitor.MessagesReceived.Inc()
	defer func() {
		monitor.MessageLatency.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			logger.Log.Errorf("Panic handling %q from %s: %v", env.Type, client.ID, r)
			s.sendError(client.ID, protocol.KindInvalidState, "internal error")
		}
	}()

	switch env.Type {
	case protocol.EvtCreateRoom:
		s.handleCreateRoom(client, env.Data)
	case protocol.EvtJoinRoom:
		s.handleJoinRoom(client, env.Data)
	case protocol.EvtRestoreSession:
		s.handleRestoreSession(client, env.Data)
	case protocol.EvtLeaveRoom:
		s.rooms.Leave(client.ID)
	case protocol.EvtStartGame:
		s.handleStartGame(client)
	case protocol.EvtPauseTimer:
		s.handlePause(client, true)
	case protocol.EvtResumeTimer:
		s.handlePause(client, false)
	case protocol.EvtSubmitAnswer:
		s.handleSubmitAnswer(client, env.Data)
	case protocol.EvtRequestState:
		s.handleRequestState(client)
	case protocol.EvtNoPhoto, protocol.EvtPhotoLoadFailed:
		s.handlePhotoSkip(client, env.Data)
	default:
		logger.Log.Infof("Unknown message type: %q", env.Type)
		s.sendError(client.ID, protocol.KindInvalidState, "unknown message type")
	}
}

func (s *GameServer) handleCreateRoom(client *gateway.Client, data json.RawMessage) {
	var req protocol.CreateRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Name == "" {
		s.sendError(client.ID, protocol.KindInvalidState, "create-room needs a host name")
		return
	}

	rm, host, err := s.rooms.CreateRoom(client.ID, req.Name)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	s.gw.Send(client.ID, protocol.Message{
		Type: protocol.EvtRoomJoined,
		Data: protocol.RoomJoinedData{
			Code:     rm.Code(),
			PlayerID: host.ID,
			IsHost:   true,
			Players:  rm.PlayerInfos(),
		},
	})
}

func (s *GameServer) handleJoinRoom(client *gateway.Client, data json.RawMessage) {
	var req protocol.JoinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Name == "" || req.Code == "" {
		s.sendError(client.ID, protocol.KindInvalidState, "join-room needs a room code and a name")
		return
	}
	role := room.RolePlayer
	if req.Role == string(room.RoleHost) {
		role = room.RoleHost
	}

	rm, p, _, err := s.rooms.Join(client.ID, req.Code, req.Name, role)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	s.gw.Send(client.ID, protocol.Message{
		Type: protocol.EvtRoomJoined,
		Data: protocol.RoomJoinedData{
			Code:     rm.Code(),
			PlayerID: p.ID,
			IsHost:   p.Role == room.RoleHost,
			Players:  rm.PlayerInfos(),
		},
	})
	// A mid-game joiner needs the current screen to paint anything.
	if sess := rm.Session(); sess != nil {
		s.gw.Send(client.ID, protocol.Message{
			Type: protocol.EvtCurrentState,
			Data: sess.State(),
		})
	}
}

func (s *GameServer) handleRestoreSession(client *gateway.Client, data json.RawMessage) {
	var req protocol.RestoreSessionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Code == "" || req.PlayerID == "" {
		s.sendError(client.ID, protocol.KindInvalidState, "restore-session needs a room code and player id")
		return
	}

	rm, p, err := s.rooms.Restore(client.ID, req.Code, req.PlayerID, req.OldConnID)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	s.gw.Send(client.ID, protocol.Message{
		Type: protocol.EvtRoomJoined,
		Data: protocol.RoomJoinedData{
			Code:     rm.Code(),
			PlayerID: p.ID,
			IsHost:   p.Role == room.RoleHost,
			Players:  rm.PlayerInfos(),
		},
	})
	if sess := rm.Session(); sess != nil {
		s.gw.Send(client.ID, protocol.Message{
			Type: protocol.EvtCurrentState,
			Data: sess.State(),
		})
	}
}

func (s *GameServer) handleStartGame(client *gateway.Client) {
	if _, _, err := s.rooms.StartGame(client.ID); err != nil {
		s.sendRoomError(client.ID, err)
	}
}

func (s *GameServer) handlePause(client *gateway.Client, pause bool) {
	sess, err := s.hostSession(client.ID)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	if pause {
		sess.Pause()
	} else {
		sess.Resume()
	}
}

func (s *GameServer) handleSubmitAnswer(client *gateway.Client, data json.RawMessage) {
	var req protocol.SubmitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(client.ID, protocol.KindInvalidState, "malformed submit-answer")
		return
	}

	rm, p, err := s.boundPlayer(client.ID)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	sess := rm.Session()
	if sess == nil {
		s.sendError(client.ID, protocol.KindInvalidState, "no game in progress")
		return
	}

	res, err := sess.Submit(p.ID, req.QuestionIndex, req.OptionIndex)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	if res.Accepted {
		monitor.AnswersSubmitted.Inc()
	}
	s.gw.Send(client.ID, protocol.Message{
		Type: protocol.EvtAnswerAccepted,
		Data: protocol.AnswerAcceptedData{
			Accepted:   res.Accepted,
			Correct:    res.Correct,
			Points:     res.Points,
			TotalScore: res.Total,
		},
	})
}

func (s *GameServer) handleRequestState(client *gateway.Client) {
	rm, _, err := s.boundPlayer(client.ID)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	if sess := rm.Session(); sess != nil {
		s.gw.Send(client.ID, protocol.Message{
			Type: protocol.EvtCurrentState,
			Data: sess.State(),
		})
		return
	}
	// No game yet (or results already expired): report the lobby.
	s.gw.Send(client.ID, protocol.Message{
		Type: protocol.EvtCurrentState,
		Data: protocol.GameStateData{
			Screen:    string(rm.Phase()),
			Standings: rm.Standings(),
		},
	})
}

func (s *GameServer) handlePhotoSkip(client *gateway.Client, data json.RawMessage) {
	// Absent or empty payload means "skip the current photo".
	req := protocol.PhotoSkipRequest{QuestionIndex: -1}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendError(client.ID, protocol.KindInvalidState, "malformed photo skip")
			return
		}
	}
	sess, err := s.hostSession(client.ID)
	if err != nil {
		s.sendRoomError(client.ID, err)
		return
	}
	sess.SkipPhoto(req.QuestionIndex)
}

// boundPlayer resolves a connection to its room and player.
func (s *GameServer) boundPlayer(connID string) (*room.Room, *room.Player, error) {
	b, ok := s.rooms.LookupBinding(connID)
	if !ok {
		return nil, nil, room.ErrNotBound
	}
	rm, ok := s.rooms.Get(b.RoomCode)
	if !ok {
		return nil, nil, room.ErrRoomNotFound
	}
	p, ok := rm.Player(b.PlayerID)
	if !ok {
		return nil, nil, room.ErrPlayerNotFound
	}
	return rm, p, nil
}

// hostSession resolves a connection to its room's running session,
// requiring the caller to be the host.
func (s *GameServer) hostSession(connID string) (*game.Session, error) {
	rm, p, err := s.boundPlayer(connID)
	if err != nil {
		return nil, err
	}
	if p.Role != room.RoleHost {
		return nil, room.ErrNotHost
	}
	sess := rm.Session()
	if sess == nil {
		return nil, game.ErrSessionClosed
	}
	return sess, nil
}

func (s *GameServer) sendError(connID, kind, msg string) {
	s.gw.Send(connID, protocol.Message{
		Type: protocol.EvtError,
		Data: protocol.ErrorData{Kind: kind, Message: msg},
	})
}

// sendRoomError maps domain errors onto wire error kinds.
func (s *GameServer) sendRoomError(connID string, err error) {
	kind := protocol.KindInvalidState
	switch err {
	case room.ErrRoomNotFound, room.ErrPlayerNotFound, room.ErrNotBound,
		room.ErrCodesExhausted: // transient, "try again"
		kind = protocol.KindNotFound
	case room.ErrNameTaken, room.ErrHostTaken:
		kind = protocol.KindConflict
	case room.ErrNotHost:
		kind = protocol.KindUnauthorized
	}
	s.sendError(connID, kind, err.Error())
}
