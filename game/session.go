// Package game runs the live quiz session for one room: the screen
// state machine, the per-question answer ledger and scoring. A session
// owns a single goroutine that ticks once per second; everything else
// reaches the session through locked methods.
package game

import (
	"errors"
	"sync"
	"time"

	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/protocol"
	"github.com/quizparty/quizparty/question"
)

var (
	ErrNoQuestions         = errors.New("game: no questions to play")
	ErrSessionClosed       = errors.New("game: session closed")
	ErrNotAcceptingAnswers = errors.New("game: not accepting answers on this screen")
	ErrWrongQuestion       = errors.New("game: answer targets a different question")
	ErrInvalidOption       = errors.New("game: option index out of range")
)

// Config carries the timings that are not per-question. All durations
// that drive the countdown are whole seconds because the engine ticks
// at one-second resolution.
type Config struct {
	LeaderboardSeconds int
	WarningSeconds     int
	AllAnsweredGrace   int
	PhotoSkipRemainder int
	BasePoints         int
	ResultsRetention   time.Duration
}

func DefaultConfig() Config {
	return Config{
		LeaderboardSeconds: 10,
		WarningSeconds:     5,
		AllAnsweredGrace:   5,
		PhotoSkipRemainder: 3,
		BasePoints:         100,
		ResultsRetention:   60 * time.Second,
	}
}

// Answer is one player's recorded submission for one question. The
// ledger keeps the first submission only; later ones are echoes.
type Answer struct {
	OptionIndex int
	Correct     bool
	Points      int
	Total       int
	SubmittedAt time.Time
}

// SubmitResult is what the submitting player gets back. Accepted is
// false when the ledger already held an answer, in which case the
// original outcome is reported again.
type SubmitResult struct {
	Accepted bool
	Correct  bool
	Points   int
	Total    int
}

type Session struct {
	cfg       Config
	room      RoomContext
	send      Sender
	questions []question.Question

	mu       sync.Mutex
	index    int
	screen   string
	timeLeft int
	paused   bool
	warned   bool
	closed   bool
	answers  map[int]map[string]*Answer
	retain   *time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSession(cfg Config, room RoomContext, send Sender, qs []question.Question) (*Session, error) {
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}
	return &Session{
		cfg:       cfg,
		room:      room,
		send:      send,
		questions: qs,
		answers:   make(map[int]map[string]*Answer),
		stop:      make(chan struct{}),
	}, nil
}

func (s *Session) TotalQuestions() int {
	return len(s.questions)
}

// Start shows the first screen and launches the tick loop.
func (s *Session) Start() {
	s.mu.Lock()
	s.enterSlotLocked()
	s.mu.Unlock()
	go s.loop()
}

func (s *Session) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.paused || s.screen == protocol.ScreenResults {
		return
	}
	s.timeLeft--
	if s.timeLeft <= 0 {
		s.advanceLocked()
		return
	}
	s.broadcastTimeLocked()
}

// advanceLocked moves to the next screen when the current one expires.
func (s *Session) advanceLocked() {
	switch s.screen {
	case protocol.ScreenPhoto:
		s.enterQuestionLocked()
	case protocol.ScreenQuestion:
		s.enterLeaderboardLocked()
	case protocol.ScreenLeaderboard:
		s.index++
		switch {
		case s.index >= len(s.questions):
			s.enterResultsLocked()
		case s.index == len(s.questions)-1 && !s.warned:
			s.enterWarningLocked()
		default:
			s.enterSlotLocked()
		}
	case protocol.ScreenWarning:
		s.enterSlotLocked()
	}
}

// enterSlotLocked opens the slot for the current question. Questions
// without an image go straight to the answer screen; no photo event is
// ever sent for them.
func (s *Session) enterSlotLocked() {
	q := s.questions[s.index]
	if !q.HasImage() {
		s.enterQuestionLocked()
		return
	}
	s.screen = protocol.ScreenPhoto
	s.timeLeft = q.ImageSeconds
	s.broadcastScreenLocked(protocol.PhotoScreen{
		ImageURL: q.ImageRef,
		Seconds:  s.timeLeft,
	})
}

func (s *Session) enterQuestionLocked() {
	q := s.questions[s.index]
	s.screen = protocol.ScreenQuestion
	s.timeLeft = q.AnswerSeconds
	s.broadcastScreenLocked(s.questionScreenLocked())
}

func (s *Session) enterLeaderboardLocked() {
	s.screen = protocol.ScreenLeaderboard
	s.timeLeft = s.cfg.LeaderboardSeconds
	standings := s.room.Standings()
	s.broadcastScreenLocked(protocol.LeaderboardScreen{
		Standings:     standings,
		CorrectAnswer: s.questions[s.index].CorrectOption(),
	})
	s.send.ToRoom(s.room.Code(), protocol.Message{
		Type: protocol.EvtLeaderboardUpdated,
		Data: protocol.LeaderboardScreen{Standings: standings},
	})
}

// enterWarningLocked shows the heads-up before the final question. It
// fires at most once per game and never for single-question games,
// which start directly on their only question.
func (s *Session) enterWarningLocked() {
	s.warned = true
	s.screen = protocol.ScreenWarning
	s.timeLeft = s.cfg.WarningSeconds
	s.broadcastScreenLocked(protocol.WarningScreen{
		Message:      "Get ready, the last question is coming up!",
		NextQuestion: s.index + 1,
	})
}

func (s *Session) enterResultsLocked() {
	s.screen = protocol.ScreenResults
	s.timeLeft = 0
	standings := s.room.Standings()
	s.broadcastScreenLocked(protocol.ResultsScreen{Standings: standings})
	s.send.ToRoom(s.room.Code(), protocol.Message{
		Type: protocol.EvtGameEnded,
		Data: protocol.GameEndedData{Standings: standings},
	})
	s.room.SetFinished()

	// Keep the results around for late reconnects, then self-destruct.
	s.retain = time.AfterFunc(s.cfg.ResultsRetention, s.expire)
	logger.Log.Infow("Game finished", "room", s.room.Code(), "questions", len(s.questions))
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	s.room.DetachSession()
}

// Close tears the session down immediately, e.g. when the room is
// deleted. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.retain != nil {
		s.retain.Stop()
	}
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

// Pause freezes the countdown. Pausing twice is a no-op.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.screen == protocol.ScreenResults || s.paused {
		return
	}
	s.paused = true
	s.broadcastTimeLocked()
}

// Resume continues a paused countdown from where it stopped.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.paused {
		return
	}
	s.paused = false
	s.broadcastTimeLocked()
}

// Submit records a player's answer for the question currently on
// screen. Duplicate submissions are not an error: the first recorded
// outcome is returned again with Accepted false.
func (s *Session) Submit(playerID string, questionIndex, optionIndex int) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SubmitResult{}, ErrSessionClosed
	}
	if s.screen != protocol.ScreenQuestion {
		return SubmitResult{}, ErrNotAcceptingAnswers
	}
	if questionIndex != s.index {
		return SubmitResult{}, ErrWrongQuestion
	}
	q := s.questions[s.index]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return SubmitResult{}, ErrInvalidOption
	}

	ledger := s.answers[s.index]
	if ledger == nil {
		ledger = make(map[string]*Answer)
		s.answers[s.index] = ledger
	}
	if prev, ok := ledger[playerID]; ok {
		return SubmitResult{
			Accepted: false,
			Correct:  prev.Correct,
			Points:   prev.Points,
			Total:    prev.Total,
		}, nil
	}

	correct := optionIndex == q.CorrectIndex
	points := 0
	if correct {
		// Flat base plus a speed bonus proportional to the time left
		// on the countdown when the answer arrived.
		points = s.cfg.BasePoints + s.cfg.BasePoints*s.timeLeft/q.AnswerSeconds
	}
	total := s.room.AddScore(playerID, points)
	ledger[playerID] = &Answer{
		OptionIndex: optionIndex,
		Correct:     correct,
		Points:      points,
		Total:       total,
		SubmittedAt: time.Now(),
	}

	if s.allAnsweredLocked() {
		s.clampLocked()
	}
	return SubmitResult{Accepted: true, Correct: correct, Points: points, Total: total}, nil
}

// OnPlayerDisconnected re-evaluates the early-advance condition: the
// player that just dropped may have been the only one still thinking.
func (s *Session) OnPlayerDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.screen != protocol.ScreenQuestion {
		return
	}
	if s.allAnsweredLocked() {
		s.clampLocked()
	}
}

// allAnsweredLocked reports whether every connected player has an entry
// in the current question's ledger. An empty roster never counts as
// all-answered, so a room that momentarily loses everyone does not
// race through its questions.
func (s *Session) allAnsweredLocked() bool {
	active := s.room.ActivePlayerIDs()
	if len(active) == 0 {
		return false
	}
	ledger := s.answers[s.index]
	for _, id := range active {
		if _, ok := ledger[id]; !ok {
			return false
		}
	}
	return true
}

// clampLocked shortens the question countdown once everyone has
// answered. The screen still advances through the normal tick path,
// just sooner; the clamp never extends the remaining time.
func (s *Session) clampLocked() {
	if s.timeLeft <= s.cfg.AllAnsweredGrace {
		return
	}
	s.timeLeft = s.cfg.AllAnsweredGrace
	s.send.ToRoom(s.room.Code(), protocol.Message{
		Type: protocol.EvtAllAnswered,
		Data: protocol.AllAnsweredData{QuestionIndex: s.index, Seconds: s.timeLeft},
	})
	s.broadcastTimeLocked()
}

// SkipPhoto cuts the photo screen short when the host reports the
// image cannot be shown. A stale question index, or any screen other
// than the photo, makes this a no-op.
func (s *Session) SkipPhoto(questionIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.screen != protocol.ScreenPhoto {
		return
	}
	if questionIndex >= 0 && questionIndex != s.index {
		return
	}
	if s.timeLeft > s.cfg.PhotoSkipRemainder {
		s.timeLeft = s.cfg.PhotoSkipRemainder
		s.broadcastTimeLocked()
	}
}

// State renders the full current game state for one connection, used
// to repaint a client that joined or reconnected mid-game.
func (s *Session) State() protocol.GameStateData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.GameStateData{
		Screen:         s.screen,
		QuestionIndex:  s.index,
		TotalQuestions: len(s.questions),
		Seconds:        s.timeLeft,
		Paused:         s.paused,
		ScreenData:     s.screenDataLocked(),
		Standings:      s.room.Standings(),
	}
}

func (s *Session) screenDataLocked() any {
	switch s.screen {
	case protocol.ScreenPhoto:
		q := s.questions[s.index]
		return protocol.PhotoScreen{ImageURL: q.ImageRef, Seconds: s.timeLeft}
	case protocol.ScreenQuestion:
		return s.questionScreenLocked()
	case protocol.ScreenLeaderboard:
		return protocol.LeaderboardScreen{
			Standings:     s.room.Standings(),
			CorrectAnswer: s.questions[s.index].CorrectOption(),
		}
	case protocol.ScreenWarning:
		return protocol.WarningScreen{
			Message:      "Get ready, the last question is coming up!",
			NextQuestion: s.index + 1,
		}
	case protocol.ScreenResults:
		return protocol.ResultsScreen{Standings: s.room.Standings()}
	}
	return nil
}

func (s *Session) questionScreenLocked() protocol.QuestionScreen {
	q := s.questions[s.index]
	return protocol.QuestionScreen{
		Index:   s.index,
		Total:   len(s.questions),
		Text:    q.Text,
		Options: q.Options,
		Seconds: s.timeLeft,
	}
}

func (s *Session) broadcastScreenLocked(data any) {
	s.send.ToRoom(s.room.Code(), protocol.Message{
		Type: protocol.EvtScreenChanged,
		Data: protocol.ScreenChangedData{Screen: s.screen, Data: data},
	})
}

func (s *Session) broadcastTimeLocked() {
	s.send.ToRoom(s.room.Code(), protocol.Message{
		Type: protocol.EvtTimeRemaining,
		Data: protocol.TimeRemainingData{Seconds: s.timeLeft, Paused: s.paused},
	})
}
