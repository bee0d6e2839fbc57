package game

import (
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/protocol"
	"github.com/quizparty/quizparty/question"
)

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	os.Exit(m.Run())
}

// fakeRoom is a test double for RoomContext.
type fakeRoom struct {
	mu       sync.Mutex
	active   []string
	scores   map[string]int
	finished bool
	detached bool
}

func newFakeRoom(players ...string) *fakeRoom {
	return &fakeRoom{active: players, scores: make(map[string]int)}
}

func (r *fakeRoom) Code() string { return "TST-001" }

func (r *fakeRoom) ActivePlayerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.active...)
}

func (r *fakeRoom) AddScore(id string, pts int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[id] += pts
	return r.scores[id]
}

func (r *fakeRoom) Standings() []protocol.Standing {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Standing
	for id, score := range r.scores {
		out = append(out, protocol.Standing{PlayerID: id, Name: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (r *fakeRoom) SetFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
}

func (r *fakeRoom) DetachSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
}

func (r *fakeRoom) dropPlayer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []string
	for _, p := range r.active {
		if p != id {
			kept = append(kept, p)
		}
	}
	r.active = kept
}

func (r *fakeRoom) isFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *fakeRoom) isDetached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detached
}

// fakeSender records every broadcast.
type fakeSender struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (s *fakeSender) ToRoom(code string, msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *fakeSender) ToConn(connID string, msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *fakeSender) ofType(typ string) []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Message
	for _, m := range s.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// screens lists the screen names in broadcast order.
func (s *fakeSender) screens() []string {
	var out []string
	for _, m := range s.ofType(protocol.EvtScreenChanged) {
		out = append(out, m.Data.(protocol.ScreenChangedData).Screen)
	}
	return out
}

func textQuestion(text string, answerSec int) question.Question {
	return question.Question{
		Text:          text,
		Options:       []string{"right", "wrong a", "wrong b"},
		CorrectIndex:  0,
		AnswerSeconds: answerSec,
		ImageSeconds:  10,
	}
}

func photoQuestion(text string, imageSec, answerSec int) question.Question {
	q := textQuestion(text, answerSec)
	q.ImageRef = "/photos/x.jpg"
	q.ImageSeconds = imageSec
	return q
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResultsRetention = time.Hour
	return cfg
}

// newTestSession builds a session and shows the first screen without
// starting the background loop; tests drive the clock via tick().
func newTestSession(t *testing.T, cfg Config, rm *fakeRoom, send *fakeSender, qs ...question.Question) *Session {
	t.Helper()
	s, err := NewSession(cfg, rm, send, qs)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(s.Close)
	s.mu.Lock()
	s.enterSlotLocked()
	s.mu.Unlock()
	return s
}

func (s *Session) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}

func (s *Session) currentScreen() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

func TestNewSessionRejectsEmptyBank(t *testing.T) {
	if _, err := NewSession(testConfig(), newFakeRoom(), &fakeSender{}, nil); err != ErrNoQuestions {
		t.Fatalf("Expected ErrNoQuestions, got %v", err)
	}
}

func TestQuestionWithoutImageNeverShowsPhoto(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(t, testConfig(), newFakeRoom("p1"), send, textQuestion("q1", 30))

	if got := s.currentScreen(); got != protocol.ScreenQuestion {
		t.Fatalf("Expected to open on the question screen, got %q", got)
	}
	for _, screen := range send.screens() {
		if screen == protocol.ScreenPhoto {
			t.Fatal("Photo screen broadcast for an imageless question")
		}
	}
}

func TestPhotoScreenPrecedesQuestion(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(t, testConfig(), newFakeRoom("p1"), send, photoQuestion("q1", 2, 30))

	if got := s.currentScreen(); got != protocol.ScreenPhoto {
		t.Fatalf("Expected photo screen first, got %q", got)
	}
	s.tick()
	s.tick()
	if got := s.currentScreen(); got != protocol.ScreenQuestion {
		t.Fatalf("Expected question screen after photo expiry, got %q", got)
	}
	if screens := send.screens(); screens[0] != protocol.ScreenPhoto || screens[1] != protocol.ScreenQuestion {
		t.Errorf("Unexpected screen order: %v", screens)
	}
}

func TestScoringSpeedBonus(t *testing.T) {
	send := &fakeSender{}
	rm := newFakeRoom("p1", "p2")
	s := newTestSession(t, testConfig(), rm, send, textQuestion("q1", 30))

	// Full time left: base plus the whole bonus.
	res, err := s.Submit("p1", 0, 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Accepted || !res.Correct {
		t.Fatalf("Expected accepted correct answer, got %+v", res)
	}
	if res.Points != 200 {
		t.Errorf("Expected 200 points at full time, got %d", res.Points)
	}

	s.tick()
	s.tick()
	// 28 of 30 seconds left: 100 + 100*28/30 = 193.
	res, err = s.Submit("p2", 0, 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Points != 193 {
		t.Errorf("Expected 193 points with 28s left, got %d", res.Points)
	}
	if res.Total != 193 {
		t.Errorf("Expected running total 193, got %d", res.Total)
	}
}

func TestWrongAnswerScoresZero(t *testing.T) {
	rm := newFakeRoom("p1")
	s := newTestSession(t, testConfig(), rm, &fakeSender{}, textQuestion("q1", 30))

	res, err := s.Submit("p1", 0, 1)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Correct || res.Points != 0 || res.Total != 0 {
		t.Errorf("Wrong answer should score zero, got %+v", res)
	}
}

func TestDuplicateSubmissionIsIdempotent(t *testing.T) {
	rm := newFakeRoom("p1", "p2")
	s := newTestSession(t, testConfig(), rm, &fakeSender{}, textQuestion("q1", 30))

	first, err := s.Submit("p1", 0, 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	second, err := s.Submit("p1", 0, 2)
	if err != nil {
		t.Fatalf("Duplicate submit should not error: %v", err)
	}
	if second.Accepted {
		t.Error("Duplicate submission should not be accepted")
	}
	if second.Correct != first.Correct || second.Points != first.Points || second.Total != first.Total {
		t.Errorf("Duplicate should echo the original outcome: first %+v, second %+v", first, second)
	}
	if got := rm.scores["p1"]; got != first.Points {
		t.Errorf("Score must not change on duplicate, got %d", got)
	}
}

func TestSubmitRejections(t *testing.T) {
	s := newTestSession(t, testConfig(), newFakeRoom("p1"), &fakeSender{},
		photoQuestion("q1", 10, 30))

	if _, err := s.Submit("p1", 0, 0); err != ErrNotAcceptingAnswers {
		t.Errorf("Submitting on the photo screen: expected ErrNotAcceptingAnswers, got %v", err)
	}

	s.SkipPhoto(-1)
	for s.currentScreen() == protocol.ScreenPhoto {
		s.tick()
	}

	if _, err := s.Submit("p1", 5, 0); err != ErrWrongQuestion {
		t.Errorf("Stale question index: expected ErrWrongQuestion, got %v", err)
	}
	if _, err := s.Submit("p1", 0, 99); err != ErrInvalidOption {
		t.Errorf("Bad option index: expected ErrInvalidOption, got %v", err)
	}
}

func TestAllAnsweredClampsCountdown(t *testing.T) {
	send := &fakeSender{}
	rm := newFakeRoom("p1", "p2")
	s := newTestSession(t, testConfig(), rm, send, textQuestion("q1", 30))

	s.Submit("p1", 0, 0)
	if got := s.remaining(); got != 30 {
		t.Fatalf("Countdown should not clamp while someone is still thinking, got %d", got)
	}
	if msgs := send.ofType(protocol.EvtAllAnswered); len(msgs) != 0 {
		t.Fatal("all-players-answered broadcast too early")
	}

	s.Submit("p2", 0, 1)
	if got := s.remaining(); got != testConfig().AllAnsweredGrace {
		t.Fatalf("Expected clamp to %d seconds, got %d", testConfig().AllAnsweredGrace, got)
	}
	msgs := send.ofType(protocol.EvtAllAnswered)
	if len(msgs) != 1 {
		t.Fatalf("Expected one all-players-answered broadcast, got %d", len(msgs))
	}
	data := msgs[0].Data.(protocol.AllAnsweredData)
	if data.Seconds <= 0 {
		t.Error("Clamp must leave a non-zero grace, never advance instantly")
	}
}

func TestClampNeverExtendsTime(t *testing.T) {
	send := &fakeSender{}
	rm := newFakeRoom("p1")
	s := newTestSession(t, testConfig(), rm, send, textQuestion("q1", 3))

	s.Submit("p1", 0, 0)
	if got := s.remaining(); got != 3 {
		t.Fatalf("Clamp should not extend a countdown already under the grace, got %d", got)
	}
	if msgs := send.ofType(protocol.EvtAllAnswered); len(msgs) != 0 {
		t.Error("No clamp broadcast expected when nothing was clamped")
	}
}

func TestDisconnectRechecksAllAnswered(t *testing.T) {
	rm := newFakeRoom("p1", "p2")
	s := newTestSession(t, testConfig(), rm, &fakeSender{}, textQuestion("q1", 30))

	s.Submit("p1", 0, 0)
	rm.dropPlayer("p2")
	s.OnPlayerDisconnected()

	if got := s.remaining(); got != testConfig().AllAnsweredGrace {
		t.Fatalf("Expected clamp after the unanswered player left, got %d", got)
	}
}

func TestEmptyRosterNeverCountsAsAllAnswered(t *testing.T) {
	rm := newFakeRoom()
	s := newTestSession(t, testConfig(), rm, &fakeSender{}, textQuestion("q1", 30))

	s.OnPlayerDisconnected()
	if got := s.remaining(); got != 30 {
		t.Fatalf("Empty roster must not clamp the countdown, got %d", got)
	}
}

func TestPauseFreezesCountdown(t *testing.T) {
	s := newTestSession(t, testConfig(), newFakeRoom("p1"), &fakeSender{}, textQuestion("q1", 30))

	s.Pause()
	s.tick()
	s.tick()
	if got := s.remaining(); got != 30 {
		t.Fatalf("Paused countdown should not move, got %d", got)
	}

	s.Resume()
	s.tick()
	if got := s.remaining(); got != 29 {
		t.Fatalf("Resumed countdown should continue where it stopped, got %d", got)
	}

	// Idempotent both ways.
	s.Resume()
	s.Pause()
	s.Pause()
	s.tick()
	if got := s.remaining(); got != 29 {
		t.Fatalf("Double pause should still freeze, got %d", got)
	}
}

func TestSkipPhotoClampsToRemainder(t *testing.T) {
	s := newTestSession(t, testConfig(), newFakeRoom("p1"), &fakeSender{},
		photoQuestion("q1", 20, 30))

	s.SkipPhoto(3)
	if got := s.remaining(); got != 20 {
		t.Fatalf("Skip for a different question must be ignored, got %d", got)
	}

	s.SkipPhoto(-1)
	if got := s.remaining(); got != testConfig().PhotoSkipRemainder {
		t.Fatalf("Expected photo countdown clamped to %d, got %d", testConfig().PhotoSkipRemainder, got)
	}

	// Already on the question screen: nothing to skip.
	for s.currentScreen() == protocol.ScreenPhoto {
		s.tick()
	}
	before := s.remaining()
	s.SkipPhoto(0)
	if got := s.remaining(); got != before {
		t.Fatalf("Skip outside the photo screen must be a no-op, got %d", got)
	}
}

// playThrough drives the session with ticks until the results screen.
func playThrough(t *testing.T, s *Session) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if s.currentScreen() == protocol.ScreenResults {
			return
		}
		s.tick()
	}
	t.Fatal("Game never reached the results screen")
}

func TestWarningShownOnceBeforeLastQuestion(t *testing.T) {
	cfg := testConfig()
	cfg.LeaderboardSeconds = 1
	cfg.WarningSeconds = 1
	send := &fakeSender{}
	s := newTestSession(t, cfg, newFakeRoom("p1"), send,
		textQuestion("q1", 1), textQuestion("q2", 1), textQuestion("q3", 1))

	playThrough(t, s)

	screens := send.screens()
	warnings := 0
	warningAt := -1
	for i, screen := range screens {
		if screen == protocol.ScreenWarning {
			warnings++
			warningAt = i
		}
	}
	if warnings != 1 {
		t.Fatalf("Expected exactly one warning screen, got %d in %v", warnings, screens)
	}
	// The warning must lead straight into the final question.
	if warningAt+1 >= len(screens) || screens[warningAt+1] != protocol.ScreenQuestion {
		t.Errorf("Warning should be followed by the last question, got %v", screens)
	}
	if screens[len(screens)-1] != protocol.ScreenResults {
		t.Errorf("Game should end on the results screen, got %v", screens)
	}
}

func TestSingleQuestionGameSkipsWarning(t *testing.T) {
	cfg := testConfig()
	cfg.LeaderboardSeconds = 1
	send := &fakeSender{}
	s := newTestSession(t, cfg, newFakeRoom("p1"), send, textQuestion("q1", 1))

	playThrough(t, s)

	for _, screen := range send.screens() {
		if screen == protocol.ScreenWarning {
			t.Fatal("Single-question game must not show the last-question warning")
		}
	}
}

func TestResultsFinishRoomAndBroadcastEnd(t *testing.T) {
	cfg := testConfig()
	cfg.LeaderboardSeconds = 1
	send := &fakeSender{}
	rm := newFakeRoom("p1")
	s := newTestSession(t, cfg, rm, send, textQuestion("q1", 1))

	s.Submit("p1", 0, 0)
	playThrough(t, s)

	if !rm.isFinished() {
		t.Error("Room should be marked finished on results")
	}
	ended := send.ofType(protocol.EvtGameEnded)
	if len(ended) != 1 {
		t.Fatalf("Expected one game-ended broadcast, got %d", len(ended))
	}
	standings := ended[0].Data.(protocol.GameEndedData).Standings
	if len(standings) != 1 || standings[0].PlayerID != "p1" {
		t.Errorf("Final standings missing the scorer: %+v", standings)
	}

	if _, err := s.Submit("p1", 0, 0); err != ErrNotAcceptingAnswers {
		t.Errorf("Submitting after the game: expected ErrNotAcceptingAnswers, got %v", err)
	}
}

func TestRetentionDetachesSession(t *testing.T) {
	cfg := testConfig()
	cfg.LeaderboardSeconds = 1
	cfg.ResultsRetention = 20 * time.Millisecond
	rm := newFakeRoom("p1")
	s := newTestSession(t, cfg, rm, &fakeSender{}, textQuestion("q1", 1))

	playThrough(t, s)

	deadline := time.Now().Add(time.Second)
	for !rm.isDetached() {
		if time.Now().After(deadline) {
			t.Fatal("Session never detached after the retention window")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseCancelsRetention(t *testing.T) {
	cfg := testConfig()
	cfg.LeaderboardSeconds = 1
	cfg.ResultsRetention = 20 * time.Millisecond
	rm := newFakeRoom("p1")
	s := newTestSession(t, cfg, rm, &fakeSender{}, textQuestion("q1", 1))

	playThrough(t, s)
	s.Close()

	time.Sleep(100 * time.Millisecond)
	if rm.isDetached() {
		t.Error("Closed session must not fire the retention detach")
	}
}

func TestStateSnapshotMidGame(t *testing.T) {
	s := newTestSession(t, testConfig(), newFakeRoom("p1"), &fakeSender{},
		textQuestion("q1", 30), textQuestion("q2", 30))

	s.tick()
	state := s.State()
	if state.Screen != protocol.ScreenQuestion {
		t.Errorf("Expected question screen in snapshot, got %q", state.Screen)
	}
	if state.QuestionIndex != 0 || state.TotalQuestions != 2 {
		t.Errorf("Unexpected progress in snapshot: %+v", state)
	}
	if state.Seconds != 29 {
		t.Errorf("Expected 29 seconds left in snapshot, got %d", state.Seconds)
	}
	qs, ok := state.ScreenData.(protocol.QuestionScreen)
	if !ok {
		t.Fatalf("Expected question screen data, got %T", state.ScreenData)
	}
	if qs.Text != "q1" || len(qs.Options) != 3 {
		t.Errorf("Unexpected question payload: %+v", qs)
	}
}
