package protocol

// --- inbound payloads ---

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"` // "host" or "player", defaults to player
}

type RestoreSessionRequest struct {
	Code      string `json:"code"`
	PlayerID  string `json:"playerId"`
	OldConnID string `json:"oldConnectionId,omitempty"`
}

type SubmitAnswerRequest struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type PhotoSkipRequest struct {
	// QuestionIndex guards against a stale skip arriving after the
	// session has already moved on. -1 means "whatever is current".
	QuestionIndex int `json:"questionIndex"`
}

// --- outbound payloads ---

type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status"`
	Score  int    `json:"score"`
}

type RoomJoinedData struct {
	Code     string       `json:"code"`
	PlayerID string       `json:"playerId"`
	IsHost   bool         `json:"isHost"`
	Players  []PlayerInfo `json:"players"`
}

type PlayersUpdatedData struct {
	Players []PlayerInfo `json:"players"`
}

type GameStartedData struct {
	TotalQuestions int `json:"totalQuestions"`
}

type ScreenChangedData struct {
	Screen string `json:"screen"`
	Data   any    `json:"data,omitempty"`
}

type PhotoScreen struct {
	ImageURL string `json:"imageUrl"`
	Seconds  int    `json:"seconds"`
}

type QuestionScreen struct {
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Seconds int      `json:"seconds"`
}

type LeaderboardScreen struct {
	Standings     []Standing `json:"standings"`
	CorrectAnswer string     `json:"correctAnswer,omitempty"`
}

type WarningScreen struct {
	Message      string `json:"message"`
	NextQuestion int    `json:"nextQuestion"` // 1-based, for display
}

type ResultsScreen struct {
	Standings []Standing `json:"standings"`
}

type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

type TimeRemainingData struct {
	Seconds int  `json:"seconds"`
	Paused  bool `json:"paused"`
}

type AnswerAcceptedData struct {
	Accepted   bool `json:"accepted"`
	Correct    bool `json:"correct"`
	Points     int  `json:"points"`
	TotalScore int  `json:"totalScore"`
}

type AllAnsweredData struct {
	QuestionIndex int `json:"questionIndex"`
	Seconds       int `json:"seconds"`
}

type GameEndedData struct {
	Standings []Standing `json:"standings"`
}

type GameStateData struct {
	Screen         string     `json:"screen"`
	QuestionIndex  int        `json:"questionIndex"`
	TotalQuestions int        `json:"totalQuestions"`
	Seconds        int        `json:"seconds"`
	Paused         bool       `json:"paused"`
	ScreenData     any        `json:"screenData,omitempty"`
	Standings      []Standing `json:"standings"`
}

type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
