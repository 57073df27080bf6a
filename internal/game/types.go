package game

import "encoding/json"

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// inbound
const (
	MsgCreateRoom  = "createRoom"
	MsgJoinRoom    = "joinRoom"
	MsgStartGame   = "startGame"
	MsgSubmitPhoto = "submitPhoto"
	MsgGetState    = "getState"
	MsgPlayAgain   = "playAgain"
)

// outbound
const (
	MsgRoomJoined       = "roomJoined"
	MsgRoomUpdate       = "roomUpdate"
	MsgRoundStart       = "roundStart"
	MsgSubmissionResult = "submissionResult"
	MsgRoundResult      = "roundResult"
	MsgFinalResult      = "finalResult"
	MsgState            = "state"
	MsgError            = "error"
)

type CreateRoomPayload struct {
	Name       string `json:"name"`
	Difficulty string `json:"difficulty"`
	Rounds     int    `json:"rounds"`
}

type JoinRoomPayload struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// SubmitPhotoPayload carries a base64 data URI (data:image/jpeg;base64,...).
type SubmitPhotoPayload struct {
	Image string `json:"image"`
}

type RoomJoinedPayload struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	IsHost bool   `json:"isHost"`
}

type RoomUpdatePayload struct {
	Code        string       `json:"code"`
	Status      Status       `json:"status"`
	HostID      string       `json:"hostId"`
	Difficulty  Difficulty   `json:"difficulty"`
	TotalRounds int          `json:"totalRounds"`
	Players     []PlayerView `json:"players"`
}

type RoundStartPayload struct {
	RoundIndex  int    `json:"roundIndex"` // 0-based
	TotalRounds int    `json:"totalRounds"`
	Mission     string `json:"mission"`
	DeadlineMs  int64  `json:"deadlineMs"`
	DurationMs  int64  `json:"durationMs"`
}

type SubmissionResultPayload struct {
	RoundIndex int     `json:"roundIndex"`
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	ElapsedMs  int64   `json:"elapsedMs"`
}

type ResultView struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Submitted bool   `json:"submitted"`
	Correct   bool   `json:"correct"`
	ElapsedMs int64  `json:"elapsedMs"` // -1 if no submission
	Points    int    `json:"points"`
	Score     int    `json:"score"`
}

type RoundResultPayload struct {
	RoundIndex  int          `json:"roundIndex"`
	TotalRounds int          `json:"totalRounds"`
	Mission     string       `json:"mission"`
	Results     []ResultView `json:"results"`
	Players     []PlayerView `json:"players"`
}

type FinalResultPayload struct {
	Code      string       `json:"code"`
	Standings []PlayerView `json:"standings"` // score desc, stable
}

// Snapshot is the answer to getState. Round is set only while the room is playing.
type Snapshot struct {
	Code   string         `json:"code"`
	Status Status         `json:"status"`
	Round  *RoundSnapshot `json:"round,omitempty"`
}

type RoundSnapshot struct {
	RoundIndex  int    `json:"roundIndex"`
	TotalRounds int    `json:"totalRounds"`
	Mission     string `json:"mission"`
	DeadlineMs  int64  `json:"deadlineMs"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
