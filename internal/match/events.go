// internal/match/events.go
package match

import "github.com/clashcourse/clashcourse/internal/models"

// EventType is an enum-like type for frames pushed to clients.
type EventType string

// The outbound frame set is closed: the gateway routes on exactly these.
const (
	EventConnected      EventType = "connected"       // Private greeting after the socket is accepted
	EventMatchReady     EventType = "match_ready"     // Both players connected, combat about to start
	EventRoundStart     EventType = "round_start"     // New question (public fields only)
	EventRoundUpdate    EventType = "round_update"    // Once per second while a round runs
	EventSkipUpdate     EventType = "skip_update"     // Skip vote tally changed
	EventRoundResult    EventType = "round_result"    // Round resolved: win, timeout, or skip
	EventMatchEnd       EventType = "match_end"       // Terminal result
	EventAnswerFeedback EventType = "answer_feedback" // Private verdict on an incorrect answer
	EventError          EventType = "error"           // Something the client should surface
	EventPong           EventType = "pong"            // Reply to a ping frame
)

// Event is the wire envelope for every frame the server pushes.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// PlayerHealth appears in the {name: {hp}} maps of ready/result payloads.
type PlayerHealth struct {
	HP int `json:"hp"`
}

// ConnectedData greets the player whose socket was just accepted.
type ConnectedData struct {
	Player  string   `json:"player"`
	MatchID string   `json:"match_id"`
	Players []string `json:"players"`
}

// MatchReadyData announces activation, or replays current healths on
// reconnect.
type MatchReadyData struct {
	Players map[string]PlayerHealth `json:"players"`
}

// RoundStartData carries the public half of a question. Citations hold
// reference metadata only; the correct answer and solution stay server-side
// until the round resolves.
type RoundStartData struct {
	QuestionID   string              `json:"question_id"`
	QuestionText string              `json:"question_text"`
	QuestionType models.QuestionType `json:"question_type"`
	Options      []string            `json:"options,omitempty"`
	TimeLimit    int                 `json:"time_limit"`
	SecondsLeft  int                 `json:"seconds_left"`
	RoundNumber  int                 `json:"round_number"`
	Citation     []models.Fragment   `json:"citation"`
}

// RoundUpdateData ticks the countdown.
type RoundUpdateData struct {
	SecondsLeft int `json:"seconds_left"`
}

// SkipUpdateData reports the current skip vote tally.
type SkipUpdateData struct {
	Votes  int      `json:"votes"`
	Needed int      `json:"needed"`
	Voters []string `json:"voters"`
}

// RoundResultData resolves a round. WinnerPlayer is empty with Timeout or
// Skipped set when nobody won; Skipped results always carry zero damage.
type RoundResultData struct {
	WinnerPlayer  string                  `json:"winner_player"`
	LoserPlayer   string                  `json:"loser_player"`
	Damage        int                     `json:"damage"`
	TimeTaken     float64                 `json:"time_taken"`
	Timeout       bool                    `json:"timeout"`
	Skipped       bool                    `json:"skipped"`
	Solution      string                  `json:"solution"`
	CorrectAnswer string                  `json:"correct_answer"`
	Citation      []models.Fragment       `json:"citation"`
	Players       map[string]PlayerHealth `json:"players"`
}

// MatchEndData is the terminal frame. An empty Winner is a draw.
type MatchEndData struct {
	Winner  string         `json:"winner"`
	FinalHP map[string]int `json:"final_hp"`
}

// AnswerFeedbackData is sent privately after an incorrect submission.
type AnswerFeedbackData struct {
	Correct         bool    `json:"correct"`
	Explanation     string  `json:"explanation"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
}

// ErrorData wraps a human-readable error message.
type ErrorData struct {
	Message string `json:"message"`
}
