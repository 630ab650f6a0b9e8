// internal/models/history.go
package models

// History queue record kinds.
const (
	HistoryKindRound = "round"
	HistoryKindMatch = "match"
)

// Round outcomes recorded for audit.
const (
	RoundOutcomeAnswered = "answered"
	RoundOutcomeTimeout  = "timeout"
	RoundOutcomeSkipped  = "skipped"
)

// RoundRecord is one resolved round, queued for the historian. Timestamps
// are unix milliseconds.
type RoundRecord struct {
	Kind         string `json:"kind"`
	MatchID      string `json:"match_id"`
	RoundNumber  int    `json:"round_number"`
	QuestionID   string `json:"question_id"`
	QuestionType string `json:"question_type"`
	Outcome      string `json:"outcome"`
	Winner       string `json:"winner,omitempty"`
	Damage       int    `json:"damage"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	OccurredAt   int64  `json:"occurred_at"`
}

// MatchRecord is one finished match, queued for the historian.
type MatchRecord struct {
	Kind         string `json:"kind"`
	MatchID      string `json:"match_id"`
	CourseID     string `json:"course_id"`
	PlayerA      string `json:"player_a"`
	PlayerB      string `json:"player_b"`
	Winner       string `json:"winner,omitempty"`
	FinalHPA     int    `json:"final_hp_a"`
	FinalHPB     int    `json:"final_hp_b"`
	RoundsPlayed int    `json:"rounds_played"`
	StartedAt    int64  `json:"started_at"`
	FinishedAt   int64  `json:"finished_at"`
}
