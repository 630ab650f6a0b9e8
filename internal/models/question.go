// internal/models/question.go
package models

// QuestionType enumerates the kinds of questions a round can carry.
type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
	QuestionCalc  QuestionType = "calc"
	QuestionCode  QuestionType = "code"
)

// ValidQuestionType reports whether t is one of the known kinds.
func ValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionMCQ, QuestionShort, QuestionCalc, QuestionCode:
		return true
	}
	return false
}

// Difficulty enumerates requested question difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ValidDifficulty reports whether d is one of the known levels.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Fragment is a retrievable unit of course content with its citation
// metadata.
type Fragment struct {
	DocID      string `json:"doc_id"`
	FileName   string `json:"file_name"`
	Page       int    `json:"page"`
	FragmentID string `json:"fragment_id"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Text       string `json:"text,omitempty"`
}

// Question is a generated round question. CorrectAnswer and Solution are
// never sent to clients before the round resolves.
type Question struct {
	ID            string       `json:"question_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Solution      string       `json:"solution"`
	Sources       []Fragment   `json:"sources"`

	// TimeLimit is attached when the round starts, not at generation.
	TimeLimit int `json:"time_limit"`
}

// Verdict is the grading result for a submitted answer.
type Verdict struct {
	Correct     bool       `json:"correct"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
	Citations   []Fragment `json:"citation"`
}
