// internal/question/client.go
package question

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clashcourse/clashcourse/internal/models"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-chat"

	completionsPath = "/v1/chat/completions"
)

const generatePrompt = `You are a math/CS exam writer. ONLY use the provided context. DO NOT hallucinate outside it. Create ONE problem that is NEW but closely based on the examples and facts in the context. The problem must be solvable with the context.

Output JSON ONLY with these exact keys (no markdown, no code blocks, just raw JSON):
{
  "question_text": "...",
  "options": ["A ...", "B ...", "C ...", "D ..."] OR null,
  "correct_answer": "...",
  "solution_steps": "..."
}

Requirements:
- question type: %s
- difficulty level: %s
- For mcq: provide exactly 4 options (A, B, C, D)
- For short/calc/code: options should be null
- correct_answer must be the exact expected answer
- solution_steps must show step-by-step how to get the answer

Context:
%s`

const gradePrompt = `You are an objective grader. Use ONLY the context below and the official solution. Evaluate the student's submitted answer.

Return JSON ONLY (no markdown, no code blocks):
{
  "correct": true|false,
  "confidence": 0.0-1.0,
  "explanation": "..."
}

Context:
%s

Official Solution: %s
Correct Answer: %s

Student Answer: %s

Grading rules:
- For short answers: semantic equivalence is acceptable
- For calc: numerical answer must match (allow small rounding differences)
- For code: logic must be correct, syntax variations acceptable`

// Client calls a DeepSeek-compatible chat-completions endpoint in JSON mode.
// Malformed or incomplete model output is an error; the engine treats it as
// a collaborator failure, never a guessed answer.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewClient builds a Client from DEEPSEEK_API_KEY, DEEPSEEK_BASE_URL and
// DEEPSEEK_MODEL.
func NewClient() *Client {
	base := strings.TrimRight(getEnv("DEEPSEEK_BASE_URL", defaultBaseURL), "/")
	return &Client{
		baseURL: base,
		apiKey:  os.Getenv("DEEPSEEK_API_KEY"),
		model:   getEnv("DEEPSEEK_MODEL", defaultModel),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxRetries: 2,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one prompt and returns the raw message content. Retries on
// transport errors and non-2xx statuses.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("question client: no API key configured")
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful assistant that outputs only valid JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	}
	req.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("build chat request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("chat request failed: %w", err)
			logrus.WithError(err).Warnf("question client: attempt %d failed", attempt+1)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read chat response: %w", readErr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, string(respBody))
			logrus.Warnf("question client: attempt %d got status %d", attempt+1, resp.StatusCode)
			continue
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("decode chat response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("chat response contained no choices")
		}
		return parsed.Choices[0].Message.Content, nil
	}
	return "", lastErr
}

// formatContext renders fragments the way the grader and generator prompts
// expect them, one block per fragment.
func formatContext(fragments []models.Fragment) string {
	var b strings.Builder
	for i, f := range fragments {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[FRAGMENT %d]\n", i+1)
		fmt.Fprintf(&b, "File: %s\n", f.FileName)
		fmt.Fprintf(&b, "Page: %d\n", f.Page)
		fmt.Fprintf(&b, "Content: %s\n", f.Text)
	}
	return b.String()
}

type generatedPayload struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	SolutionSteps string   `json:"solution_steps"`
}

// GenerateQuestion implements Service. The question type is picked at random
// from the allowed set; the returned question cites the fragments it was
// generated from.
func (c *Client) GenerateQuestion(ctx context.Context, fragments []models.Fragment, allowed []models.QuestionType, difficulty models.Difficulty) (*models.Question, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no content fragments available")
	}
	if len(allowed) == 0 {
		allowed = []models.QuestionType{models.QuestionShort}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	qtype := allowed[rng.Intn(len(allowed))]

	prompt := fmt.Sprintf(generatePrompt, qtype, difficulty, formatContext(fragments))
	content, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("generate question: malformed model output: %w", err)
	}
	if payload.QuestionText == "" || payload.CorrectAnswer == "" {
		return nil, fmt.Errorf("generate question: model output missing required fields")
	}
	if qtype == models.QuestionMCQ && len(payload.Options) != 4 {
		return nil, fmt.Errorf("generate question: mcq requires exactly 4 options, got %d", len(payload.Options))
	}
	if qtype != models.QuestionMCQ {
		payload.Options = nil
	}

	return &models.Question{
		ID:            uuid.NewString(),
		Text:          payload.QuestionText,
		Type:          qtype,
		Options:       payload.Options,
		CorrectAnswer: payload.CorrectAnswer,
		Solution:      payload.SolutionSteps,
		Sources:       fragments,
	}, nil
}

type verdictPayload struct {
	Correct     bool    `json:"correct"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// GradeAnswer implements Service for the non-mcq question types.
func (c *Client) GradeAnswer(ctx context.Context, fragments []models.Fragment, q *models.Question, submitted string) (*models.Verdict, error) {
	prompt := fmt.Sprintf(gradePrompt, formatContext(fragments), q.Solution, q.CorrectAnswer, submitted)
	content, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("grade answer: %w", err)
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("grade answer: malformed model output: %w", err)
	}
	return &models.Verdict{
		Correct:     payload.Correct,
		Confidence:  payload.Confidence,
		Explanation: payload.Explanation,
		Citations:   fragments,
	}, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
