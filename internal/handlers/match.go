// internal/handlers/match.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/clashcourse/clashcourse/internal/auth"
	"github.com/clashcourse/clashcourse/internal/content"
	"github.com/clashcourse/clashcourse/internal/match"
	"github.com/clashcourse/clashcourse/internal/models"
)

type createMatchRequest struct {
	CourseID         string   `json:"course_id"`
	PlayerName       string   `json:"player_name"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
	QuestionTypes    []string `json:"question_types"`
	Difficulty       string   `json:"difficulty"`
	Passcode         string   `json:"passcode"`
}

type createMatchResponse struct {
	MatchID            string `json:"match_id"`
	WebsocketURL       string `json:"websocket_url"`
	Token              string `json:"token"`
	WaitingForOpponent bool   `json:"waiting_for_opponent"`
}

// CreateMatchHandler creates a match bound to a course and seats the first
// player. The response carries the seat token the client presents on the
// websocket and on the REST answer endpoint.
func (s *Server) CreateMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "player_name is required")
		return
	}

	exists, err := s.Courses.CourseExists(r.Context(), req.CourseID)
	if err != nil {
		s.Logger.Warnf("course lookup %s: %v", req.CourseID, err)
		writeError(w, http.StatusInternalServerError, "failed to look up course")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "course not found")
		return
	}

	types := make([]models.QuestionType, 0, len(req.QuestionTypes))
	for _, t := range req.QuestionTypes {
		qt := models.QuestionType(t)
		if !models.ValidQuestionType(qt) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown question type: %s", t))
			return
		}
		types = append(types, qt)
	}
	difficulty := models.Difficulty(req.Difficulty)
	if req.Difficulty != "" && !models.ValidDifficulty(difficulty) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown difficulty: %s", req.Difficulty))
		return
	}

	fragments, err := s.Courses.Fragments(r.Context(), req.CourseID)
	if err != nil {
		if errors.Is(err, content.ErrCourseNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		s.Logger.Warnf("fetch fragments for course %s: %v", req.CourseID, err)
		writeError(w, http.StatusInternalServerError, "failed to load course content")
		return
	}

	var passcodeHash string
	if req.Passcode != "" {
		passcodeHash, err = auth.CreateHash(req.Passcode, auth.Params)
		if err != nil {
			s.Logger.Errorf("hash passcode: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create match")
			return
		}
	}

	m := match.New(match.Config{
		CourseID:     req.CourseID,
		TimeLimit:    req.TimeLimitSeconds,
		Types:        types,
		Difficulty:   difficulty,
		PasscodeHash: passcodeHash,
		Fragments:    fragments,
		Questions:    s.Questions,
		Clock:        s.Clock,
	})
	if _, err := m.AddPlayer(req.PlayerName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Matches.Add(m)

	token, err := auth.CreateSeatToken(req.PlayerName, m.ID)
	if err != nil {
		s.Logger.Errorf("create seat token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create match")
		return
	}

	s.Logger.WithFields(logrus.Fields{"match_id": m.ID, "player": req.PlayerName}).Info("match created")
	writeJSON(w, http.StatusCreated, createMatchResponse{
		MatchID:            m.ID,
		WebsocketURL:       "/ws/" + m.ID,
		Token:              token,
		WaitingForOpponent: true,
	})
}

type joinMatchRequest struct {
	MatchID    string `json:"match_id"`
	PlayerName string `json:"player_name"`
	Passcode   string `json:"passcode"`
}

type joinMatchResponse struct {
	MatchID string `json:"match_id"`
	Token   string `json:"token"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// JoinMatchHandler seats the second player. The match stays in waiting
// status until both players' websockets are connected.
func (s *Server) JoinMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req joinMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "player_name is required")
		return
	}

	m, ok := s.Matches.Get(req.MatchID)
	if !ok {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	if m.PasscodeHash != "" {
		valid, err := auth.ComparePasscodeAndHash(req.Passcode, m.PasscodeHash)
		if err != nil || !valid {
			writeError(w, http.StatusForbidden, "invalid passcode")
			return
		}
	}

	if _, err := m.AddPlayer(req.PlayerName); err != nil {
		switch {
		case errors.Is(err, match.ErrMatchFull):
			writeError(w, http.StatusBadRequest, "match already has two players")
		case errors.Is(err, match.ErrNameTaken):
			writeError(w, http.StatusBadRequest, "player name already taken in this match")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	token, err := auth.CreateSeatToken(req.PlayerName, m.ID)
	if err != nil {
		s.Logger.Errorf("create seat token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to join match")
		return
	}

	s.Logger.WithFields(logrus.Fields{"match_id": m.ID, "player": req.PlayerName}).Info("player joined match")
	writeJSON(w, http.StatusOK, joinMatchResponse{
		MatchID: m.ID,
		Token:   token,
		Success: true,
		Message: "joined match, connect via websocket to begin",
	})
}

// MatchStatusHandler serves the public snapshot of one match.
func (s *Server) MatchStatusHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := s.Matches.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

type submitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// SubmitAnswerHandler is the REST path into the engine's submission flow.
// It authenticates with the seat token and shares all admission and race
// semantics with the websocket submit_answer frame.
func (s *Server) SubmitAnswerHandler(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	player, tokenMatchID, err := auth.AuthenticateSeatToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if tokenMatchID != matchID {
		writeError(w, http.StatusForbidden, "token does not match this match")
		return
	}

	m, ok := s.Matches.Get(matchID)
	if !ok {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := m.SubmitAnswer(r.Context(), player, req.QuestionID, req.Answer)
	if err != nil {
		s.writeSubmitError(w, m.ID, player, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeSubmitError maps engine submission errors onto HTTP statuses.
func (s *Server) writeSubmitError(w http.ResponseWriter, matchID, player string, err error) {
	status := submitErrorStatus(err)
	if status == http.StatusInternalServerError {
		s.Logger.Warnf("match %s: grading submission from %s: %v", matchID, player, err)
	}
	writeError(w, status, submitErrorMessage(err))
}

// submitErrorMessage renders an engine submission error for clients. Shared
// by the REST answer endpoint and the websocket error frames.
func submitErrorMessage(err error) string {
	var cdErr *match.CooldownError
	switch {
	case errors.Is(err, match.ErrPlayerNotInMatch):
		return "player not seated in this match"
	case errors.Is(err, match.ErrNoActiveRound):
		return "no active round"
	case errors.Is(err, match.ErrStaleQuestion):
		return "question is no longer current"
	case errors.Is(err, match.ErrAlreadySubmitted):
		return "already answered correctly this round"
	case errors.As(err, &cdErr):
		return fmt.Sprintf("cooldown active, wait %.1fs", cdErr.Remaining.Seconds())
	default:
		return "failed to grade answer"
	}
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, match.ErrPlayerNotInMatch):
		return http.StatusForbidden
	case errors.Is(err, match.ErrNoActiveRound),
		errors.Is(err, match.ErrStaleQuestion),
		errors.Is(err, match.ErrAlreadySubmitted):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrInCooldown):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
