// internal/handlers/match_test.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/clashcourse/clashcourse/internal/auth"
	"github.com/clashcourse/clashcourse/internal/match"
)

// createMatch seats the first player through the API.
func createMatch(t *testing.T, h http.Handler, courseID, player, passcode string) createMatchResponse {
	t.Helper()
	body := fmt.Sprintf(`{"course_id": %q, "player_name": %q, "passcode": %q}`, courseID, player, passcode)
	w := doRequest(t, h, "POST", "/api/matches", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating match, got %d: %s", w.Code, w.Body.String())
	}
	var resp createMatchResponse
	decodeBody(t, w, &resp)
	return resp
}

func joinMatch(t *testing.T, h http.Handler, matchID, player, passcode string) (*http.Response, joinMatchResponse, string) {
	t.Helper()
	body := fmt.Sprintf(`{"match_id": %q, "player_name": %q, "passcode": %q}`, matchID, player, passcode)
	w := doRequest(t, h, "POST", "/api/matches/join", body)
	var resp joinMatchResponse
	if w.Code == http.StatusOK {
		decodeBody(t, w, &resp)
		return w.Result(), resp, ""
	}
	return w.Result(), resp, errorMessage(t, w)
}

func TestCreateMatchValidation(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	courseID := createCourse(t, h)

	cases := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"malformed json", `{"player_name":`, http.StatusBadRequest, "invalid payload"},
		{"missing player name", fmt.Sprintf(`{"course_id": %q}`, courseID), http.StatusBadRequest, "player_name is required"},
		{"unknown course", `{"course_id": "nope", "player_name": "alice"}`, http.StatusNotFound, "course not found"},
		{"unknown question type", fmt.Sprintf(`{"course_id": %q, "player_name": "alice", "question_types": ["riddle"]}`, courseID), http.StatusBadRequest, "unknown question type: riddle"},
		{"unknown difficulty", fmt.Sprintf(`{"course_id": %q, "player_name": "alice", "difficulty": "impossible"}`, courseID), http.StatusBadRequest, "unknown difficulty: impossible"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := doRequest(t, h, "POST", "/api/matches", c.body)
			if w.Code != c.wantStatus {
				t.Fatalf("expected %d, got %d: %s", c.wantStatus, w.Code, w.Body.String())
			}
			if got := errorMessage(t, w); got != c.wantError {
				t.Fatalf("expected error %q, got %q", c.wantError, got)
			}
		})
	}
}

func TestCreateAndJoinMatch(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	courseID := createCourse(t, h)

	created := createMatch(t, h, courseID, "alice", "")
	if created.MatchID == "" {
		t.Fatal("match response has no id")
	}
	if created.WebsocketURL != "/ws/"+created.MatchID {
		t.Fatalf("unexpected websocket url %q", created.WebsocketURL)
	}
	if !created.WaitingForOpponent {
		t.Fatal("expected waiting_for_opponent to be true")
	}
	player, matchID, err := auth.AuthenticateSeatToken(created.Token)
	if err != nil {
		t.Fatalf("creator token does not authenticate: %v", err)
	}
	if player != "alice" || matchID != created.MatchID {
		t.Fatalf("token claims wrong seat: %s in %s", player, matchID)
	}

	// Duplicate name is rejected while the seat is still free.
	res, _, msg := joinMatch(t, h, created.MatchID, "alice", "")
	if res.StatusCode != http.StatusBadRequest || msg != "player name already taken in this match" {
		t.Fatalf("expected duplicate name rejection, got %d %q", res.StatusCode, msg)
	}

	res, joined, _ := joinMatch(t, h, created.MatchID, "bob", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 joining match, got %d", res.StatusCode)
	}
	if !joined.Success || joined.MatchID != created.MatchID || joined.Token == "" {
		t.Fatalf("unexpected join response: %+v", joined)
	}

	res, _, msg = joinMatch(t, h, created.MatchID, "carol", "")
	if res.StatusCode != http.StatusBadRequest || msg != "match already has two players" {
		t.Fatalf("expected full match rejection, got %d %q", res.StatusCode, msg)
	}
}

func TestJoinMatchErrors(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	res, _, msg := joinMatch(t, h, "missing", "bob", "")
	if res.StatusCode != http.StatusNotFound || msg != "match not found" {
		t.Fatalf("expected 404 for unknown match, got %d %q", res.StatusCode, msg)
	}

	w := doRequest(t, h, "POST", "/api/matches/join", `{"match_id": "missing"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing player name, got %d", w.Code)
	}
	if got := errorMessage(t, w); got != "player_name is required" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestJoinMatchPasscode(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	courseID := createCourse(t, h)

	created := createMatch(t, h, courseID, "alice", "hunter2")

	res, _, msg := joinMatch(t, h, created.MatchID, "bob", "letmein")
	if res.StatusCode != http.StatusForbidden || msg != "invalid passcode" {
		t.Fatalf("expected 403 for wrong passcode, got %d %q", res.StatusCode, msg)
	}

	res, _, msg = joinMatch(t, h, created.MatchID, "bob", "")
	if res.StatusCode != http.StatusForbidden || msg != "invalid passcode" {
		t.Fatalf("expected 403 for empty passcode, got %d %q", res.StatusCode, msg)
	}

	res, joined, _ := joinMatch(t, h, created.MatchID, "bob", "hunter2")
	if res.StatusCode != http.StatusOK || !joined.Success {
		t.Fatalf("expected successful join with correct passcode, got %d", res.StatusCode)
	}
}

func TestMatchStatus(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	w := doRequest(t, h, "GET", "/api/matches/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown match, got %d", w.Code)
	}

	courseID := createCourse(t, h)
	created := createMatch(t, h, courseID, "alice", "")

	w = doRequest(t, h, "GET", "/api/matches/"+created.MatchID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var snap match.Snapshot
	decodeBody(t, w, &snap)
	if snap.MatchID != created.MatchID || snap.Status != match.StatusWaiting {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	alice, ok := snap.Players["alice"]
	if !ok || alice.HP != match.MaxHealth || alice.Connected {
		t.Fatalf("unexpected player view: %+v", snap.Players)
	}
	if snap.TimeLimit != match.DefaultTimeLimit || snap.Winner != "" {
		t.Fatalf("unexpected snapshot defaults: %+v", snap)
	}
}

func TestSubmitAnswerAuth(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	courseID := createCourse(t, h)
	created := createMatch(t, h, courseID, "alice", "")
	path := "/api/matches/" + created.MatchID + "/answer"

	w := doRequest(t, h, "POST", path, `{"question_id": "q", "answer": "a"}`)
	if w.Code != http.StatusUnauthorized || errorMessage(t, w) != "missing bearer token" {
		t.Fatalf("expected 401 without a token, got %d: %s", w.Code, w.Body.String())
	}

	w = doAuthedRequest(t, h, path, "garbage", `{"question_id": "q", "answer": "a"}`)
	if w.Code != http.StatusUnauthorized || errorMessage(t, w) != "invalid token" {
		t.Fatalf("expected 401 for a bad token, got %d: %s", w.Code, w.Body.String())
	}

	otherToken, err := auth.CreateSeatToken("alice", "some-other-match")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	w = doAuthedRequest(t, h, path, otherToken, `{"question_id": "q", "answer": "a"}`)
	if w.Code != http.StatusForbidden || errorMessage(t, w) != "token does not match this match" {
		t.Fatalf("expected 403 for a foreign token, got %d: %s", w.Code, w.Body.String())
	}

	ghostToken, err := auth.CreateSeatToken("ghost", "gone")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	w = doAuthedRequest(t, h, "/api/matches/gone/answer", ghostToken, `{"question_id": "q", "answer": "a"}`)
	if w.Code != http.StatusNotFound || errorMessage(t, w) != "match not found" {
		t.Fatalf("expected 404 for a vanished match, got %d: %s", w.Code, w.Body.String())
	}

	w = doAuthedRequest(t, h, path, created.Token, `{"answer":`)
	if w.Code != http.StatusBadRequest || errorMessage(t, w) != "invalid payload" {
		t.Fatalf("expected 400 for a malformed body, got %d: %s", w.Code, w.Body.String())
	}

	// Seated and authenticated, but the match has no round yet.
	w = doAuthedRequest(t, h, path, created.Token, `{"question_id": "q", "answer": "a"}`)
	if w.Code != http.StatusBadRequest || errorMessage(t, w) != "no active round" {
		t.Fatalf("expected 400 before any round, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not seated", match.ErrPlayerNotInMatch, http.StatusForbidden, "player not seated in this match"},
		{"no round", match.ErrNoActiveRound, http.StatusBadRequest, "no active round"},
		{"stale question", match.ErrStaleQuestion, http.StatusBadRequest, "question is no longer current"},
		{"already submitted", match.ErrAlreadySubmitted, http.StatusBadRequest, "already answered correctly this round"},
		{"cooldown", &match.CooldownError{Remaining: 1500 * time.Millisecond}, http.StatusTooManyRequests, "cooldown active, wait 1.5s"},
		{"grader failure", errors.New("model exploded"), http.StatusInternalServerError, "failed to grade answer"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := submitErrorStatus(c.err); got != c.wantStatus {
				t.Fatalf("status = %d, want %d", got, c.wantStatus)
			}
			if got := submitErrorMessage(c.err); got != c.wantMsg {
				t.Fatalf("message = %q, want %q", got, c.wantMsg)
			}
		})
	}
}
