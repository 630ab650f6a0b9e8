// internal/handlers/api_server_test.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/clashcourse/clashcourse/internal/auth"
	"github.com/clashcourse/clashcourse/internal/content"
	"github.com/clashcourse/clashcourse/internal/match"
	"github.com/clashcourse/clashcourse/internal/question"
)

// newTestServer builds a Server on in-memory stores with ephemeral auth keys.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	auth.Init()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Server{
		Matches:   match.NewStore(),
		Courses:   content.NewMemoryStore(),
		Questions: question.NewStaticService(),
		Clock:     clockwork.NewFakeClock(),
		Logger:    logger,
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// doAuthedRequest posts a body with a bearer token attached.
func doAuthedRequest(t *testing.T, h http.Handler, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, w, &body)
	return body["error"]
}

// createCourse stores a small course through the API and returns its id.
func createCourse(t *testing.T, h http.Handler) string {
	t.Helper()
	body := `{
		"name": "Intro to Biology",
		"files": ["bio.pdf"],
		"fragments": [
			{"doc_id": "bio", "file_name": "bio.pdf", "page": 1, "text": "Cells are the basic unit of life."},
			{"doc_id": "bio", "file_name": "bio.pdf", "page": 2, "text": "Mitochondria produce most of the cell's energy."}
		]
	}`
	w := doRequest(t, h, "POST", "/api/courses", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating course, got %d: %s", w.Code, w.Body.String())
	}
	var resp createCourseResponse
	decodeBody(t, w, &resp)
	if resp.CourseID == "" {
		t.Fatal("course response has no id")
	}
	return resp.CourseID
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s.Routes(), "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["status"] != "healthy" || body["version"] != Version {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct{ header, want string }{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"Bearer   padded  ", "padded"},
		{"bearer lowercase", ""},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := extractBearerToken(c.header); got != c.want {
			t.Fatalf("extractBearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
