// internal/handlers/api_server.go
package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/clashcourse/clashcourse/internal/content"
	"github.com/clashcourse/clashcourse/internal/match"
	"github.com/clashcourse/clashcourse/internal/middleware"
	"github.com/clashcourse/clashcourse/internal/question"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server bundles the stores and collaborators the REST and websocket
// handlers need. One instance serves the whole process.
type Server struct {
	Matches   *match.Store
	Courses   content.Store
	Questions question.Service
	Clock     clockwork.Clock
	Logger    *logrus.Logger
}

// NewServer constructs a Server with a real clock. Callers supply the
// stores and the question service implementation.
func NewServer(matches *match.Store, courses content.Store, questions question.Service, logger *logrus.Logger) *Server {
	return &Server{
		Matches:   matches,
		Courses:   courses,
		Questions: questions,
		Clock:     clockwork.NewRealClock(),
		Logger:    logger,
	}
}

// Routes builds the full HTTP handler. The REST routes are wrapped in access
// logging and CORS. The websocket route sits outside that chain: the upgrade
// hijacks the connection, and the gateway logs attach and detach itself.
func (s *Server) Routes() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/health", s.HealthHandler)

	api.HandleFunc("POST /api/courses", s.CreateCourseHandler)
	api.HandleFunc("GET /api/courses", s.ListCoursesHandler)

	api.HandleFunc("POST /api/matches", s.CreateMatchHandler)
	api.HandleFunc("POST /api/matches/join", s.JoinMatchHandler)
	api.HandleFunc("GET /api/matches/{id}", s.MatchStatusHandler)
	api.HandleFunc("POST /api/matches/{id}/answer", s.SubmitAnswerHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	})

	root := http.NewServeMux()
	root.Handle("/api/", c.Handler(middleware.LogMiddleware(s.Logger)(api)))
	root.HandleFunc("GET /ws/{match_id}", s.MatchWSHandler)
	return root
}

// HealthHandler reports service liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
