// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/clashcourse/clashcourse/internal/auth"
	"github.com/clashcourse/clashcourse/internal/cache"
	"github.com/clashcourse/clashcourse/internal/content"
	"github.com/clashcourse/clashcourse/internal/handlers"
	"github.com/clashcourse/clashcourse/internal/match"
	"github.com/clashcourse/clashcourse/internal/question"
)

func main() {
	auth.Init()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Redis backs the course store and the history queue. The service still
	// runs without it: courses stay in memory and no history is recorded.
	var courses content.Store
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, falling back to in-memory course store: %v", err)
		courses = content.NewMemoryStore()
	} else {
		courses = content.NewRedisStore(cache.Rdb, 0)
	}

	var questions question.Service
	if os.Getenv("DEEPSEEK_API_KEY") != "" {
		questions = question.NewClient()
	} else {
		logger.Warn("DEEPSEEK_API_KEY not set, serving built-in static questions")
		questions = question.NewStaticService()
	}

	srv := handlers.NewServer(match.NewStore(), courses, questions, logger)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("clashcourse server running on %s", addr)
	if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
