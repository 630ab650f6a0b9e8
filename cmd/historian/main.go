// cmd/historian/main.go is the asynchronous historian worker: it pops match
// history records from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/clashcourse/clashcourse/internal/database"
	"github.com/clashcourse/clashcourse/internal/historian"
)

func main() {
	database.ConnectDB()
	if err := database.EnsureHistorySchema(context.Background()); err != nil {
		log.Fatalf("ensure history schema: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	svc := historian.NewService(rdb, database.InsertHistoryBatch)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		svc.Stop()
	}()

	// Run blocks until Stop, then drains the in-flight batch.
	svc.Run()
	log.Println("Historian shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
