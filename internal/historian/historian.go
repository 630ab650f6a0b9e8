// internal/historian/historian.go

// Package historian drains match history records from the Redis queue and
// persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clashcourse/clashcourse/internal/cache"
	"github.com/clashcourse/clashcourse/internal/models"
)

// blpopTimeout bounds each queue poll so context cancellation is noticed.
const blpopTimeout = 5 * time.Second

// InsertFunc writes one drained batch. The production binary wires
// database.InsertHistoryBatch here.
type InsertFunc func(ctx context.Context, rounds []models.RoundRecord, matches []models.MatchRecord) error

// Service reads kind-tagged history records from the Redis queue,
// accumulates them, and flushes either when the batch is full or on a
// timed interval, whichever comes first.
type Service struct {
	redisClient *redis.Client
	queueName   string
	batchSize   int
	flushDelay  time.Duration
	insert      InsertFunc

	batchMu    sync.Mutex
	roundBatch []models.RoundRecord
	matchBatch []models.MatchRecord

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewService constructs a Service from environment variables or defaults:
// HISTORIAN_BATCH_SIZE (20), HISTORIAN_FLUSH_MS (500), HISTORIAN_QUEUE_NAME.
func NewService(redisClient *redis.Client, insert InsertFunc) *Service {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	queueName := getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		redisClient: redisClient,
		queueName:   queueName,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		insert:      insert,
		roundBatch:  make([]models.RoundRecord, 0, batchSize),
		matchBatch:  make([]models.MatchRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run blocks until Stop is called, then drains whatever is left in the
// current batch before returning.
func (s *Service) Run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop()
	}()

	log.Println("clashcourse-historian service started.")
	<-s.ctx.Done()
	wg.Wait()
	s.Flush()
	log.Println("clashcourse-historian shut down.")
}

// Stop asks Run to wind down. Run returns once the final flush completes.
func (s *Service) Stop() {
	s.cancelFn()
}

// readLoop continuously pops queue entries with BLPop and triggers timed
// flushes. A BLPop wait bounds each iteration, so cancellation is picked up
// within one poll interval.
func (s *Service) readLoop() {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.Flush()

		default:
			res, err := s.redisClient.BLPop(s.ctx, blpopTimeout, s.queueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}
			// res[0] is the queue name and res[1] the payload.
			s.ingest([]byte(res[1]))
		}
	}
}

// ingest decodes one queue payload by its kind tag and appends it to the
// batch. Malformed entries are logged and dropped; they would never become
// insertable rows.
func (s *Service) ingest(payload []byte) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		log.Printf("invalid history record: %v\n", err)
		return
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	switch probe.Kind {
	case models.HistoryKindRound:
		var rec models.RoundRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			log.Printf("invalid round record: %v\n", err)
			return
		}
		s.roundBatch = append(s.roundBatch, rec)
	case models.HistoryKindMatch:
		var rec models.MatchRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			log.Printf("invalid match record: %v\n", err)
			return
		}
		s.matchBatch = append(s.matchBatch, rec)
	default:
		log.Printf("unknown history record kind %q, skipping\n", probe.Kind)
		return
	}

	if len(s.roundBatch)+len(s.matchBatch) >= s.batchSize {
		s.flushLocked()
	}
}

// Flush writes and clears the current batch.
func (s *Service) Flush() {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked()
}

// flushLocked performs the batch insert. Uses a fresh context so the final
// drain still works after Stop cancels the service context.
// Assumes batchMu is held.
func (s *Service) flushLocked() {
	if len(s.roundBatch) == 0 && len(s.matchBatch) == 0 {
		return
	}
	rounds := make([]models.RoundRecord, len(s.roundBatch))
	copy(rounds, s.roundBatch)
	matches := make([]models.MatchRecord, len(s.matchBatch))
	copy(matches, s.matchBatch)
	s.roundBatch = s.roundBatch[:0]
	s.matchBatch = s.matchBatch[:0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.insert(ctx, rounds, matches); err != nil {
		log.Printf("[ERROR] flush history batch: %v\n", err)
		return
	}
	log.Printf("Flushed %d history records to DB.\n", len(rounds)+len(matches))
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
