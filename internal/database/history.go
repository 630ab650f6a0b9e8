// internal/database/history.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clashcourse/clashcourse/internal/models"
)

const roundHistoryDDL = `
CREATE TABLE IF NOT EXISTS round_history (
	id BIGSERIAL PRIMARY KEY,
	match_id TEXT NOT NULL,
	round_number INT NOT NULL,
	question_id TEXT NOT NULL,
	question_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	winner TEXT NOT NULL DEFAULT '',
	damage INT NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
)`

const matchHistoryDDL = `
CREATE TABLE IF NOT EXISTS match_history (
	match_id TEXT PRIMARY KEY,
	course_id TEXT NOT NULL,
	player_a TEXT NOT NULL,
	player_b TEXT NOT NULL,
	winner TEXT NOT NULL DEFAULT '',
	final_hp_a INT NOT NULL,
	final_hp_b INT NOT NULL,
	rounds_played INT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

// EnsureHistorySchema creates the history tables if they do not exist yet.
func EnsureHistorySchema(ctx context.Context) error {
	for _, ddl := range []string{roundHistoryDDL, matchHistoryDDL} {
		if _, err := DB.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

// InsertHistoryBatch writes one drained queue batch in a single transaction.
// Match records are keyed by match id, so a redelivered record is a no-op.
func InsertHistoryBatch(ctx context.Context, rounds []models.RoundRecord, matches []models.MatchRecord) error {
	if len(rounds) == 0 && len(matches) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insertRound := `
			INSERT INTO round_history
				(match_id, round_number, question_id, question_type, outcome, winner, damage, elapsed_ms, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9 / 1000.0))
		`
		for _, r := range rounds {
			if _, e := tx.Exec(ctx, insertRound,
				r.MatchID, r.RoundNumber, r.QuestionID, r.QuestionType,
				r.Outcome, r.Winner, r.Damage, r.ElapsedMs, r.OccurredAt); e != nil {
				return e
			}
		}

		insertMatch := `
			INSERT INTO match_history
				(match_id, course_id, player_a, player_b, winner, final_hp_a, final_hp_b, rounds_played, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9 / 1000.0), to_timestamp($10 / 1000.0))
			ON CONFLICT (match_id) DO NOTHING
		`
		for _, mr := range matches {
			if _, e := tx.Exec(ctx, insertMatch,
				mr.MatchID, mr.CourseID, mr.PlayerA, mr.PlayerB, mr.Winner,
				mr.FinalHPA, mr.FinalHPB, mr.RoundsPlayed, mr.StartedAt, mr.FinishedAt); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert history batch: %w", err)
	}
	return nil
}
