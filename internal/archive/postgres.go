package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS duel_matches (
    match_id    TEXT PRIMARY KEY,
    room_id     TEXT NOT NULL,
    player_a    TEXT NOT NULL,
    player_b    TEXT NOT NULL,
    winner      TEXT NOT NULL DEFAULT '',
    reason      TEXT NOT NULL,
    seed        BIGINT NOT NULL,
    initial     JSONB NOT NULL,
    commits     JSONB NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS duel_matches_player_a ON duel_matches (player_a, finished_at DESC);
CREATE INDEX IF NOT EXISTS duel_matches_player_b ON duel_matches (player_b, finished_at DESC);`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

// Migrate creates the table when it is missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveMatch upserts rec; saving the same match twice keeps the latest copy.
func (r *PostgresRepository) SaveMatch(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	initialRaw, err := json.Marshal(rec.Initial)
	if err != nil {
		return err
	}
	commitsRaw, err := json.Marshal(rec.Commits)
	if err != nil {
		return err
	}

	q := `INSERT INTO duel_matches (
        match_id, room_id, player_a, player_b, winner, reason, seed,
        initial, commits, started_at, finished_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (match_id) DO UPDATE SET
        room_id=EXCLUDED.room_id,
        player_a=EXCLUDED.player_a,
        player_b=EXCLUDED.player_b,
        winner=EXCLUDED.winner,
        reason=EXCLUDED.reason,
        seed=EXCLUDED.seed,
        initial=EXCLUDED.initial,
        commits=EXCLUDED.commits,
        started_at=EXCLUDED.started_at,
        finished_at=EXCLUDED.finished_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		rec.MatchID, rec.RoomID,
		rec.Players[0], rec.Players[1],
		rec.Winner, rec.Reason, int64(rec.Seed),
		string(initialRaw), string(commitsRaw),
		rec.StartedAt, rec.FinishedAt, rec.Duration().Milliseconds(),
	)
	return err
}

const selectColumns = `match_id, room_id, player_a, player_b, winner, reason, seed, initial, commits, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                    Record
		seed                   int64
		initialRaw, commitsRaw []byte
	)
	if err := row.Scan(&rec.MatchID, &rec.RoomID, &rec.Players[0], &rec.Players[1], &rec.Winner, &rec.Reason,
		&seed, &initialRaw, &commitsRaw, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	rec.Seed = uint64(seed)
	if err := json.Unmarshal(initialRaw, &rec.Initial); err != nil {
		return nil, fmt.Errorf("decode initial: %w", err)
	}
	if err := json.Unmarshal(commitsRaw, &rec.Commits); err != nil {
		return nil, fmt.Errorf("decode commits: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) GetMatch(ctx context.Context, matchID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM duel_matches WHERE match_id = $1`, matchID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM duel_matches
        WHERE player_a = $1 OR player_b = $1
        ORDER BY finished_at DESC LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
