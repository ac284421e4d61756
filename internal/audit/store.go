package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/flowpaste/internal/config"
	"go.uber.org/zap"
)

const maxRecent = 500

const createTable = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id          BIGSERIAL PRIMARY KEY,
		kind        TEXT NOT NULL,
		request_id  TEXT NOT NULL DEFAULT '',
		counts      JSONB NOT NULL DEFAULT '{}',
		rule_id     TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL,
		duration_ms DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Store writes audit events to PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type row struct {
	ID         int64     `db:"id"`
	Kind       string    `db:"kind"`
	RequestID  string    `db:"request_id"`
	Counts     []byte    `db:"counts"`
	RuleID     string    `db:"rule_id"`
	Outcome    string    `db:"outcome"`
	DurationMS float64   `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

// New returns a Store when auditing is enabled and a Nop otherwise
func New(cfg config.AuditConfig, logger *zap.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewStore(cfg, logger)
}

// NewStore connects to the database and creates the events table
func NewStore(cfg config.AuditConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := NewStoreWithDB(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

// NewStoreWithDB wraps an open database handle
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Init creates the events table if it does not exist
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Record inserts one event
func (s *Store) Record(ctx context.Context, event Event) error {
	counts := event.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal counts: %w", err)
	}

	query := `
		INSERT INTO audit_events (kind, request_id, counts, rule_id, outcome, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.ExecContext(ctx, query,
		string(event.Kind),
		event.RequestID,
		string(data),
		event.RuleID,
		event.Outcome,
		durationMS(event.Duration),
	)
	if err != nil {
		s.logger.Error("Failed to record audit event",
			zap.Error(err),
			zap.String("kind", string(event.Kind)))
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}

	query := `
		SELECT id, kind, request_id, counts, rule_id, outcome, duration_ms, created_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT $1`

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		var counts map[string]int
		if len(r.Counts) > 0 {
			if err := json.Unmarshal(r.Counts, &counts); err != nil {
				s.logger.Warn("Skipping audit event with bad counts",
					zap.Int64("id", r.ID), zap.Error(err))
				continue
			}
		}
		entries = append(entries, Entry{
			ID: r.ID,
			Event: Event{
				Kind:      Kind(r.Kind),
				RequestID: r.RequestID,
				Counts:    counts,
				RuleID:    r.RuleID,
				Outcome:   r.Outcome,
				Duration:  time.Duration(r.DurationMS * float64(time.Millisecond)),
			},
			CreatedAt: r.CreatedAt,
		})
	}
	return entries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// maskDatabaseURL hides the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || strings.HasPrefix(userPart[colon:], "://") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
