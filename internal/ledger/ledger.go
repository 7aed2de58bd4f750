// Package ledger keeps a sqlite record of every finished sell cycle so
// earnings survive restarts.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zlkm/farmbot/internal/event"
)

type Cycle struct {
	ID          string
	Agent       string
	Item        string
	ItemsSold   int
	Earned      float64
	EarnedKnown bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Totals sums the cycles of one agent, or of the whole fleet. Earned only
// includes cycles whose earnings were known.
type Totals struct {
	Cycles        int
	ItemsSold     int
	Earned        float64
	UnknownEarned int
	LastSellAt    time.Time
}

type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(path string, logger *slog.Logger) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sell_cycles (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		item TEXT NOT NULL,
		items_sold INTEGER NOT NULL,
		earned REAL,
		earned_known INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sell_cycles_agent ON sell_cycles(agent, finished_at);
	`
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record stores c. Recording the same cycle twice keeps the first row.
func (l *Ledger) Record(ctx context.Context, c Cycle) error {
	query := `
	INSERT INTO sell_cycles (id, agent, item, items_sold, earned, earned_known, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

	var earned any
	if c.EarnedKnown {
		earned = c.Earned
	}
	known := 0
	if c.EarnedKnown {
		known = 1
	}

	_, err := l.db.ExecContext(ctx, query,
		c.ID, c.Agent, c.Item, c.ItemsSold, earned, known,
		c.StartedAt.UnixMilli(), c.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record sell cycle %s: %w", c.ID, err)
	}
	return nil
}

// Totals sums the recorded cycles of agent. An empty agent sums them all.
func (l *Ledger) Totals(ctx context.Context, agent string) (Totals, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(items_sold), 0),
		       COALESCE(SUM(CASE WHEN earned_known = 1 THEN earned ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN earned_known = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(finished_at), 0)
		FROM sell_cycles
		WHERE ? = '' OR agent = ?`

	var t Totals
	var last int64
	err := l.db.QueryRowContext(ctx, query, agent, agent).Scan(&t.Cycles, &t.ItemsSold, &t.Earned, &t.UnknownEarned, &last)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}
	if last > 0 {
		t.LastSellAt = time.UnixMilli(last)
	}
	return t, nil
}

// Recent returns up to limit cycles of agent, newest first.
func (l *Ledger) Recent(ctx context.Context, agent string, limit int) ([]Cycle, error) {
	query := `
		SELECT id, agent, item, items_sold, earned, earned_known, started_at, finished_at
		FROM sell_cycles
		WHERE ? = '' OR agent = ?
		ORDER BY finished_at DESC
		LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, agent, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		var earned sql.NullFloat64
		var known int
		var started, finished int64
		if err := rows.Scan(&c.ID, &c.Agent, &c.Item, &c.ItemsSold, &earned, &known, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan sell cycle: %w", err)
		}
		c.Earned = earned.Float64
		c.EarnedKnown = known == 1
		c.StartedAt = time.UnixMilli(started)
		c.FinishedAt = time.UnixMilli(finished)
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// Handle records SellCompleted events. Other events are ignored.
func (l *Ledger) Handle(ctx context.Context, e event.Event) error {
	evt, ok := e.(event.SellCompletedEvent)
	if !ok {
		return nil
	}
	l.logger.Debug("Recording sell cycle", slog.String("agent", evt.Agent()), slog.String("cycle", evt.CycleID))
	return l.Record(ctx, Cycle{
		ID:          evt.CycleID,
		Agent:       evt.Agent(),
		Item:        evt.Item,
		ItemsSold:   evt.ItemsSold,
		Earned:      evt.Earned,
		EarnedKnown: evt.EarnedKnown,
		StartedAt:   evt.StartedAt,
		FinishedAt:  evt.FinishedAt,
	})
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
