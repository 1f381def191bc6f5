// Package persistence provides SQLite-backed checkpoints of simulation
// state. A checkpoint is the latest committed population plus run metadata,
// replaced wholesale on every save — it is a resume point, not a history.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jintrone/abm-mp-example/internal/agents"
)

// DB wraps a SQLite connection for checkpoint storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS population (
		id INTEGER PRIMARY KEY,
		value REAL NOT NULL,
		neighbors_json TEXT NOT NULL,
		delay_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Checkpoint is one saved run state: the committed population and the
// parameters needed to resume it faithfully.
type Checkpoint struct {
	Round         int
	Seed          int64
	SpecialFactor float64
	RunID         string
	SavedAt       time.Time
	Agents        []*agents.Agent
}

// SavePopulation writes all agents to the database (full replace).
func (db *DB) SavePopulation(pop []*agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM population"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO population
		(id, value, neighbors_json, delay_ns)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range pop {
		neighborsJSON, err := json.Marshal(a.Neighbors)
		if err != nil {
			return fmt.Errorf("marshal neighbors of agent %d: %w", a.ID, err)
		}
		if _, err := stmt.Exec(a.ID, a.Value, string(neighborsJSON), int64(a.Delay)); err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

type agentRow struct {
	ID        int64   `db:"id"`
	Value     float64 `db:"value"`
	Neighbors string  `db:"neighbors_json"`
	DelayNS   int64   `db:"delay_ns"`
}

// LoadPopulation reads all agents back in id order.
func (db *DB) LoadPopulation() ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT id, value, neighbors_json, delay_ns FROM population ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select population: %w", err)
	}

	pop := make([]*agents.Agent, 0, len(rows))
	for _, r := range rows {
		var neighbors []agents.AgentID
		if err := json.Unmarshal([]byte(r.Neighbors), &neighbors); err != nil {
			return nil, fmt.Errorf("unmarshal neighbors of agent %d: %w", r.ID, err)
		}
		pop = append(pop, &agents.Agent{
			ID:        agents.AgentID(r.ID),
			Value:     r.Value,
			Neighbors: neighbors,
			Delay:     time.Duration(r.DelayNS),
		})
	}
	return pop, nil
}

// HasState reports whether a checkpoint exists to resume from.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM population"); err != nil {
		return false
	}
	return count > 0
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// SaveCheckpoint performs a full save of the run state.
func (db *DB) SaveCheckpoint(cp *Checkpoint) error {
	slog.Info("saving checkpoint", "agents", len(cp.Agents), "round", cp.Round)

	if err := db.SavePopulation(cp.Agents); err != nil {
		return fmt.Errorf("save population: %w", err)
	}

	meta := map[string]string{
		"round":          strconv.Itoa(cp.Round),
		"seed":           strconv.FormatInt(cp.Seed, 10),
		"special_factor": strconv.FormatFloat(cp.SpecialFactor, 'g', -1, 64),
		"run_id":         cp.RunID,
		"saved_at":       cp.SavedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	slog.Info("checkpoint saved")
	return nil
}

// LoadCheckpoint restores the full run state. Callers should gate on
// HasState first; loading without a saved state is an error.
func (db *DB) LoadCheckpoint() (*Checkpoint, error) {
	pop, err := db.LoadPopulation()
	if err != nil {
		return nil, err
	}
	if len(pop) == 0 {
		return nil, fmt.Errorf("no checkpoint saved")
	}

	cp := &Checkpoint{Agents: pop}

	if v, err := db.GetMeta("round"); err == nil {
		if n, err := strconv.Atoi(v); err == nil {
			cp.Round = n
		}
	}
	if v, err := db.GetMeta("seed"); err == nil {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cp.Seed = n
		}
	}
	if v, err := db.GetMeta("special_factor"); err == nil {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cp.SpecialFactor = f
		}
	}
	if v, err := db.GetMeta("run_id"); err == nil {
		cp.RunID = v
	}
	if v, err := db.GetMeta("saved_at"); err == nil {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			cp.SavedAt = t
		}
	}

	return cp, nil
}
