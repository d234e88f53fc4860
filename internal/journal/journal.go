package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"skymatch/pkg/skymatch"
)

// Store wraps SQLite-backed persistence of identification outcomes.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes from concurrent requests serialized.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identifications (
            id TEXT PRIMARY KEY,
            source TEXT NOT NULL,
            state TEXT NOT NULL,
            winner TEXT,
            points INTEGER NOT NULL DEFAULT 0,
            triangles INTEGER NOT NULL DEFAULT 0,
            voting_triangles INTEGER NOT NULL DEFAULT 0,
            votes_json TEXT,
            status TEXT,
            error_message TEXT,
            duration_ms INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_identifications_created_at ON identifications(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_identifications_winner ON identifications(winner);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Record is one persisted identification.
type Record struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	State           string          `json:"state"`
	Winner          string          `json:"winner,omitempty"`
	Points          int             `json:"points"`
	Triangles       int             `json:"triangles"`
	VotingTriangles int             `json:"voting_triangles"`
	Votes           []skymatch.Vote `json:"votes,omitempty"`
	Status          string          `json:"status,omitempty"`
	Error           string          `json:"error,omitempty"`
	Duration        time.Duration   `json:"duration_ns"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StateFailed marks identifications that ended in an error before matching.
const StateFailed = "failed"

// NewRecord summarizes an identification. id may be nil when err aborted
// the run; an empty requestID gets a fresh UUID.
func NewRecord(requestID, source string, id *skymatch.Identification, err error) Record {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	rec := Record{ID: requestID, Source: source, State: StateFailed, CreatedAt: time.Now().UTC()}
	if id != nil {
		rec.Duration = id.ExtractDuration + id.MatchDuration
		if id.Extraction != nil {
			rec.Points = len(id.Extraction.Points)
		}
		if r := id.Result; r != nil {
			rec.State = r.State.String()
			rec.Winner = r.Winner
			rec.Triangles = len(r.Triangles)
			rec.VotingTriangles = len(r.VotingTriangles)
			rec.Votes = r.Votes
			rec.Status = r.Status
		}
		if err == nil {
			err = id.Err
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// Add persists rec.
func (s *Store) Add(rec Record) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	var votesJSON sql.NullString
	if len(rec.Votes) > 0 {
		b, err := json.Marshal(rec.Votes)
		if err != nil {
			return err
		}
		votesJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.DB.Exec(`INSERT INTO identifications (id, source, state, winner, points, triangles, voting_triangles, votes_json, status, error_message, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.Source, rec.State, nullString(rec.Winner), rec.Points, rec.Triangles, rec.VotingTriangles,
		votesJSON, nullString(rec.Status), nullString(rec.Error), rec.Duration.Milliseconds(), rec.CreatedAt.UTC())
	return err
}

// Recent returns the latest identifications up to limit, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, source, state, winner, points, triangles, voting_triangles, votes_json, status, error_message, duration_ms, created_at FROM identifications ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Get fetches one identification by id. It returns sql.ErrNoRows when the
// id is unknown.
func (s *Store) Get(id string) (Record, error) {
	if s == nil {
		return Record{}, errors.New("store not initialized")
	}
	row := s.DB.QueryRow(`SELECT id, source, state, winner, points, triangles, voting_triangles, votes_json, status, error_message, duration_ms, created_at FROM identifications WHERE id=?;`, id)
	return scanRecord(row)
}

// WinnerCounts returns how often each constellation has been identified.
func (s *Store) WinnerCounts() (map[string]int, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT winner, COUNT(*) FROM identifications WHERE winner IS NOT NULL GROUP BY winner;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var rec Record
	var winner, votesJSON, status, errorMsg sql.NullString
	var durationMS int64
	if err := sc.Scan(&rec.ID, &rec.Source, &rec.State, &winner, &rec.Points, &rec.Triangles, &rec.VotingTriangles,
		&votesJSON, &status, &errorMsg, &durationMS, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.Winner = winner.String
	rec.Status = status.String
	rec.Error = errorMsg.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if votesJSON.Valid {
		if err := json.Unmarshal([]byte(votesJSON.String), &rec.Votes); err != nil {
			return Record{}, fmt.Errorf("decode votes of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
