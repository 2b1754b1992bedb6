package sim

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRow is one coaching session as stored by the simulator.
type SessionRow struct {
	SessionID      string     `json:"session_id"`
	PatternID      *string    `json:"pattern_id,omitempty"`
	OutputMode     string     `json:"output_mode"`
	Persona        string     `json:"persona"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	FramesReceived int64      `json:"frames_received"`
	AvgLatencyMS   float64    `json:"avg_latency_ms"`
}

// SessionRepository handles coaching_sessions.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// LogStart inserts a row when a coaching client connects.
func (r *SessionRepository) LogStart(ctx context.Context, sessionID, outputMode, persona string, patternID *string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO coaching_sessions (session_id, pattern_id, output_mode, persona, started_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, patternID, outputMode, persona)
	return err
}

// LogEnd closes the session row and records frame statistics.
func (r *SessionRepository) LogEnd(ctx context.Context, sessionID string, framesReceived int64, avgLatencyMS float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE coaching_sessions
		 SET ended_at = NOW(), frames_received = $2, avg_latency_ms = $3
		 WHERE session_id = $1 AND ended_at IS NULL`,
		sessionID, framesReceived, avgLatencyMS)
	return err
}

// GetBySessionID returns one session row.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*SessionRow, error) {
	const q = `SELECT session_id, pattern_id, output_mode, persona, started_at, ended_at, frames_received, avg_latency_ms
	           FROM coaching_sessions WHERE session_id = $1`
	var s SessionRow
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(
		&s.SessionID, &s.PatternID, &s.OutputMode, &s.Persona,
		&s.StartedAt, &s.EndedAt, &s.FramesReceived, &s.AvgLatencyMS)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRecent returns the most recently started sessions.
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]SessionRow, error) {
	const q = `SELECT session_id, pattern_id, output_mode, persona, started_at, ended_at, frames_received, avg_latency_ms
	           FROM coaching_sessions ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.SessionID, &s.PatternID, &s.OutputMode, &s.Persona,
			&s.StartedAt, &s.EndedAt, &s.FramesReceived, &s.AvgLatencyMS); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
