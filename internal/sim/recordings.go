package sim

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recording status values.
const (
	RecordingStatusPending   = "pending"
	RecordingStatusUploading = "uploading"
	RecordingStatusUploaded  = "uploaded"
	RecordingStatusFailed    = "failed"
)

// Recording is a finished take registered for upload.
type Recording struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	SourceURL string    `json:"source_url"`
	S3Key     string    `json:"s3_key,omitempty"`
	S3URL     string    `json:"s3_url,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordingRepository handles recording persistence.
type RecordingRepository struct {
	pool *pgxpool.Pool
}

// NewRecordingRepository creates a recordings repository.
func NewRecordingRepository(pool *pgxpool.Pool) *RecordingRepository {
	return &RecordingRepository{pool: pool}
}

// Create inserts a new recording in pending state.
func (r *RecordingRepository) Create(ctx context.Context, rec *Recording) error {
	const q = `INSERT INTO recordings (id, session_id, source_url, status)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	if rec.Status == "" {
		rec.Status = RecordingStatusPending
	}
	return r.pool.QueryRow(ctx, q, rec.SessionID, rec.SourceURL, rec.Status).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording by ID.
func (r *RecordingRepository) GetByID(ctx context.Context, id uuid.UUID) (*Recording, error) {
	const q = `SELECT id, session_id, source_url, COALESCE(s3_key,''), COALESCE(s3_url,''), COALESCE(size_bytes,0), status, created_at, updated_at
		FROM recordings WHERE id = $1`
	var rec Recording
	err := r.pool.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.SessionID, &rec.SourceURL, &rec.S3Key, &rec.S3URL, &rec.SizeBytes, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListBySession returns all recordings for a session, newest first.
func (r *RecordingRepository) ListBySession(ctx context.Context, sessionID string) ([]Recording, error) {
	const q = `SELECT id, session_id, source_url, COALESCE(s3_key,''), COALESCE(s3_url,''), COALESCE(size_bytes,0), status, created_at, updated_at
		FROM recordings WHERE session_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Recording
	for rows.Next() {
		var rec Recording
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.SourceURL, &rec.S3Key, &rec.S3URL, &rec.SizeBytes, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// UpdateStatus sets recording status.
func (r *RecordingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// UpdateUploaded records the S3 location after a successful upload.
func (r *RecordingRepository) UpdateUploaded(ctx context.Context, id uuid.UUID, s3Key, s3URL string, sizeBytes int64) error {
	const q = `UPDATE recordings SET s3_key = $1, s3_url = $2, size_bytes = $3, status = $4, updated_at = NOW() WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, s3Key, s3URL, sizeBytes, RecordingStatusUploaded, id)
	return err
}
