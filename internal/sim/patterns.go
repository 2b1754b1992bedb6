// Package sim implements the coaching backend simulator: the live WebSocket
// endpoint, the outlier/pattern API, session logging, and recording intake.
// It speaks the same wire protocol the companion core consumes, making it the
// on-desk stand-in for the production coaching service.
package sim

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPatternNotFound is returned when a pattern id has no coaching data.
var ErrPatternNotFound = errors.New("pattern not found")

// PatternSource serves outlier item detail documents (director pack, legacy
// analysis, shooting guide) by pattern id.
type PatternSource interface {
	Get(ctx context.Context, patternID string) (json.RawMessage, error)
}

// PGPatternStore serves patterns from Postgres.
type PGPatternStore struct {
	pool *pgxpool.Pool
}

// NewPGPatternStore creates a Postgres-backed pattern source.
func NewPGPatternStore(pool *pgxpool.Pool) *PGPatternStore {
	return &PGPatternStore{pool: pool}
}

// Get assembles the outlier item document from the pattern row.
func (s *PGPatternStore) Get(ctx context.Context, patternID string) (json.RawMessage, error) {
	const q = `SELECT title, director_pack, analysis, shooting_guide FROM patterns WHERE id = $1`
	var (
		title         string
		directorPack  []byte
		analysis      []byte
		shootingGuide []byte
	)
	err := s.pool.QueryRow(ctx, q, patternID).Scan(&title, &directorPack, &analysis, &shootingGuide)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pattern: %w", err)
	}

	doc := map[string]json.RawMessage{
		"title": mustJSON(title),
	}
	if len(directorPack) > 0 {
		doc["director_pack"] = directorPack
	}
	if len(analysis) > 0 {
		doc["analysis"] = analysis
	}
	if len(shootingGuide) > 0 {
		doc["shooting_guide"] = shootingGuide
	}
	return json.Marshal(doc)
}

//go:embed seed/patterns.json
var seedPatterns []byte

// EmbeddedPatternStore serves the seed patterns shipped with the binary.
// Used when no database is configured.
type EmbeddedPatternStore struct {
	patterns map[string]json.RawMessage
}

// NewEmbeddedPatternStore parses the embedded seed file.
func NewEmbeddedPatternStore() (*EmbeddedPatternStore, error) {
	var patterns map[string]json.RawMessage
	if err := json.Unmarshal(seedPatterns, &patterns); err != nil {
		return nil, fmt.Errorf("parse seed patterns: %w", err)
	}
	return &EmbeddedPatternStore{patterns: patterns}, nil
}

// Get returns the seed document for the pattern id.
func (s *EmbeddedPatternStore) Get(_ context.Context, patternID string) (json.RawMessage, error) {
	doc, ok := s.patterns[patternID]
	if !ok {
		return nil, ErrPatternNotFound
	}
	return doc, nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
