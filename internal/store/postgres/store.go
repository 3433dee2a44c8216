package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fsgdecoder/core/pkg/decoder"
)

// SegmentRecord is the JSONB-encoded shape of one [decoder.Segment] as
// persisted in the utterances table's segmentation column.
type SegmentRecord struct {
	Word string `json:"word"`
	SF   int    `json:"sf"`
	EF   int    `json:"ef"`
	AScr int32  `json:"ascr"`
	LScr int32  `json:"lscr"`
}

// UtteranceRecord is one finished utterance as read back from the store.
type UtteranceRecord struct {
	ID         int64
	SessionID  string
	Grammar    string
	Hypothesis string
	Score      int32
	FrameCount int
	Segments   []SegmentRecord
	FinishedAt time.Time
}

// Store is a PostgreSQL-backed persistence layer for finished decoder
// utterances. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure the utterances table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveUtterance persists one finished utterance: the selected grammar name,
// the decoded hypothesis, its score, the frame count the utterance ran for,
// and its full segmentation, collected by draining segIter.
func (s *Store) SaveUtterance(ctx context.Context, sessionID, grammar, hyp string, score int32, frameCount int, segIter func(yield func(decoder.Segment) bool)) error {
	var segments []SegmentRecord
	segIter(func(seg decoder.Segment) bool {
		segments = append(segments, SegmentRecord{
			Word: seg.Word,
			SF:   seg.SF,
			EF:   seg.EF,
			AScr: seg.AScr,
			LScr: seg.LScr,
		})
		return true
	})
	if segments == nil {
		segments = []SegmentRecord{}
	}

	segJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("postgres store: marshal segmentation: %w", err)
	}

	const q = `
		INSERT INTO utterances
		    (session_id, grammar, hypothesis, score, frame_count, segmentation)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, q, sessionID, grammar, hyp, score, frameCount, segJSON); err != nil {
		return fmt.Errorf("postgres store: save utterance: %w", err)
	}
	return nil
}

// GetRecent returns the most recently finished utterances for sessionID,
// newest first, up to limit rows.
func (s *Store) GetRecent(ctx context.Context, sessionID string, limit int) ([]UtteranceRecord, error) {
	const q = `
		SELECT id, session_id, grammar, hypothesis, score, frame_count, segmentation, finished_at
		FROM   utterances
		WHERE  session_id = $1
		ORDER  BY finished_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get recent: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UtteranceRecord, error) {
		var (
			r       UtteranceRecord
			segJSON []byte
		)
		if err := row.Scan(&r.ID, &r.SessionID, &r.Grammar, &r.Hypothesis, &r.Score, &r.FrameCount, &segJSON, &r.FinishedAt); err != nil {
			return UtteranceRecord{}, err
		}
		if err := json.Unmarshal(segJSON, &r.Segments); err != nil {
			return UtteranceRecord{}, fmt.Errorf("unmarshal segmentation: %w", err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if records == nil {
		records = []UtteranceRecord{}
	}
	return records, nil
}
