package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fsgdecoder/core/internal/store/postgres"
	"github.com/fsgdecoder/core/pkg/decoder"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if FSGDECODER_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("FSGDECODER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FSGDECODER_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS utterances CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func staticSegments(segs []decoder.Segment) func(yield func(decoder.Segment) bool) {
	return func(yield func(decoder.Segment) bool) {
		for _, s := range segs {
			if !yield(s) {
				return
			}
		}
	}
}

func TestSaveAndGetRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	segs := []decoder.Segment{
		{Word: "<sil>", SF: 0, EF: 4, LScr: 0, AScr: -120},
		{Word: "HELLO", SF: 5, EF: 20, LScr: 0, AScr: -900},
	}

	if err := store.SaveUtterance(ctx, "sess-1", "greeting", "HELLO", -1020, 21, staticSegments(segs)); err != nil {
		t.Fatalf("SaveUtterance: %v", err)
	}

	recs, err := store.GetRecent(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("GetRecent: want 1, got %d", len(recs))
	}
	got := recs[0]
	if got.Hypothesis != "HELLO" {
		t.Errorf("hypothesis: got %q, want %q", got.Hypothesis, "HELLO")
	}
	if got.Grammar != "greeting" {
		t.Errorf("grammar: got %q, want %q", got.Grammar, "greeting")
	}
	if got.FrameCount != 21 {
		t.Errorf("frame_count: got %d, want 21", got.FrameCount)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("segments: want 2, got %d", len(got.Segments))
	}
	if got.Segments[1].Word != "HELLO" {
		t.Errorf("segments[1].word: got %q, want %q", got.Segments[1].Word, "HELLO")
	}
}

func TestGetRecentOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveUtterance(ctx, "sess-2", "greeting", "HELLO", 0, 10, staticSegments(nil)); err != nil {
		t.Fatalf("SaveUtterance 1: %v", err)
	}
	if err := store.SaveUtterance(ctx, "sess-2", "farewell", "GOODBYE", 0, 12, staticSegments(nil)); err != nil {
		t.Fatalf("SaveUtterance 2: %v", err)
	}

	recs, err := store.GetRecent(ctx, "sess-2", 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("GetRecent: want 2, got %d", len(recs))
	}
	if recs[0].Hypothesis != "GOODBYE" {
		t.Errorf("newest-first ordering violated: got %q first", recs[0].Hypothesis)
	}
}

func TestGetRecentOtherSessionEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveUtterance(ctx, "sess-3", "greeting", "HELLO", 0, 10, staticSegments(nil)); err != nil {
		t.Fatalf("SaveUtterance: %v", err)
	}

	recs, err := store.GetRecent(ctx, "other-session", 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("GetRecent other session: want 0, got %d", len(recs))
	}
}
