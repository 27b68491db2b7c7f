package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rag-assistant/internal/models"
	"rag-assistant/internal/vectorstore"
)

var errQuota = errors.New("quota exceeded")

type fakeEmbedder struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	delay    time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if strings.Contains(text, "FAIL") {
		return nil, &models.EmbeddingError{Cause: errQuota}
	}
	return []float64{float64(len(text)), 1}, nil
}

type failingInserter struct{ stored int }

func (f failingInserter) Insert(_ context.Context, records []models.EmbeddingRecord) (int, error) {
	return f.stored, &models.BackendError{Op: "insert", Cause: errors.New("connection refused")}
}

func newStore() *vectorstore.Store {
	return vectorstore.New(vectorstore.NewMemoryCollection(), 2)
}

func TestNewPipeline_InvalidSizing(t *testing.T) {
	_, err := NewPipeline(&fakeEmbedder{}, newStore(), Options{ChunkSize: 3, ChunkOverlap: 3})
	var cerr *models.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestIngest_BestEffort(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	p, err := NewPipeline(&fakeEmbedder{}, store, Options{ChunkSize: 3, Concurrency: 4})
	if err != nil {
		t.Fatal(err)
	}

	pages := []models.Page{
		{Number: 1, Text: "alpha beta gamma FAIL delta epsilon"},
		{Number: 2, Text: "zeta eta"},
	}
	report, err := p.Ingest(ctx, "manual.pdf", pages)
	if err != nil {
		t.Fatal(err)
	}
	if report.ChunksProduced != 3 || report.ChunksEmbedded != 2 || report.ChunksStored != 2 || report.Partial {
		t.Errorf("report = %+v", report)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	f := report.Failures[0]
	if f.Chunk != (models.ChunkRef{SourceID: "manual.pdf", PageNumber: 1, ChunkIndex: 1}) {
		t.Errorf("failure ref = %+v", f.Chunk)
	}
	if !errors.Is(f.Cause, errQuota) {
		t.Errorf("failure cause = %v", f.Cause)
	}

	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("stored = %d, want 2", n)
	}
	res, err := store.Search(ctx, []float64{8, 1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res {
		if r.SourceID != "manual.pdf" || strings.Contains(r.Content, "FAIL") {
			t.Errorf("unexpected stored result %+v", r)
		}
	}
}

func TestIngest_AllFail(t *testing.T) {
	p, _ := NewPipeline(&fakeEmbedder{}, newStore(), Options{ChunkSize: 10})
	report, err := p.Ingest(context.Background(), "bad.txt", []models.Page{{Text: "FAIL FAIL"}})
	if err != nil {
		t.Fatal(err)
	}
	if report.ChunksProduced != 1 || report.ChunksStored != 0 || len(report.Failures) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestIngest_Empty(t *testing.T) {
	emb := &fakeEmbedder{}
	p, _ := NewPipeline(emb, newStore(), Options{ChunkSize: 10})
	report, err := p.Ingest(context.Background(), "blank.txt", nil)
	if err != nil || report.ChunksProduced != 0 {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
	if emb.calls.Load() != 0 {
		t.Error("embedder should not be called")
	}
}

func TestIngest_BackendErrorMarksPartial(t *testing.T) {
	p, _ := NewPipeline(&fakeEmbedder{}, failingInserter{stored: 1}, Options{ChunkSize: 2})
	report, err := p.Ingest(context.Background(), "doc", []models.Page{{Number: 1, Text: "a b c d"}})
	var berr *models.BackendError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if !report.Partial || report.ChunksEmbedded != 2 || report.ChunksStored != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestIngest_CancelledWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newStore()
	p, _ := NewPipeline(&fakeEmbedder{}, store, Options{ChunkSize: 2})

	_, err := p.Ingest(ctx, "doc", []models.Page{{Text: "a b c d e f"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("stored %d records after cancellation", n)
	}
}

func TestIngest_ConcurrencyBounded(t *testing.T) {
	emb := &fakeEmbedder{delay: 5 * time.Millisecond}
	p, _ := NewPipeline(emb, newStore(), Options{ChunkSize: 1, Concurrency: 3})
	words := strings.Repeat("w ", 20)
	report, err := p.Ingest(context.Background(), "doc", []models.Page{{Text: words}})
	if err != nil {
		t.Fatal(err)
	}
	if report.ChunksStored != 20 {
		t.Errorf("stored = %d", report.ChunksStored)
	}
	if got := emb.maxSeen.Load(); got > 3 {
		t.Errorf("max in-flight embeddings = %d, limit 3", got)
	}
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.txt")
	if err := os.WriteFile(path, []byte("battery replacement policy applies to all phones"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := newStore()
	p, _ := NewPipeline(&fakeEmbedder{}, store, Options{ChunkSize: 4, ChunkOverlap: 1})

	report, err := p.IngestFile(context.Background(), path, "")
	if err != nil {
		t.Fatal(err)
	}
	if report.SourceID != "policy.txt" || report.ChunksProduced != 2 || report.ChunksStored != 2 {
		t.Errorf("report = %+v", report)
	}

	reports, err := p.IngestFiles(context.Background(), []string{path, filepath.Join(t.TempDir(), "missing.txt")})
	if err == nil {
		t.Error("expected error for missing file")
	}
	if len(reports) != 2 || reports[0].ChunksStored != 2 {
		t.Errorf("reports = %+v", reports)
	}
}
