package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

type fakeDownloader struct {
	files map[string]string
}

func (f *fakeDownloader) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f.files[url]
	if !ok {
		return nil, errors.New("unexpected status: 404")
	}
	return []byte(body), nil
}

// splitPages treats form feeds as page breaks so tests need no real PDFs.
func splitPages(data []byte) ([]Page, error) {
	if string(data) == "corrupt" {
		return nil, errors.New("open pdf: malformed")
	}
	var pages []Page
	for i, text := range strings.Split(string(data), "\f") {
		if strings.TrimSpace(text) != "" {
			pages = append(pages, Page{Number: i + 1, Text: text})
		}
	}
	return pages, nil
}

type fakeDense struct {
	mu        sync.Mutex
	points    map[string]storage.StoredPassage
	recreated int
	failOn    string
}

func newFakeDense() *fakeDense { return &fakeDense{points: map[string]storage.StoredPassage{}} }

func (f *fakeDense) Name() string { return "fake" }
func (f *fakeDense) Search(context.Context, string, int) ([]rag.Passage, error) {
	return nil, nil
}
func (f *fakeDense) EnsureCollection(_ context.Context, recreate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if recreate {
		f.recreated++
		f.points = map[string]storage.StoredPassage{}
	}
	return nil
}
func (f *fakeDense) Upsert(_ context.Context, ps []storage.StoredPassage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range ps {
		if p.File == f.failOn {
			return errors.New("qdrant: unavailable")
		}
		f.points[p.ID] = p
	}
	return nil
}
func (f *fakeDense) Verify(context.Context) error { return nil }
func (f *fakeDense) DeleteByFile(_ context.Context, file string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.points {
		if p.File == file {
			delete(f.points, id)
		}
	}
	return nil
}
func (f *fakeDense) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points), nil
}
func (f *fakeDense) Close() error { return nil }

const (
	ro16 = "https://regis.kmutt.ac.th/service/form/RO-16.pdf"
	ro13 = "https://regis.kmutt.ac.th/service/form/RO-13Updated.pdf"
	ro12 = "https://regis.kmutt.ac.th/service/form/RO-12Updated.pdf"
	ro99 = "https://regis.kmutt.ac.th/service/form/RO-99.pdf"
)

func newTestPipeline(t *testing.T, dense *fakeDense, m *metrics.Metrics) (*Pipeline, *storage.DB) {
	t.Helper()
	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dl := &fakeDownloader{files: map[string]string{
		ro16: "คำร้องขอลาป่วย RO.16\fแนบใบรับรองแพทย์",
		ro13: "คำร้องขอลาออก RO.13",
		ro12: "corrupt",
	}}
	var ds rag.DenseStore
	if dense != nil {
		ds = dense
	}
	p := NewPipeline(db, ds, dl, m, logger.NewWithWriter("error", io.Discard))
	p.extract = splitPages
	return p, db
}

func TestRun_SkipsFailedFiles(t *testing.T) {
	t.Parallel()
	dense := newFakeDense()
	m := metrics.New(prometheus.NewRegistry())
	p, db := newTestPipeline(t, dense, m)

	stats, err := p.Run(context.Background(), Options{URLs: []string{ro16, ro13, ro12, ro99}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Files.Load())
	assert.Equal(t, int64(2), stats.Failed.Load())
	assert.Equal(t, int64(3), stats.Pages.Load())
	assert.Equal(t, int64(3), stats.Chunks.Load())

	n, err := db.CountPassages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, dense.points, 3, "dense and sparse hold the same ids")

	all, err := db.AllPassages(context.Background())
	require.NoError(t, err)
	for _, sp := range all {
		assert.Contains(t, dense.points, sp.ID)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.IngestFilesTotal.WithLabelValues("error")), 0.001)
	assert.InDelta(t, 3, testutil.ToFloat64(m.IngestChunksTotal.WithLabelValues("sqlite")), 0.001)
}

func TestRun_IdempotentAndForceRecreate(t *testing.T) {
	t.Parallel()
	dense := newFakeDense()
	p, db := newTestPipeline(t, dense, nil)
	ctx := context.Background()

	for range 2 {
		_, err := p.Run(ctx, Options{URLs: []string{ro16}})
		require.NoError(t, err)
	}
	n, err := db.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "re-ingesting overwrites the same ids")
	assert.Len(t, dense.points, 2)

	_, err = p.Run(ctx, Options{URLs: []string{ro13}, ForceRecreate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, dense.recreated)
	assert.Len(t, dense.points, 1)
}

func TestRun_DenseFailureSkipsFile(t *testing.T) {
	t.Parallel()
	dense := newFakeDense()
	dense.failOn = ro13
	p, db := newTestPipeline(t, dense, nil)
	ctx := context.Background()

	stats, err := p.Run(ctx, Options{URLs: []string{ro16, ro13}, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Files.Load())
	assert.Equal(t, int64(1), stats.Failed.Load())

	report, err := p.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, report.Files, 1, "sqlite never holds a file the dense store rejected")
	assert.Equal(t, ro16, report.Files[0].File)
	n, err := db.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_ShrunkFileDropsStalePassages(t *testing.T) {
	t.Parallel()
	dense := newFakeDense()
	p, db := newTestPipeline(t, dense, nil)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{URLs: []string{ro16, ro13}})
	require.NoError(t, err)
	require.Len(t, dense.points, 3)
	stale := rag.PassageID(ro16, 2, 0)
	require.Contains(t, dense.points, stale)

	p.downloader.(*fakeDownloader).files[ro16] = "คำร้องขอลาป่วย RO.16 ฉบับใหม่"
	_, err = p.Run(ctx, Options{URLs: []string{ro16}})
	require.NoError(t, err)

	assert.NotContains(t, dense.points, stale)
	assert.Contains(t, dense.points, rag.PassageID(ro16, 1, 0))
	assert.Contains(t, dense.points, rag.PassageID(ro13, 1, 0), "other files are untouched")
	assert.Len(t, dense.points, 2)

	n, err := db.CountPassages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_SparseOnly(t *testing.T) {
	t.Parallel()
	p, db := newTestPipeline(t, nil, nil)

	_, err := p.Run(context.Background(), Options{URLs: []string{ro16}})
	require.NoError(t, err)

	report, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.DenseStore)
	require.Len(t, report.Files, 1)
	assert.Equal(t, storage.FileStats{File: ro16, Passages: 2, Pages: 2}, report.Files[0])

	n, _ := db.CountPassages(context.Background())
	assert.Equal(t, 2, n)
}

func TestRun_Canceled(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, newFakeDense(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Options{URLs: []string{ro16, ro13}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatsAndReset(t *testing.T) {
	t.Parallel()
	dense := newFakeDense()
	p, db := newTestPipeline(t, dense, nil)
	ctx := context.Background()

	_, err := p.Run(ctx, Options{URLs: []string{ro16, ro13}})
	require.NoError(t, err)

	report, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", report.DenseStore)
	assert.Equal(t, 3, report.DenseCount)
	assert.Len(t, report.Files, 2)

	require.NoError(t, p.Reset(ctx))
	n, _ := db.CountPassages(ctx)
	assert.Zero(t, n)
	assert.Empty(t, dense.points)
}

func TestPassages(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("ก", 1200)
	ps, err := Passages(ro16, []Page{{Number: 2, Text: long}, {Number: 5, Text: "สั้น"}}, 500, 50)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(ps), 4)
	for _, p := range ps {
		assert.Equal(t, ro16, p.File)
		assert.LessOrEqual(t, len([]rune(p.Text)), 500)
		assert.Equal(t, rag.PassageID(ro16, p.Page, p.Chunk), p.ID)
	}
	last := ps[len(ps)-1]
	assert.Equal(t, 5, last.Page)
	assert.Equal(t, 0, last.Chunk, "chunk numbering restarts per page")
	assert.Equal(t, 2, ps[0].Page)
}
