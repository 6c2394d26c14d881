package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/document"
	"github.com/garyellow/kmutt-form-bot/internal/lazy"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
)

type fakeRetriever struct {
	mu       sync.Mutex
	passages []rag.Passage
	err      error
	ks       []int
}

func (f *fakeRetriever) Search(_ context.Context, _ string, k int) ([]rag.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ks = append(f.ks, k)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.passages) > k {
		return f.passages[:k], nil
	}
	return f.passages, nil
}

type fakeAdvisor struct {
	reply   string
	err     error
	context string
}

func (f *fakeAdvisor) Answer(_ context.Context, contextText, _ string) (string, error) {
	f.context = contextText
	return f.reply, f.err
}

type fakeExtractor struct {
	raw string
	err error
}

func (f *fakeExtractor) Extract(context.Context, string) (string, error) {
	return f.raw, f.err
}

type fakeMirror struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeMirror) Enabled() bool { return true }

func (f *fakeMirror) Mirror(_ context.Context, _, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.names = append(f.names, name)
	return nil
}

type fakeRegistry struct {
	mu       sync.Mutex
	archived []string
}

func (f *fakeRegistry) MarkArchived(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, name)
	return nil
}

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

// recordJSON builds a complete extraction for code with every field set.
func recordJSON(t *testing.T, cat *catalog.Catalog, code string, overrides map[string]string) string {
	t.Helper()
	entry, ok := cat.Lookup(code)
	if !ok {
		t.Fatalf("unknown form %s", code)
	}
	obj := map[string]string{"form_type": entry.Code}
	for _, f := range entry.FieldNames() {
		obj[f] = "ค่า " + f
	}
	for k, v := range overrides {
		obj[k] = v
	}
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

type harness struct {
	svc       *Service
	retriever *fakeRetriever
	advisor   *fakeAdvisor
	extractor *fakeExtractor
	mirror    *fakeMirror
	registry  *fakeRegistry
	outputDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat := catalog.Default()
	parser, err := document.NewParser(cat)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		retriever: &fakeRetriever{},
		advisor:   &fakeAdvisor{reply: "คำตอบ"},
		extractor: &fakeExtractor{},
		mirror:    &fakeMirror{},
		registry:  &fakeRegistry{},
		outputDir: t.TempDir(),
	}
	h.svc = NewService(Config{
		Catalog:       cat,
		Retriever:     lazy.Of[rag.Retriever](h.retriever),
		Advisor:       lazy.Of[Answerer](h.advisor),
		Extractor:     lazy.Of[Extractor](h.extractor),
		Parser:        parser,
		Renderer:      document.NewRenderer(cat, "../../templates", h.outputDir, nil, nil),
		Archive:       h.mirror,
		Registry:      h.registry,
		PublicBaseURL: "https://forms.example.com",
		Logger:        testLogger(),
	})
	return h
}

var errSearch = errors.New("qdrant: connection refused")
