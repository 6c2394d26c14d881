package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

// hashEmbedder is a deterministic bag-of-tokens embedder: texts sharing
// tokens end up close in cosine space.
type hashEmbedder struct {
	mu      sync.Mutex
	calls   int
	failing bool
}

func (e *hashEmbedder) embed(text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	failing := e.failing
	e.mu.Unlock()
	if failing {
		return nil, errors.New("embedding unavailable")
	}

	vec := make([]float32, 256)
	for _, tok := range tokenizeThai(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%256]++
	}
	vec[255] += 0.01 // never the zero vector
	return vec, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text)
}

func (e *hashEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return e.embed(text)
}

func testPassages() []storage.StoredPassage {
	raw := []struct {
		file string
		page int
		text string
	}{
		{"https://example.ac.th/RO-16.pdf", 1, "คำร้องขอลาป่วย ลากิจ ยื่นภายในสามวันหลังกลับมาเรียน"},
		{"https://example.ac.th/RO-13.pdf", 1, "คำร้องขอลาออกจากการเป็นนักศึกษา ต้องได้รับความยินยอมจากผู้ปกครอง"},
		{"https://example.ac.th/RO-12.pdf", 2, "การลาพักการศึกษา ยื่นผ่านระบบ New ACIS พร้อมค่าธรรมเนียม"},
	}
	out := make([]storage.StoredPassage, len(raw))
	for i, r := range raw {
		out[i] = storage.StoredPassage{
			ID:   PassageID(r.file, r.page, 0),
			File: r.file,
			Page: r.page,
			Text: r.text,
		}
	}
	return out
}

func TestPassageDisplayName(t *testing.T) {
	t.Parallel()
	if got := (Passage{}).DisplayName(); got != GenericDocName {
		t.Errorf("empty file = %q", got)
	}
	if got := (Passage{File: "a.pdf"}).DisplayName(); got != "a.pdf" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := (Passage{File: "https://regis.kmutt.ac.th/service/form/RO-16.pdf"}).DisplayName(); got != "RO-16.pdf" {
		t.Errorf("DisplayName() = %q", got)
	}
}

func TestPassageID(t *testing.T) {
	t.Parallel()
	a := PassageID("f.pdf", 1, 0)
	if a != PassageID("f.pdf", 1, 0) {
		t.Error("PassageID must be deterministic")
	}
	if a == PassageID("f.pdf", 1, 1) || a == PassageID("f.pdf", 2, 0) {
		t.Error("different chunks must get different ids")
	}
	if len(a) != 36 || strings.Count(a, "-") != 4 {
		t.Errorf("PassageID() = %q, want a UUID", a)
	}
}
