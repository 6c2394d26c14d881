package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/chat"
	"github.com/garyellow/kmutt-form-bot/internal/config"
	"github.com/garyellow/kmutt-form-bot/internal/document"
	domerrors "github.com/garyellow/kmutt-form-bot/internal/errors"
	"github.com/garyellow/kmutt-form-bot/internal/intent"
	"github.com/garyellow/kmutt-form-bot/internal/lazy"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/maintenance"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/r2client"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/ratelimit"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

const ro16URL = "https://regis.kmutt.ac.th/service/form/RO-16.pdf"

type stubRetriever struct{ passages []rag.Passage }

func (s stubRetriever) Search(context.Context, string, int) ([]rag.Passage, error) {
	return s.passages, nil
}

type stubAdvisor struct{ reply string }

func (s stubAdvisor) Answer(context.Context, string, string) (string, error) { return s.reply, nil }

type stubExtractor struct{ raw string }

func (s stubExtractor) Extract(context.Context, string) (string, error) { return s.raw, nil }

type stubArchive struct{ files map[string]string }

func (s stubArchive) Enabled() bool { return true }

func (s stubArchive) Open(_ context.Context, name string) (io.ReadCloser, error) {
	body, ok := s.files[name]
	if !ok {
		return nil, r2client.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type testOptions struct {
	reply     string
	extracted string
	burst     int
	password  string
	archive   documentArchive
	warming   bool
}

// setupTestApp wires an Application around stub LLM stages and the real
// renderer, so routes run end to end without network access.
func setupTestApp(t *testing.T, opts testOptions) *Application {
	t.Helper()

	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if opts.burst == 0 {
		opts.burst = 100
	}
	if opts.reply == "" {
		opts.reply = "ใช้แบบฟอร์ม RO.16 ครับ"
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	log := logger.NewWithWriter("error", io.Discard)
	cat := catalog.Default()
	outDir := t.TempDir()

	cfg := &config.Config{
		OutputDir:       outDir,
		TemplateDir:     "../../templates",
		ChatTimeout:     5 * time.Second,
		PublicBaseURL:   "https://forms.example.com",
		MetricsUsername: "prometheus",
		MetricsPassword: opts.password,
	}

	parser, err := document.NewParser(cat)
	require.NoError(t, err)
	renderer := document.NewRenderer(cat, cfg.TemplateDir, outDir, db, m)

	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{Name: "client", Burst: opts.burst, RefillRate: 0.001})
	t.Cleanup(limiter.Stop)

	a := &Application{
		cfg:       cfg,
		logger:    log,
		db:        db,
		metrics:   m,
		registry:  registry,
		catalog:   cat,
		renderer:  renderer,
		archive:   opts.archive,
		sweeper:   maintenance.NewSweeper(db, outDir, 0, log, maintenance.Options{}),
		limiter:   limiter,
		readiness: newReadinessGate(time.Hour, !opts.warming),
		components: lazyComponents{
			retriever: lazy.Of[rag.Retriever](stubRetriever{passages: []rag.Passage{{Text: "ใช้ RO.16 เมื่อลาป่วย", File: ro16URL}}}),
			advisor:   lazy.Of[chat.Answerer](stubAdvisor{reply: opts.reply}),
			extractor: lazy.Of[chat.Extractor](stubExtractor{raw: opts.extracted}),
		},
	}
	a.chat = chat.NewService(chat.Config{
		Catalog:       cat,
		Router:        intent.NewRouter(),
		Retriever:     a.components.retriever,
		Advisor:       a.components.advisor,
		Extractor:     a.components.extractor,
		Parser:        parser,
		Renderer:      renderer,
		Registry:      db,
		PublicBaseURL: cfg.PublicBaseURL,
		Metrics:       m,
		Logger:        log,
	})
	return a
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	w := do(t, a.routes(), http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"Server is running 🚀"}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{warming: true})
	w := do(t, a.routes(), http.MethodGet, "/livez", "")

	assert.Equal(t, http.StatusOK, w.Code, "liveness ignores warm-up")
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		a := setupTestApp(t, testOptions{})
		w := do(t, a.routes(), http.MethodGet, "/readyz", "")
		require.Equal(t, http.StatusOK, w.Code)

		body := decode[struct {
			Status   string          `json:"status"`
			Database string          `json:"database"`
			Corpus   map[string]int  `json:"corpus"`
			Features map[string]bool `json:"features"`
		}](t, w)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "connected", body.Database)
		assert.Equal(t, catalog.Default().Len(), body.Corpus["forms"])
		assert.Zero(t, body.Corpus["passages"])
		assert.True(t, body.Features["retriever_warm"])
		assert.False(t, body.Features["archive"])
		assert.False(t, body.Features["retention"])
	})

	t.Run("warming up", func(t *testing.T) {
		t.Parallel()
		a := setupTestApp(t, testOptions{warming: true})
		w := do(t, a.routes(), http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "initialising")
	})

	t.Run("database closed", func(t *testing.T) {
		t.Parallel()
		a := setupTestApp(t, testOptions{})
		require.NoError(t, a.db.Close())
		w := do(t, a.routes(), http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "database unavailable")
	})
}

func TestChat_Answer(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	w := do(t, a.routes(), http.MethodPost, "/chat", `{"message":"ลาป่วยใช้ฟอร์มอะไร"}`,
		"X-Request-Id", "req-42")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	resp := decode[chat.Response](t, w)
	assert.Equal(t, "ใช้แบบฟอร์ม RO.16 ครับ", resp.Reply)
	urls := make([]string, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		urls = append(urls, s.URL)
	}
	assert.Contains(t, urls, ro16URL)
	seen := map[string]bool{}
	for _, u := range urls {
		assert.False(t, seen[u], "duplicate source %s", u)
		seen[u] = true
	}
}

func TestChat_Generate(t *testing.T) {
	t.Parallel()
	cat := catalog.Default()
	entry, ok := cat.Lookup("RO.16")
	require.True(t, ok)
	fields := map[string]string{"form_type": "RO.16", "student_id": "64070500001"}
	for _, f := range entry.FieldNames() {
		if _, set := fields[f]; !set {
			fields[f] = "ทดสอบ"
		}
	}
	raw, err := json.Marshal(fields)
	require.NoError(t, err)

	a := setupTestApp(t, testOptions{extracted: string(raw)})
	w := do(t, a.routes(), http.MethodPost, "/chat", `{"message":"ช่วยสร้างเอกสารใบลาป่วยให้หน่อย รหัส 64070500001"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[chat.Response](t, w)
	link := "https://forms.example.com/output/Filled_RO-16_64070500001.docx"
	assert.Contains(t, resp.Reply, link)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, link, resp.Sources[0].URL)

	// The link resolves through /output.
	dl := do(t, a.routes(), http.MethodGet, "/output/Filled_RO-16_64070500001.docx", "")
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, document.ContentType, dl.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(dl.Body.Bytes(), []byte("PK")), "docx is a zip container")
}

func TestChat_InsufficientInfo(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{extracted: "not json"})
	w := do(t, a.routes(), http.MethodPost, "/chat", `{"message":"ร่างคำร้องให้หน่อย"}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[chat.Response](t, w)
	assert.Equal(t, domerrors.MsgInsufficientInfo, resp.Reply)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, w.Body.String(), `"sources":[]`)
}

func TestChat_BadRequest(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	router := a.routes()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{"message":`, "invalid JSON body"},
		{"wrong type", `{"message":42}`, "invalid JSON body"},
		{"missing message", `{}`, "message"},
		{"empty message", `{"message":""}`, "required"},
		{"too long", `{"message":"` + strings.Repeat("ก", 4001) + `"}`, "max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[map[string]string](t, w)
			assert.Contains(t, body["detail"], tt.want)
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{burst: 2})
	router := a.routes()

	for range 2 {
		w := do(t, router, http.MethodPost, "/chat", `{"message":"สวัสดี"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, router, http.MethodPost, "/chat", `{"message":"สวัสดี"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"reply":"`+domerrors.MsgRateLimited+`","sources":[]}`, w.Body.String())

	// Another client is unaffected.
	w = do(t, router, http.MethodPost, "/chat", `{"message":"สวัสดี"}`, "X-Forwarded-For", "198.51.100.9")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateDocument(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	router := a.routes()

	body := `{"form_type":"RO.16","student_id":"64070500001","form_data":{"full_name":"สมชาย ใจดี","reason":"ไข้หวัด"}}`
	w := do(t, router, http.MethodPost, "/generate-document", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, document.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename*=utf-8''Filled_RO-16_64070500001.docx", w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
	assert.Empty(t, w.Header().Get("Content-Encoding"), "documents are not gzipped")

	entries, err := os.ReadDir(a.cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "stream mode writes nothing to disk")
}

func TestGenerateDocument_Failures(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	router := a.routes()

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"unknown form", `{"form_type":"RO.99","student_id":"1","form_data":{}}`, domerrors.MsgRenderFailed},
		{"form without template", `{"form_type":"RO.12","student_id":"1","form_data":{}}`, domerrors.MsgRenderFailed},
		{"missing form_data", `{"form_type":"RO.16","student_id":"1"}`, "form_data"},
		{"missing student_id", `{"form_type":"RO.16","form_data":{}}`, "student_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/generate-document", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode[map[string]string](t, w)["detail"], tt.detail)
		})
	}
}

func TestServeOutput(t *testing.T) {
	t.Parallel()
	archive := stubArchive{files: map[string]string{"Filled_RO-13_1.docx": "PK archived"}}
	a := setupTestApp(t, testOptions{archive: archive})
	router := a.routes()
	require.NoError(t, os.WriteFile(filepath.Join(a.cfg.OutputDir, "Filled_RO-16_1.docx"), []byte("PK local"), 0o600))

	tests := []struct {
		name   string
		target string
		code   int
		body   string
	}{
		{"local file", "/output/Filled_RO-16_1.docx", http.StatusOK, "PK local"},
		{"archive fallback", "/output/Filled_RO-13_1.docx", http.StatusOK, "PK archived"},
		{"missing everywhere", "/output/Filled_RO-01_1.docx", http.StatusNotFound, ""},
		{"dot file", "/output/.env", http.StatusNotFound, ""},
		{"encoded traversal", "/output/..%2F..%2Fgo.mod", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
				assert.Equal(t, document.ContentType, w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServeOutput_NoArchive(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	w := do(t, a.routes(), http.MethodGet, "/output/Filled_RO-16_1.docx", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	w := do(t, a.routes(), http.MethodOptions, "/chat", "",
		"Origin", "https://student.kmutt.ac.th",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "content-type")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "content-type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{password: "s3cret"})
	router := a.routes()

	_ = do(t, router, http.MethodPost, "/chat", `{"message":"สวัสดี"}`)

	w := do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/metrics", "", "Authorization", basic("prometheus", "s3cret"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kmutt_chat_requests_total")
}

func TestCompressJSON(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{reply: strings.Repeat("คำตอบยาว ", 400)})
	h, err := compressJSON(a.routes())
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/chat", `{"message":"อธิบายขั้นตอนลาออก"}`, "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	w = do(t, h, http.MethodPost, "/chat", `{"message":"อธิบายขั้นตอนลาออก"}`)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Body.String(), "คำตอบยาว")
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t, testOptions{})
	router := a.routes()
	router.GET("/panic", func(*gin.Context) { panic(errors.New("boom")) })

	w := do(t, router, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
