package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lukasjarosch/go-docx"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	domerrors "github.com/garyellow/kmutt-form-bot/internal/errors"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Render modes, used as metric labels.
const (
	modeFile   = "file"
	modeStream = "stream"
)

// Rendered describes a document written to the output directory.
type Rendered struct {
	Path     string
	FileName string
	Form     catalog.FormEntry
	Size     int64
}

// Renderer fills form templates.
type Renderer struct {
	cat         *catalog.Catalog
	templateDir string
	outputDir   string
	db          *storage.DB
	metrics     *metrics.Metrics
}

// NewRenderer creates a renderer. db and m may be nil; disk renders are then
// not recorded.
func NewRenderer(cat *catalog.Catalog, templateDir, outputDir string, db *storage.DB, m *metrics.Metrics) *Renderer {
	return &Renderer{cat: cat, templateDir: templateDir, outputDir: outputDir, db: db, metrics: m}
}

// OutputDir returns the directory disk renders are written to.
func (r *Renderer) OutputDir() string { return r.outputDir }

// FileName returns the output name of rec: Filled_{FORM}_{student_id}.docx.
func FileName(form catalog.FormEntry, rec Record) string {
	return fmt.Sprintf("Filled_%s_%s.docx", form.TemplateKey(), rec.StudentID())
}

// resolve maps rec to its form and an existing template file.
func (r *Renderer) resolve(rec Record) (catalog.FormEntry, string, error) {
	entry, ok := r.cat.Lookup(rec.FormType)
	if !ok || !entry.Fillable() {
		return catalog.FormEntry{}, "", fmt.Errorf("%w: %q", domerrors.ErrUnknownForm, rec.FormType)
	}
	path := filepath.Join(r.templateDir, entry.Template)
	if _, err := os.Stat(path); err != nil {
		return catalog.FormEntry{}, "", fmt.Errorf("%w: template %s: %w", domerrors.ErrUnknownForm, entry.Template, err)
	}
	return entry, path, nil
}

// placeholders maps every template field to its value; missing fields are "".
// Keys outside the template are not merged.
func placeholders(entry catalog.FormEntry, rec Record) docx.PlaceholderMap {
	m := make(docx.PlaceholderMap, len(entry.Fields))
	for _, name := range entry.FieldNames() {
		m[name] = rec.Fields[name]
	}
	return m
}

func (r *Renderer) fill(entry catalog.FormEntry, path string, rec Record) (*bytes.Buffer, error) {
	doc, err := docx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open template: %w", domerrors.ErrRender, err)
	}
	defer doc.Close()

	if err := doc.ReplaceAll(placeholders(entry, rec)); err != nil {
		return nil, fmt.Errorf("%w: replace placeholders: %w", domerrors.ErrRender, err)
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("%w: write document: %w", domerrors.ErrRender, err)
	}
	return &buf, nil
}

// RenderToFile writes the filled document to the output directory and
// records it in the registry. An existing file with the same name is replaced.
func (r *Renderer) RenderToFile(ctx context.Context, rec Record) (*Rendered, error) {
	entry, path, err := r.resolve(rec)
	if err != nil {
		r.metrics.RecordDocument("unknown", modeFile, "unknown_form")
		return nil, err
	}

	buf, err := r.fill(entry, path, rec)
	if err != nil {
		r.metrics.RecordDocument(entry.Code, modeFile, "error")
		return nil, err
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", domerrors.ErrRender, err)
	}
	name := FileName(entry, rec)
	out := filepath.Join(r.outputDir, name)
	size := int64(buf.Len())

	// Write then rename so a concurrent download never sees a partial file.
	tmp, err := os.CreateTemp(r.outputDir, name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", domerrors.ErrRender, err)
	}
	_, werr := buf.WriteTo(tmp)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: write %s: %w", domerrors.ErrRender, name, errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: rename %s: %w", domerrors.ErrRender, name, err)
	}

	r.metrics.RecordDocument(entry.Code, modeFile, "success")
	if r.db != nil {
		err := r.db.RecordDocument(ctx, storage.GeneratedDocument{
			FileName:  name,
			FormCode:  entry.Code,
			StudentID: rec.StudentID(),
			SizeBytes: size,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to record generated document", "file", name, "error", err)
		}
	}

	slog.InfoContext(ctx, "document rendered", "form", entry.Code, "file", name, "size", size)
	return &Rendered{Path: out, FileName: name, Form: entry, Size: size}, nil
}

// RenderToStream returns the filled document in memory, positioned at byte 0.
// It fails exactly where RenderToFile fails for the same record.
func (r *Renderer) RenderToStream(ctx context.Context, rec Record) (*bytes.Reader, catalog.FormEntry, error) {
	entry, path, err := r.resolve(rec)
	if err != nil {
		r.metrics.RecordDocument("unknown", modeStream, "unknown_form")
		return nil, catalog.FormEntry{}, err
	}

	buf, err := r.fill(entry, path, rec)
	if err != nil {
		r.metrics.RecordDocument(entry.Code, modeStream, "error")
		return nil, catalog.FormEntry{}, err
	}

	r.metrics.RecordDocument(entry.Code, modeStream, "success")
	slog.DebugContext(ctx, "document streamed", "form", entry.Code, "size", buf.Len())
	return bytes.NewReader(buf.Bytes()), entry, nil
}
