package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
)

var (
	errEmptyObject  = errors.New("empty object")
	errNoFormType   = errors.New("missing form_type")
	errFormNotKnown = errors.New("form_type not fillable")
)

// Parser decodes the extraction stage's JSON output into a Record and
// validates it against a per-form JSON Schema generated from the catalog.
type Parser struct {
	cat     *catalog.Catalog
	schemas map[string]*gojsonschema.Schema // by catalog code
}

// NewParser compiles one schema per fillable form.
func NewParser(cat *catalog.Catalog) (*Parser, error) {
	p := &Parser{cat: cat, schemas: make(map[string]*gojsonschema.Schema)}
	for _, e := range cat.Fillable() {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(FormSchema(e)))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", e.Code, err)
		}
		p.schemas[e.Code] = schema
	}
	return p, nil
}

// FormSchema is the JSON Schema of one form's record: form_type plus every
// template field, all strings, all required. Parse coerces scalars and fills
// absent fields before validating, so in practice it rejects nested values.
func FormSchema(e catalog.FormEntry) map[string]any {
	props := map[string]any{KeyFormType: map[string]any{"type": "string"}}
	required := []any{KeyFormType}
	for _, name := range e.FieldNames() {
		props[name] = map[string]any{"type": "string"}
		required = append(required, name)
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"title":      e.Code,
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Parse returns the record encoded in raw, or the empty Record when raw is
// not a JSON object, names no fillable form, or fails schema validation.
// The reason is logged; it is never returned.
func (p *Parser) Parse(ctx context.Context, raw string) Record {
	rec, err := p.decode(raw)
	if err != nil {
		slog.DebugContext(ctx, "extraction rejected", "reason", err, "bytes", len(raw))
		return Record{}
	}
	return rec
}

func (p *Parser) decode(raw string) (Record, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return Record{}, fmt.Errorf("malformed JSON: %w", err)
	}
	if len(obj) == 0 {
		return Record{}, errEmptyObject
	}

	formType, _ := obj[KeyFormType].(string)
	if strings.TrimSpace(formType) == "" {
		return Record{}, errNoFormType
	}
	entry, ok := p.cat.Lookup(formType)
	if !ok || !entry.Fillable() {
		return Record{}, fmt.Errorf("%w: %q", errFormNotKnown, formType)
	}

	coerceFields(obj, entry.FieldNames())

	result, err := p.schemas[entry.Code].Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return Record{}, fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Record{}, fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}

	rec := Record{FormType: entry.Code, Fields: make(map[string]string, len(obj))}
	for k, v := range obj {
		if k == KeyFormType {
			continue
		}
		rec.Fields[k] = stringify(v)
	}
	return rec, nil
}

// coerceFields turns scalar values into strings and fills template fields
// the model left out with "". Nested values are kept so the schema
// rejects them.
func coerceFields(obj map[string]any, fields []string) {
	for k, v := range obj {
		switch v.(type) {
		case nil, float64, bool:
			obj[k] = stringify(v)
		}
	}
	for _, name := range fields {
		if _, ok := obj[name]; !ok {
			obj[name] = ""
		}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
