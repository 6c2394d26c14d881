// Package catalog holds the registrar form catalog: the static table of known
// forms, the alias index derived from it, and the keyword classifier that maps
// free text onto catalog entries.
//
// The catalog is loaded once from an embedded YAML file and is read-only
// afterwards, so a *Catalog is safe for unlimited concurrent readers.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed forms.yaml
var embeddedForms []byte

// Field is one fillable field of a form template.
type Field struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	// Narrative fields hold free text that must be written in formal register.
	Narrative bool `yaml:"narrative"`
}

// FormEntry is a single registrar form.
type FormEntry struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords"`
	Template string   `yaml:"template"`
	Fields   []Field  `yaml:"fields"`
}

// Label returns "{code} {name}", the document label used in sources.
func (e FormEntry) Label() string {
	return e.Code + " " + e.Name
}

// TemplateKey returns the dashed form key used by templates and generated
// file names (RO.16 -> RO-16).
func (e FormEntry) TemplateKey() string {
	return strings.ToUpper(strings.ReplaceAll(e.Code, ".", "-"))
}

// Fillable reports whether the form has a document template.
func (e FormEntry) Fillable() bool {
	return e.Template != "" && len(e.Fields) > 0
}

// FieldNames returns the template field names in declaration order.
func (e FormEntry) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Catalog is the immutable form table plus its alias index.
type Catalog struct {
	entries []FormEntry
	index   *Index
}

type catalogFile struct {
	Forms []FormEntry `yaml:"forms"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built from the embedded forms.yaml.
// The embedded table is part of the binary, so a load failure panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embeddedForms)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded forms.yaml: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load parses a YAML form table and builds the alias index.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Forms) == 0 {
		return nil, errors.New("catalog has no forms")
	}

	var errs []error
	seen := make(map[string]bool, len(file.Forms))
	entries := make([]FormEntry, 0, len(file.Forms))
	for i, e := range file.Forms {
		e.Code = strings.TrimSpace(e.Code)
		e.Name = strings.TrimSpace(e.Name)
		e.URL = strings.TrimSpace(e.URL)

		if e.Code == "" {
			errs = append(errs, fmt.Errorf("form %d: code is required", i))
			continue
		}
		if seen[e.Code] {
			errs = append(errs, fmt.Errorf("form %s: duplicate code", e.Code))
			continue
		}
		seen[e.Code] = true

		if u, err := url.Parse(e.URL); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("form %s: url must be absolute, got %q", e.Code, e.URL))
		}
		if len(e.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("form %s: at least one keyword is required", e.Code))
		}
		if (e.Template == "") != (len(e.Fields) == 0) {
			errs = append(errs, fmt.Errorf("form %s: template and fields must be set together", e.Code))
		}

		keywords := make([]string, 0, len(e.Keywords))
		for _, kw := range e.Keywords {
			if kw = normalizeText(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		e.Keywords = keywords
		entries = append(entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	index, err := buildIndex(entries)
	if err != nil {
		return nil, err
	}

	return &Catalog{entries: entries, index: index}, nil
}

// Entries returns a copy of all forms in catalog order.
func (c *Catalog) Entries() []FormEntry {
	out := make([]FormEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of forms.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Index returns the alias index.
func (c *Catalog) Index() *Index {
	return c.index
}

// Lookup resolves any alias (code, stripped code, spaced code, dashed key or
// display name) to its form entry.
func (c *Catalog) Lookup(alias string) (FormEntry, bool) {
	code, ok := c.index.Code(alias)
	if !ok {
		return FormEntry{}, false
	}
	for _, e := range c.entries {
		if e.Code == code {
			return e, true
		}
	}
	return FormEntry{}, false
}

// Fillable returns the forms that have a document template.
func (c *Catalog) Fillable() []FormEntry {
	var out []FormEntry
	for _, e := range c.entries {
		if e.Fillable() {
			out = append(out, e)
		}
	}
	return out
}

// URLs returns every download URL in catalog order.
func (c *Catalog) URLs() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.URL
	}
	return out
}

// ListText renders one "- {name} ใช้ฟอร์มรหัส: {code}" line per form.
// It is embedded in the advisor prompt as the code reference sheet.
func (c *Catalog) ListText() string {
	var sb strings.Builder
	for _, e := range c.entries {
		fmt.Fprintf(&sb, "- %s ใช้ฟอร์มรหัส: %s\n", e.Name, e.Code)
	}
	return sb.String()
}
