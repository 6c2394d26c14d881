package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/sliceutil"
)

// Retrieval breadth: narrow when the classifier already anchored the answer.
const (
	KSmall = 1
	KLarge = 3
)

var embeddedURL = regexp.MustCompile(`https?://[^\s)]+`)

// Assembled is the advisor input built for one question.
type Assembled struct {
	Context        string
	Sources        []catalog.Source
	Classification catalog.Classification
	K              int
}

// Assembler combines classifier hits with retrieved passages.
type Assembler struct {
	cat *catalog.Catalog
}

// NewAssembler creates an assembler over cat.
func NewAssembler(cat *catalog.Catalog) *Assembler {
	return &Assembler{cat: cat}
}

// Assemble classifies query, retrieves passages and builds the context:
// classifier fragments first, then passage texts in retrieval order.
// Sources are unique by url in first-seen order. A retriever error fails
// the whole assembly.
func (a *Assembler) Assemble(ctx context.Context, r rag.Retriever, query string) (Assembled, error) {
	cls := a.cat.Classify(query)
	k := KLarge
	if cls.Hit() {
		k = KSmall
	}

	passages, err := r.Search(ctx, query, k)
	if err != nil {
		return Assembled{}, fmt.Errorf("retrieve: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(cls.Context)

	sources := make([]catalog.Source, 0, len(cls.Sources)+len(passages))
	sources = append(sources, cls.Sources...)
	for _, p := range passages {
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")

		if src, ok := a.ResolveSource(p); ok {
			sources = append(sources, src)
		}
	}
	sources = sliceutil.Deduplicate(sources, func(s catalog.Source) string { return s.URL })

	return Assembled{Context: sb.String(), Sources: sources, Classification: cls, K: k}, nil
}

// ResolveSource finds the download link of a passage: the first catalog form
// whose URL is in the passage's file or whose code is in its text, else the
// first URL embedded in the text.
func (a *Assembler) ResolveSource(p rag.Passage) (catalog.Source, bool) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	for _, e := range a.cat.Entries() {
		if (e.URL != "" && strings.Contains(p.File, e.URL)) || strings.Contains(p.Text, e.Code) {
			return catalog.Source{Doc: e.Label(), Page: page, URL: e.URL}, true
		}
	}
	if u := embeddedURL.FindString(p.Text); u != "" {
		return catalog.Source{Doc: p.DisplayName(), Page: page, URL: u}, true
	}
	return catalog.Source{}, false
}
