package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Index maps normalized aliases of form codes and names to download URLs.
// It is derived once at load time and never updated.
type Index struct {
	urls  map[string]string
	codes map[string]string
}

func buildIndex(entries []FormEntry) (*Index, error) {
	idx := &Index{
		urls:  make(map[string]string, len(entries)*5),
		codes: make(map[string]string, len(entries)*5),
	}
	for _, e := range entries {
		for _, alias := range Aliases(e) {
			key := NormalizeAlias(alias)
			if key == "" {
				continue
			}
			if existing, ok := idx.urls[key]; ok && existing != e.URL {
				return nil, fmt.Errorf("alias %q maps to both %s and %s", alias, existing, e.URL)
			}
			idx.urls[key] = e.URL
			idx.codes[key] = e.Code
		}
	}
	return idx, nil
}

// Aliases returns the alias set of a form, deterministically derived from its
// code and display name:
//
//	RO.12 -> RO.12, RO12, RO. 12, RO-12, คำร้องขอลาพักการศึกษา
func Aliases(e FormEntry) []string {
	aliases := []string{
		e.Code,
		strings.ReplaceAll(e.Code, ".", ""),
		strings.ReplaceAll(e.Code, ".", ". "),
		strings.ReplaceAll(e.Code, ".", "-"),
	}
	if e.Name != "" {
		aliases = append(aliases, e.Name)
	}
	return aliases
}

// NormalizeAlias canonicalises an alias for index lookups: NFC, trimmed,
// upper-cased.
func NormalizeAlias(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFC.String(s)))
}

// URL returns the download URL for an alias.
func (idx *Index) URL(alias string) (string, bool) {
	u, ok := idx.urls[NormalizeAlias(alias)]
	return u, ok
}

// Code returns the canonical form code for an alias.
func (idx *Index) Code(alias string) (string, bool) {
	c, ok := idx.codes[NormalizeAlias(alias)]
	return c, ok
}

// Len returns the number of aliases.
func (idx *Index) Len() int {
	return len(idx.urls)
}

// normalizeText prepares text for keyword containment checks.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}
