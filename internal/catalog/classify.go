package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Source is a citation attached to an answer.
type Source struct {
	Doc  string `json:"doc"`
	Page int    `json:"page"`
	URL  string `json:"url"`
}

// Match is one classifier hit: the form and the first keyword of that form
// found in the query.
type Match struct {
	Entry   FormEntry
	Keyword string
}

// ContextLine is the synthesized context fragment handed to the advisor.
func (m Match) ContextLine() string {
	return fmt.Sprintf("\n[ข้อมูลสำคัญจากระบบ]: ผู้ใช้กำลังถามถึง '%s' ซึ่งตรงกับคีย์เวิร์ด '%s' รหัสเอกสารคือ '%s'. ลิงก์ดาวน์โหลดคือ %s\n",
		m.Entry.Name, m.Keyword, m.Entry.Code, m.Entry.URL)
}

// Source returns the citation for the matched form.
func (m Match) Source() Source {
	return Source{Doc: m.Entry.Label(), Page: 1, URL: m.Entry.URL}
}

// Classification is the classifier output for one query.
type Classification struct {
	Matches []Match
	// Context is the concatenation of every match's context line, in catalog order.
	Context string
	// Sources holds one source per distinct matched URL, first-seen order.
	Sources []Source
}

// Hit reports whether at least one form matched.
func (c Classification) Hit() bool {
	return len(c.Matches) > 0
}

// Classify scans the query against every form's keywords.
//
// Within a form, keywords are tried in list order and the first one contained
// in the query wins. Every form is scanned, so a query may match several forms;
// no tie-break is applied. The result depends only on the query and the catalog.
func (c *Catalog) Classify(query string) Classification {
	q := strings.ToLower(norm.NFC.String(query))

	var out Classification
	var sb strings.Builder
	seen := make(map[string]bool)
	for _, e := range c.entries {
		for _, kw := range e.Keywords {
			if !strings.Contains(q, kw) {
				continue
			}
			m := Match{Entry: e, Keyword: kw}
			out.Matches = append(out.Matches, m)
			sb.WriteString(m.ContextLine())
			if !seen[e.URL] {
				seen[e.URL] = true
				out.Sources = append(out.Sources, m.Source())
			}
			break
		}
	}
	out.Context = sb.String()
	return out
}
