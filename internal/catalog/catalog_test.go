package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedForms(t *testing.T) {
	t.Parallel()
	c := Default()

	require.Equal(t, 19, c.Len())
	entries := c.Entries()
	assert.Equal(t, "RO.01", entries[0].Code)
	assert.Equal(t, "RO.26", entries[len(entries)-1].Code)

	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.URL, "https://regis.kmutt.ac.th/service/form/"), e.Code)
		assert.NotEmpty(t, e.Keywords, e.Code)
		for _, kw := range e.Keywords {
			assert.Equal(t, strings.ToLower(kw), kw, "keywords are stored lower-cased")
		}
	}
}

func TestDefault_FillableForms(t *testing.T) {
	t.Parallel()
	fillable := Default().Fillable()

	keys := make([]string, len(fillable))
	for i, e := range fillable {
		keys[i] = e.TemplateKey()
		assert.Contains(t, e.FieldNames(), "student_id", e.Code)
	}
	assert.Equal(t, []string{"RO-01", "RO-03", "RO-13", "RO-16"}, keys)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	t.Parallel()
	c := Default()
	entries := c.Entries()
	entries[0].Code = "mutated"

	assert.Equal(t, "RO.01", c.Entries()[0].Code)
}

func TestLookup_Aliases(t *testing.T) {
	t.Parallel()
	c := Default()

	tests := []struct {
		alias string
		want  string
	}{
		{"RO.12", "RO.12"},
		{"ro.12", "RO.12"},
		{"RO12", "RO.12"},
		{"RO. 12", "RO.12"},
		{"ro-16", "RO.16"},
		{"  RO-16  ", "RO.16"},
		{"คำร้องขอลาออก", "RO.13"},
		{"กค.18", "กค.18"},
		{"กค18", "กค.18"},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			t.Parallel()
			e, ok := c.Lookup(tt.alias)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Code)
		})
	}

	_, ok := c.Lookup("RO.99")
	assert.False(t, ok)
}

func TestIndex_EveryAliasMapsToOneURL(t *testing.T) {
	t.Parallel()
	c := Default()
	idx := c.Index()

	for _, e := range c.Entries() {
		for _, alias := range Aliases(e) {
			u, ok := idx.URL(alias)
			require.True(t, ok, alias)
			assert.Equal(t, e.URL, u, alias)
		}
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    "forms: []",
			wantErr: "no forms",
		},
		{
			name: "relative url",
			yaml: `forms:
  - {code: RO.01, name: a, url: /form.pdf, keywords: [a]}`,
			wantErr: "absolute",
		},
		{
			name: "duplicate code",
			yaml: `forms:
  - {code: RO.01, name: a, url: https://x/a.pdf, keywords: [a]}
  - {code: RO.01, name: b, url: https://x/b.pdf, keywords: [b]}`,
			wantErr: "duplicate code",
		},
		{
			name: "template without fields",
			yaml: `forms:
  - {code: RO.01, name: a, url: https://x/a.pdf, keywords: [a], template: a.docx}`,
			wantErr: "template and fields",
		},
		{
			name: "alias collision",
			yaml: `forms:
  - {code: RO.01, name: a, url: https://x/a.pdf, keywords: [a]}
  - {code: RO01, name: b, url: https://x/b.pdf, keywords: [b]}`,
			wantErr: "maps to both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestListText(t *testing.T) {
	t.Parallel()
	text := Default().ListText()

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	assert.Len(t, lines, 19)
	assert.Equal(t, "- คำร้องทั่วไป (General Request) ใช้ฟอร์มรหัส: RO.01", lines[0])
}
