// Package document turns extracted form data into filled .docx files.
//
// Records come from the extraction stage (Parser) or directly from the
// document API. The Renderer merges a record into the form's template and
// writes the result to the output directory or to memory.
package document

import (
	"strings"
	"unicode"
)

// UnknownStudentID replaces a missing student id in file names.
const UnknownStudentID = "unknown"

// Field keys with a fixed meaning across forms.
const (
	KeyFormType  = "form_type"
	KeyStudentID = "student_id"
)

// Record is the data merged into a template. The zero Record is the
// "insufficient information" sentinel.
type Record struct {
	// FormType is a catalog code (RO.16) once canonicalised.
	FormType string
	Fields   map[string]string
}

// IsEmpty reports whether r is the sentinel.
func (r Record) IsEmpty() bool {
	return r.FormType == "" && len(r.Fields) == 0
}

// StudentID returns the student id made safe for a file name. Anything other
// than letters, digits, '-' and '_' is dropped; an empty result is "unknown".
func (r Record) StudentID() string {
	id := strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '-' || c == '_' {
			return c
		}
		return -1
	}, strings.TrimSpace(r.Fields[KeyStudentID]))
	if id == "" {
		return UnknownStudentID
	}
	return id
}

// NewRecord builds a record from the document API payload. A non-empty
// studentID overrides any student_id inside fields.
func NewRecord(formType, studentID string, fields map[string]any) Record {
	r := Record{FormType: strings.TrimSpace(formType), Fields: make(map[string]string, len(fields)+1)}
	for k, v := range fields {
		r.Fields[k] = stringify(v)
	}
	if studentID = strings.TrimSpace(studentID); studentID != "" {
		r.Fields[KeyStudentID] = studentID
	}
	return r
}
