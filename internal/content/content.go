// Package content defines the normalized units of AI-bound content.
package content

import "strings"

// FragmentType tags a Fragment variant.
type FragmentType int

const (
	FragmentText FragmentType = iota
	FragmentInline
	FragmentExternal
)

// Fragment is one piece of a request: inline bytes, an external URI
// reference, or text.
type Fragment struct {
	Type     FragmentType `json:"type"`
	Text     string       `json:"text,omitempty"`
	Data     []byte       `json:"-"`
	URI      string       `json:"uri,omitempty"`
	MimeType string       `json:"mime_type,omitempty"`
}

func Text(s string) Fragment { return Fragment{Type: FragmentText, Text: s} }

func Inline(data []byte, mimeType string) Fragment {
	return Fragment{Type: FragmentInline, Data: data, MimeType: mimeType}
}

func External(uri, mimeType string) Fragment {
	return Fragment{Type: FragmentExternal, URI: uri, MimeType: mimeType}
}

// IsBinary reports whether the fragment is inline bytes.
func (f Fragment) IsBinary() bool { return f.Type == FragmentInline }

// Payload is the ordered content list handed to the backend.
type Payload []Fragment

// IsPlainText reports whether the payload is the collapsed single-text shape.
func (p Payload) IsPlainText() bool {
	return len(p) == 1 && p[0].Type == FragmentText
}

// PlainText joins all text fragments.
func (p Payload) PlainText() string {
	var parts []string
	for _, f := range p {
		if f.Type == FragmentText && f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// HasBinary reports whether any fragment carries inline bytes.
func (p Payload) HasBinary() bool {
	for _, f := range p {
		if f.IsBinary() {
			return true
		}
	}
	return false
}

// HasExternal reports whether any fragment references an external URI
// with the given mime type ("" matches any).
func (p Payload) HasExternal(mimeType string) bool {
	for _, f := range p {
		if f.Type == FragmentExternal && (mimeType == "" || f.MimeType == mimeType) {
			return true
		}
	}
	return false
}

// Roles used in conversation turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of conversation memory.
type Turn struct {
	Role  string     `json:"role"`
	Parts []Fragment `json:"parts"`
}

// TextOnly reports whether every part of the turn is text.
func (t Turn) TextOnly() bool {
	for _, p := range t.Parts {
		if p.Type != FragmentText {
			return false
		}
	}
	return true
}

// TextTurn builds a single-part text turn.
func TextTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Fragment{Text(text)}}
}
