// Package files turns downloaded Lark Drive documents into plain text.
package files

import (
	"path"
	"strings"
)

// Kind is the document format inferred from the declared file name.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindPlain   Kind = "plain"
	KindUnknown Kind = "unknown"
)

// KindFromName infers the document kind from the name suffix, case-insensitively.
// Names without a recognised suffix are KindUnknown and are decoded as plain text.
func KindFromName(name string) Kind {
	switch strings.ToLower(path.Ext(strings.TrimSpace(name))) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt", ".md", ".csv", ".log":
		return KindPlain
	default:
		return KindUnknown
	}
}

// RawDocument is the downloaded file before text extraction.
type RawDocument struct {
	// Token is the Lark Drive file token the bytes were fetched with.
	Token string

	// Name is the declared file name, or the Content-Disposition name when
	// the caller did not declare one. May be empty.
	Name string

	// ContentType is the Content-Type reported by Lark (informational only,
	// dispatch is by Name).
	ContentType string

	Data []byte
	Kind Kind
}

// NewRawDocument builds a RawDocument and infers its Kind from name.
func NewRawDocument(token, name, contentType string, data []byte) RawDocument {
	return RawDocument{
		Token:       token,
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Kind:        KindFromName(name),
	}
}

// Size returns the document size in bytes.
func (d RawDocument) Size() int64 {
	return int64(len(d.Data))
}
