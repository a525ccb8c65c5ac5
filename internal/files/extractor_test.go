package files

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/runixer/rara/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// buildDOCX assembles a minimal OOXML package with one w:p per paragraph.
func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:pPr><w:pStyle w:val="Normal"/></w:pPr><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, p)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() +
		`<w:sectPr/></w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   doc,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestKindFromName(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"contract.pdf", KindPDF},
		{"CONTRACT.PDF", KindPDF},
		{"memo.docx", KindDOCX},
		{"Memo.DocX", KindDOCX},
		{"notes.txt", KindPlain},
		{"readme.md", KindPlain},
		{"legacy.doc", KindUnknown},
		{"archive.pdf.zip", KindUnknown},
		{"noext", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindFromName(tt.name))
		})
	}
}

func TestExtract_Dispatch(t *testing.T) {
	calls := map[Kind]int{}
	e := NewExtractor(testLogger())
	for _, k := range []Kind{KindPDF, KindDOCX, KindPlain, KindUnknown} {
		e.decoders[k] = func(data []byte) (string, error) {
			calls[k]++
			return string(k), nil
		}
	}

	tests := []struct {
		name string
		want Kind
	}{
		{"a.pdf", KindPDF},
		{"a.Pdf", KindPDF},
		{"a.docx", KindDOCX},
		{"a.txt", KindPlain},
		{"a", KindUnknown},
	}
	for _, tt := range tests {
		text, err := e.Extract(context.Background(), NewRawDocument("tok", tt.name, "", []byte("x")))
		require.NoError(t, err)
		assert.Equal(t, string(tt.want), text, tt.name)
	}
	assert.Equal(t, map[Kind]int{KindPDF: 2, KindDOCX: 1, KindPlain: 1, KindUnknown: 1}, calls)
}

func TestExtract_PlainRoundTrip(t *testing.T) {
	e := NewExtractor(testLogger())

	ascii := "Perjanjian ini dibuat pada tanggal 1 Januari.\r\n\tPasal 1: Para pihak..."
	for _, name := range []string{"notes.txt", "no-extension", "", "scan.jpg"} {
		text, err := e.Extract(context.Background(), NewRawDocument("tok", name, "", []byte(ascii)))
		require.NoError(t, err)
		assert.Equal(t, ascii, text, name)
	}

	utf := "Ringkasan — “kontrak” 合同"
	text, err := e.Extract(context.Background(), NewRawDocument("tok", "u.txt", "", []byte(utf)))
	require.NoError(t, err)
	assert.Equal(t, utf, text)
}

func TestExtract_PlainInvalidUTF8(t *testing.T) {
	e := NewExtractor(testLogger())
	text, err := e.Extract(context.Background(), NewRawDocument("tok", "bin", "", []byte{'o', 'k', 0xff, 0xfe}))
	require.NoError(t, err)
	assert.Equal(t, "ok\uFFFD", text)
}

func TestExtract_DOCX(t *testing.T) {
	e := NewExtractor(testLogger())
	data := buildDOCX(t, "", "Perjanjian Sewa", "Pasal 1 &amp; Pasal 2", "")

	text, err := e.Extract(context.Background(), NewRawDocument("tok", "sewa.docx", "", data))
	require.NoError(t, err)
	assert.Equal(t, "Perjanjian Sewa\n\nPasal 1 & Pasal 2", text)
}

func TestExtract_DOCXTabsAndBreaks(t *testing.T) {
	doc := `<w:document xmlns:w="w"><w:body><w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p></w:body></w:document>`
	paragraphs, err := docxParagraphs(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"a\tb\nc"}, paragraphs)
}

func TestExtract_DOCXNestedParagraphs(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "text box",
			body: `<w:p><w:r><w:t xml:space="preserve">Outer before </w:t></w:r>` +
				`<w:r><w:txbxContent><w:p><w:r><w:t>Boxed</w:t></w:r></w:p></w:txbxContent></w:r>` +
				`<w:r><w:t>outer after</w:t></w:r></w:p>`,
		},
		{
			name: "text box with vml fallback",
			body: `<w:p><w:r><w:t xml:space="preserve">Outer before </w:t></w:r>` +
				`<w:r><mc:AlternateContent><mc:Choice Requires="wps"><w:txbxContent><w:p><w:r><w:t>Boxed</w:t></w:r></w:p></w:txbxContent></mc:Choice>` +
				`<mc:Fallback><w:pict><w:txbxContent><w:p><w:r><w:t>Boxed</w:t></w:r></w:p></w:txbxContent></w:pict></mc:Fallback></mc:AlternateContent></w:r>` +
				`<w:r><w:t>outer after</w:t></w:r></w:p>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `<w:document xmlns:w="w" xmlns:mc="mc"><w:body>` + tt.body +
				`<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p></w:body></w:document>`
			paragraphs, err := docxParagraphs(strings.NewReader(doc))
			require.NoError(t, err)
			assert.Equal(t, []string{"Outer before \nBoxed\nouter after", "Second paragraph"}, paragraphs)
		})
	}
}

func TestExtract_MalformedIsExtractionError(t *testing.T) {
	e := NewExtractor(testLogger())

	tests := []struct {
		name string
		data []byte
	}{
		{"broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf")},
		{"broken.docx", []byte("PK\x03\x04 truncated")},
		{"nodoc.docx", func() []byte {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			_, _ = zw.Create("other.xml")
			_ = zw.Close()
			return buf.Bytes()
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), NewRawDocument("tok", tt.name, "", tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrExtraction))
			assert.Equal(t, "extraction_error", apperr.Label(err))
		})
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	e := NewExtractor(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, NewRawDocument("tok", "a.txt", "", []byte("hello")))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
	assert.ErrorIs(t, err, context.Canceled)
}
