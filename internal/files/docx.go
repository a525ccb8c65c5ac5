package files

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxDocumentPart = "word/document.xml"

// extractDOCX reads word/document.xml from the OOXML container and returns the
// paragraph texts separated by blank lines. Formatting is dropped; tabs and
// manual line breaks inside a paragraph are kept.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxDocumentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("%s not found in archive", docxDocumentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxDocumentPart, err)
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// docxParagraphs returns the text of every top-level w:p. Paragraphs nested
// inside one (text boxes) are folded into it on their own lines, and the VML
// copy Word writes under mc:Fallback is skipped so boxed text appears once.
func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		depth      int // w:p nesting
		fallback   int // mc:Fallback nesting
		inText     bool
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxDocumentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Fallback" {
				fallback++
			}
			if fallback > 0 {
				continue
			}
			switch t.Name.Local {
			case "p":
				depth++
				if depth == 1 {
					current.Reset()
				} else {
					newLine(&current)
				}
			case "t":
				inText = depth > 0
			case "tab":
				if depth > 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					current.WriteByte('\n')
				}
			}
		case xml.CharData:
			// Only w:t carries document text; whitespace between elements is markup.
			if inText && fallback == 0 {
				current.Write(t)
			}
		case xml.EndElement:
			if fallback > 0 {
				if t.Name.Local == "Fallback" {
					fallback--
				}
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				switch {
				case depth == 1:
					paragraphs = append(paragraphs, current.String())
				case depth > 1:
					newLine(&current)
				}
				if depth > 0 {
					depth--
				}
			}
		}
	}

	return trimEmptyEdges(paragraphs), nil
}

// newLine starts a new line in b unless it is empty or already at one.
func newLine(b *strings.Builder) {
	if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
}

// trimEmptyEdges drops blank paragraphs at the start and end of the document.
func trimEmptyEdges(paragraphs []string) []string {
	for len(paragraphs) > 0 && strings.TrimSpace(paragraphs[0]) == "" {
		paragraphs = paragraphs[1:]
	}
	for len(paragraphs) > 0 && strings.TrimSpace(paragraphs[len(paragraphs)-1]) == "" {
		paragraphs = paragraphs[:len(paragraphs)-1]
	}
	return paragraphs
}
