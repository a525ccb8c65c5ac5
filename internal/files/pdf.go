package files

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu otherwise creates a config directory under $HOME on first use,
	// which fails in read-only containers.
	api.DisableConfigDir()
}

// extractPDF parses the PDF structure and returns the text of every page in
// page order, one page per line group. A document with no text operators
// (e.g. a scan) yields "" without error.
//
// pdfcpu panics on some truncated or corrupt files; those panics come back
// as errors.
func extractPDF(logger *slog.Logger, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	pages := make([]string, 0, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := pdfPageText(logger, ctx, pageNr)
		if pageText == "" {
			continue
		}
		pages = append(pages, pageText)
	}
	return strings.Join(pages, "\n"), nil
}

// pdfPageText extracts the shown text of one page from its content stream.
// Pages without a content stream contribute nothing. A page whose content
// cannot be decoded is skipped with a warning so the rest still comes through.
func pdfPageText(logger *slog.Logger, ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		logger.Warn("skipping unreadable PDF page", "page", pageNr, "error", err)
		return ""
	}
	if r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		logger.Warn("skipping unreadable PDF page", "page", pageNr, "error", err)
		return ""
	}
	return textFromContentStream(data)
}

// textFromContentStream walks content stream operators and collects the
// string operands of the text showing operators (Tj, TJ, ', ").
// Td, TD and T* start a new line.
func textFromContentStream(data []byte) string {
	var lines []string
	var line strings.Builder

	flush := func() {
		if s := cleanPDFLine(line.String()); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}

	var operands [][]byte
	for _, tok := range pdfTokens(data) {
		if tok.literal {
			operands = append(operands, tok.value)
			continue
		}
		switch string(tok.value) {
		case "Tj", "TJ":
			for _, op := range operands {
				line.Write(op)
			}
		case "'", `"`:
			flush()
			for _, op := range operands {
				line.Write(op)
			}
		case "Td", "TD", "T*", "ET":
			flush()
		}
		operands = operands[:0]
	}
	flush()

	return strings.Join(lines, "\n")
}

type pdfToken struct {
	value   []byte
	literal bool // decoded string operand
}

// pdfTokens splits a content stream into string operands (decoded) and
// operator keywords. Numbers, names and array brackets are skipped, so TJ
// kerning adjustments never show up as text. Inline image data is skipped.
func pdfTokens(data []byte) []pdfToken {
	var tokens []pdfToken
	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '(':
			s, next := readLiteralString(data, i)
			tokens = append(tokens, pdfToken{value: s, literal: true})
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '<':
			s, next := readHexString(data, i)
			tokens = append(tokens, pdfToken{value: s, literal: true})
			i = next
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '\'' || c == '"':
			tokens = append(tokens, pdfToken{value: []byte{c}})
			i++
		case c == '/' || isPDFNumberStart(c):
			i++
			for i < len(data) && isPDFRegular(data[i]) {
				i++
			}
		case isPDFRegular(c):
			start := i
			for i < len(data) && isPDFRegular(data[i]) {
				i++
			}
			op := data[start:i]
			tokens = append(tokens, pdfToken{value: op})
			if string(op) == "ID" {
				i = skipInlineImage(data, i)
			}
		default:
			i++
		}
	}
	return tokens
}

// skipInlineImage returns the index after the EI operator that ends the
// inline image data starting at i.
func skipInlineImage(data []byte, i int) int {
	for j := i; j+2 <= len(data); j++ {
		if data[j] != 'E' || data[j+1] != 'I' {
			continue
		}
		before := j == 0 || !isPDFRegular(data[j-1])
		after := j+2 == len(data) || !isPDFRegular(data[j+2])
		if before && after {
			return j + 2
		}
	}
	return len(data)
}

func isPDFNumberStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

// isPDFRegular reports whether c is neither whitespace nor a delimiter.
func isPDFRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0,
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// readLiteralString decodes a (...) string starting at data[start], honouring
// nested parentheses and escape sequences. It returns the decoded bytes and
// the index after the closing parenthesis.
func readLiteralString(data []byte, start int) ([]byte, int) {
	var out []byte
	depth := 0
	i := start
	for i < len(data) {
		c := data[i]
		switch c {
		case '(':
			if depth > 0 {
				out = append(out, c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out, i + 1
			}
			out = append(out, c)
		case '\\':
			i++
			if i >= len(data) {
				return out, i
			}
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r', '\n':
				// Line continuation.
				if e == '\r' && i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for n := 0; n < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; n++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
		i++
	}
	return out, i
}

// readHexString decodes a <...> string starting at data[start].
func readHexString(data []byte, start int) ([]byte, int) {
	var out []byte
	var hi byte
	half := false
	i := start + 1
	for ; i < len(data) && data[i] != '>'; i++ {
		v, ok := hexValue(data[i])
		if !ok {
			continue
		}
		if !half {
			hi = v
			half = true
			continue
		}
		out = append(out, hi<<4|v)
		half = false
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, i + 1
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// cleanPDFLine collapses whitespace runs and drops non-printable runes.
// Operands are decoded as Latin-1 when they are not valid UTF-8, which is
// what simple fonts with the standard encodings produce.
func cleanPDFLine(s string) string {
	if !isValidUTF8(s) {
		s = latin1ToUTF8(s)
	}
	var sb strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "") == s
}

func latin1ToUTF8(s string) string {
	runes := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		runes[i] = rune(s[i])
	}
	return string(runes)
}
