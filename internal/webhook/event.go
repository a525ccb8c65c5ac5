// Package webhook normalises the payloads Lark automations and event
// subscriptions send into a single analysis request.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/lark"
	"github.com/runixer/rara/internal/pipeline"
)

// TypeURLVerification is the event type of the endpoint ownership handshake.
const TypeURLVerification = "url_verification"

// maxAttachmentInfo caps the attachment description passed to the prompt.
const maxAttachmentInfo = 2000

type Kind string

const (
	KindVerification Kind = "verification"
	KindDocument     Kind = "document"
	// KindUnknown is a payload without any file reference; it is answered
	// as missing file_token without touching Lark or the model.
	KindUnknown Kind = "unknown"
)

// Event is a parsed inbound payload.
type Event struct {
	Kind Kind

	// Challenge is echoed back verbatim for KindVerification.
	Challenge json.RawMessage

	// Token is the verification token the sender presented, if any.
	Token string

	// EventType is header.event_type of a 2.0 event envelope, if any.
	EventType string

	// Input is the normalised analysis request for KindDocument and KindUnknown.
	Input pipeline.Input
}

type handshake struct {
	Type      string          `json:"type"`
	Challenge json.RawMessage `json:"challenge"`
}

type envelope struct {
	Token  string `json:"token"`
	Header *struct {
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event   *documentFields `json:"event"`
	Encrypt string          `json:"encrypt"`

	documentFields
}

// documentFields covers both observed shapes: {file_token, file_name} and
// {attachment, judul, jenis, pesan}. English aliases are accepted for the
// metadata.
type documentFields struct {
	FileToken  string          `json:"file_token"`
	FileName   string          `json:"file_name"`
	Attachment json.RawMessage `json:"attachment"`

	Judul   string `json:"judul"`
	Jenis   string `json:"jenis"`
	Pesan   string `json:"pesan"`
	Title   string `json:"title"`
	DocType string `json:"doc_type"`
	Note    string `json:"note"`
}

type attachment struct {
	FileToken string `json:"file_token"`
	FileName  string `json:"file_name"`
	// Lark Base attachment cells use name instead of file_name.
	Name string `json:"name"`
}

// Parse decodes body. The handshake is recognised before anything else is
// looked at, so a verification payload is answered even when its other
// fields would not decode.
func Parse(body []byte) (Event, error) {
	const op = "parse payload"

	if len(bytes.TrimSpace(body)) == 0 {
		return Event{}, apperr.Validation(op, errors.New("empty body"))
	}

	var hs handshake
	if err := json.Unmarshal(body, &hs); err != nil {
		return Event{}, apperr.Validation(op, err)
	}
	if hs.Type == TypeURLVerification {
		challenge := hs.Challenge
		if len(challenge) == 0 {
			challenge = json.RawMessage(`""`)
		}
		return Event{Kind: KindVerification, Challenge: challenge}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, apperr.Validation(op, err)
	}
	if env.Encrypt != "" {
		return Event{}, apperr.Validation(op, errors.New("encrypted events are not supported, disable the encrypt key"))
	}

	fields := env.documentFields
	if !fields.hasFileReference() && env.Event != nil {
		fields = *env.Event
	}

	input, err := fields.input()
	if err != nil {
		return Event{}, apperr.Validation(op, err)
	}

	token := env.Token
	var eventType string
	if env.Header != nil {
		eventType = env.Header.EventType
		if token == "" {
			token = env.Header.Token
		}
	}

	kind := KindDocument
	if strings.TrimSpace(input.File.Token) == "" {
		kind = KindUnknown
	}

	return Event{Kind: kind, Token: token, EventType: eventType, Input: input}, nil
}

func (f documentFields) hasFileReference() bool {
	return f.FileToken != "" || len(f.Attachment) > 0
}

func (f documentFields) input() (pipeline.Input, error) {
	attachments, err := parseAttachments(f.Attachment)
	if err != nil {
		return pipeline.Input{}, err
	}

	ref := lark.FileReference{
		Token: strings.TrimSpace(f.FileToken),
		Name:  strings.TrimSpace(f.FileName),
	}
	if len(attachments) > 0 {
		first := attachments[0]
		if ref.Token == "" {
			ref.Token = strings.TrimSpace(first.FileToken)
		}
		if ref.Name == "" {
			ref.Name = strings.TrimSpace(firstNonEmpty(first.FileName, first.Name))
		}
	}

	return pipeline.Input{
		File:       ref,
		Title:      firstNonEmpty(f.Judul, f.Title),
		DocType:    firstNonEmpty(f.Jenis, f.DocType),
		Note:       firstNonEmpty(f.Pesan, f.Note),
		Attachment: attachmentInfo(f.Attachment),
	}, nil
}

// parseAttachments accepts a single attachment object or a list of them
// (Lark Base sends attachment fields as arrays).
func parseAttachments(raw json.RawMessage) ([]attachment, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var list []attachment
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		return list, nil
	case '{':
		var one attachment
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		return []attachment{one}, nil
	default:
		return nil, errors.New("attachment must be an object or an array of objects")
	}
}

// attachmentInfo is the raw attachment JSON, compacted, for the prompt.
func attachmentInfo(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return ""
	}
	info := buf.String()
	if len(info) > maxAttachmentInfo {
		info = info[:maxAttachmentInfo] + "..."
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
