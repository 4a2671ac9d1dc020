package core

import (
	"encoding/json"
	"fmt"
	"time"
)

type PayloadKind string

const (
	PayloadText     PayloadKind = "text"
	PayloadImage    PayloadKind = "image"
	PayloadDocument PayloadKind = "document"
)

// Payload is the content of an Entry. Each kind carries only its own fields.
type Payload interface {
	Kind() PayloadKind
	Text() string
}

type TextPayload struct {
	Body string `json:"body"`
}

func (p TextPayload) Kind() PayloadKind { return PayloadText }
func (p TextPayload) Text() string      { return p.Body }

type ImagePayload struct {
	FileName   string `json:"file_name,omitempty"`
	MediaType  string `json:"media_type"`
	StoredPath string `json:"stored_path,omitempty"`
	Caption    string `json:"caption,omitempty"`
	Extracted  string `json:"extracted"`
}

func (p ImagePayload) Kind() PayloadKind { return PayloadImage }

func (p ImagePayload) Text() string {
	if p.Caption == "" {
		return p.Extracted
	}
	return p.Caption + "\n" + p.Extracted
}

type DocumentPayload struct {
	FileName      string `json:"file_name,omitempty"`
	MediaType     string `json:"media_type"`
	StoredPath    string `json:"stored_path,omitempty"`
	Pages         int    `json:"pages,omitempty"`
	FallbackPages []int  `json:"fallback_pages,omitempty"`
	Extracted     string `json:"extracted"`
}

func (p DocumentPayload) Kind() PayloadKind { return PayloadDocument }
func (p DocumentPayload) Text() string      { return p.Extracted }

func MarshalPayload(p Payload) (PayloadKind, []byte, error) {
	if p == nil {
		return "", nil, fmt.Errorf("nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return p.Kind(), data, nil
}

func UnmarshalPayload(kind PayloadKind, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case PayloadText:
		var v TextPayload
		err = json.Unmarshal(data, &v)
		p = v
	case PayloadImage:
		var v ImagePayload
		err = json.Unmarshal(data, &v)
		p = v
	case PayloadDocument:
		var v DocumentPayload
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", kind, err)
	}
	return p, nil
}

type OriginKind string

const (
	OriginInteractive OriginKind = "interactive"
	OriginExternal    OriginKind = "external"
)

// Origin tells where an Entry came from. ID and Source are set only for
// external entries.
type Origin struct {
	Kind   OriginKind
	ID     string
	Source string
}

// Entry is immutable once committed.
type Entry struct {
	ID         int64
	Category   string
	Payload    Payload
	Origin     Origin
	UploadedBy int64
	CreatedAt  time.Time
}

// Artifact is raw user or source content before extraction.
// Exactly one of Text or Data is set.
type Artifact struct {
	Text      string
	Caption   string
	FileName  string
	MediaType string
	Data      []byte
}

func (a Artifact) IsText() bool {
	return len(a.Data) == 0
}

// WithStoredPath returns p with the on-disk location of its source bytes.
// Text payloads have no source file and are returned unchanged.
func WithStoredPath(p Payload, path string) Payload {
	switch v := p.(type) {
	case ImagePayload:
		v.StoredPath = path
		return v
	case DocumentPayload:
		v.StoredPath = path
		return v
	default:
		return p
	}
}
