package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/inbucket/html2text"
	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

const (
	visionSystemPrompt = `You transcribe school administration notices. Return all readable text from the image exactly as written, ` +
		`keeping table rows on separate lines and columns separated by " | ". Do not summarize or add commentary. ` +
		`If the image has no readable text, describe what it shows in one sentence.`
	pageUserPrompt  = "Transcribe this document page."
	imageUserPrompt = "Transcribe this image."
)

// Pipeline turns uploaded artifacts into payloads with extracted text.
type Pipeline struct {
	ai   core.AIProvider
	docs core.DocumentOpener
	cfg  config.IngestConfig
}

func NewPipeline(ai core.AIProvider, docs core.DocumentOpener, cfg *config.IngestConfig) *Pipeline {
	return &Pipeline{ai: ai, docs: docs, cfg: *cfg}
}

// Extract returns a payload for a or an error. Errors are
// *core.ValidationError for empty submissions and *core.ExtractionFailure
// for everything that could not be read.
func (p *Pipeline) Extract(ctx context.Context, a core.Artifact) (core.Payload, error) {
	if a.IsText() {
		if strings.TrimSpace(a.Text) == "" {
			return nil, &core.ValidationError{Field: "content", Message: "message is empty"}
		}
		return core.TextPayload{Body: a.Text}, nil
	}

	if p.cfg.MaxArtifactBytes > 0 && int64(len(a.Data)) > p.cfg.MaxArtifactBytes {
		return nil, &core.ExtractionFailure{
			Reason: core.ReasonUnsupported,
			Err:    fmt.Errorf("artifact is %d bytes, limit %d", len(a.Data), p.cfg.MaxArtifactBytes),
		}
	}

	mediaType := detectMediaType(a)
	logger := log.FromCtx(ctx).With().Str("media_type", mediaType).Str("file", a.FileName).Logger()
	logger.Debug().Int("bytes", len(a.Data)).Msg("extracting artifact")

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return p.extractImage(ctx, a, mediaType)
	case mediaType == "application/pdf":
		return p.extractDocument(ctx, a, mediaType)
	case mediaType == "text/html":
		return p.extractHTML(a, mediaType)
	case mediaType == "text/plain" || mediaType == "text/csv":
		return p.extractPlain(a, mediaType)
	default:
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: fmt.Errorf("unsupported type %s", mediaType)}
	}
}

// detectMediaType trusts a specific declared type and sniffs otherwise.
func detectMediaType(a core.Artifact) string {
	declared := strings.ToLower(strings.TrimSpace(strings.Split(a.MediaType, ";")[0]))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed := http.DetectContentType(a.Data)
	mediaType := strings.TrimSpace(strings.Split(sniffed, ";")[0])
	if mediaType == "text/plain" && strings.HasSuffix(strings.ToLower(a.FileName), ".csv") {
		return "text/csv"
	}
	return mediaType
}

func (p *Pipeline) extractImage(ctx context.Context, a core.Artifact, mediaType string) (core.Payload, error) {
	text, err := p.vision(ctx, core.Image{MediaType: mediaType, Data: a.Data}, imageUserPrompt)
	if err != nil {
		return nil, failure(err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: errors.New("vision returned no text")}
	}
	return core.ImagePayload{
		FileName:  a.FileName,
		MediaType: mediaType,
		Caption:   a.Caption,
		Extracted: text,
	}, nil
}

func (p *Pipeline) extractHTML(a core.Artifact, mediaType string) (core.Payload, error) {
	text, err := html2text.FromReader(bytes.NewReader(a.Data), html2text.Options{PrettyTables: true})
	if err != nil {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: fmt.Errorf("html: %w", err)}
	}
	return documentText(a, mediaType, text)
}

func (p *Pipeline) extractPlain(a core.Artifact, mediaType string) (core.Payload, error) {
	if !utf8.Valid(a.Data) {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: errors.New("text is not valid UTF-8")}
	}
	return documentText(a, mediaType, string(a.Data))
}

func documentText(a core.Artifact, mediaType, text string) (core.Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: errors.New("document has no text")}
	}
	return core.DocumentPayload{
		FileName:  a.FileName,
		MediaType: mediaType,
		Pages:     1,
		Extracted: text,
	}, nil
}

func (p *Pipeline) vision(ctx context.Context, img core.Image, prompt string) (string, error) {
	msg, err := p.ai.Chat(ctx, []core.Message{
		{Role: core.ChatSystem, Content: visionSystemPrompt},
		{Role: core.ChatUser, Content: prompt, Images: []core.Image{img}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

// failure maps a provider error to an ExtractionFailure. The provider has
// already retried, so a transient error here means retries ran out.
func failure(err error) error {
	var ef *core.ExtractionFailure
	if errors.As(err, &ef) {
		return ef
	}
	if core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return &core.ExtractionFailure{Reason: core.ReasonTransientExhausted, Err: err}
	}
	return &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: err}
}
