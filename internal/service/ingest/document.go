package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

// extractDocument reads native page text first. When the average page yields
// fewer than SparseCharsPerPage characters, the first MaxFallbackPages pages
// are rendered and transcribed by the vision model instead.
func (p *Pipeline) extractDocument(ctx context.Context, a core.Artifact, mediaType string) (core.Payload, error) {
	logger := log.FromCtx(ctx)

	doc, err := p.docs.Open(a.Data)
	if err != nil {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: err}
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: errors.New("document has no pages")}
	}
	limit := total
	if p.cfg.MaxPages > 0 && limit > p.cfg.MaxPages {
		limit = p.cfg.MaxPages
	}

	pages := make([]string, limit)
	chars := 0
	for i := range pages {
		text, err := doc.Text(i)
		if err != nil {
			logger.Warn().Err(err).Int("page", i+1).Msg("native text extraction failed")
			continue
		}
		pages[i] = strings.TrimSpace(text)
		chars += utf8.RuneCountInString(pages[i])
	}

	var (
		fallback []int
		lastErr  error
	)
	if chars/limit < p.cfg.SparseCharsPerPage {
		logger.Info().Int("pages", limit).Int("chars", chars).Msg("sparse document, using page images")

		for i := 0; i < limit && i < p.cfg.MaxFallbackPages; i++ {
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			img, err := doc.RenderPNG(i, p.cfg.RenderDPI)
			if err != nil {
				lastErr = err
				logger.Warn().Err(err).Int("page", i+1).Msg("page render failed")
				continue
			}
			text, err := p.vision(ctx, core.Image{MediaType: "image/png", Data: img}, pageUserPrompt)
			if err != nil {
				lastErr = err
				logger.Warn().Err(err).Int("page", i+1).Msg("page transcription failed")
				continue
			}
			if text != "" {
				pages[i] = text
				fallback = append(fallback, i+1)
			}
		}
	}

	var b strings.Builder
	for i, text := range pages {
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", i+1, text)
	}

	if b.Len() == 0 {
		if lastErr != nil {
			return nil, failure(lastErr)
		}
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported, Err: errors.New("document has no readable text")}
	}

	return core.DocumentPayload{
		FileName:      a.FileName,
		MediaType:     mediaType,
		Pages:         total,
		FallbackPages: fallback,
		Extracted:     b.String(),
	}, nil
}
