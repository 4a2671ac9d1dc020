package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAI struct {
	mu     sync.Mutex
	calls  int
	images int
	reply  func(call int) (string, error)
}

func (f *fakeAI) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	for _, m := range history {
		f.images += len(m.Images)
	}
	f.mu.Unlock()

	text, err := f.reply(call)
	return core.Message{Role: core.ChatAssistant, Content: text}, err
}

type fakeDoc struct {
	pages    []string
	rendered []int
	closed   bool
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) Text(page int) (string, error) { return d.pages[page], nil }

func (d *fakeDoc) RenderPNG(page int, dpi float64) ([]byte, error) {
	d.rendered = append(d.rendered, page+1)
	return []byte(fmt.Sprintf("png-%d", page+1)), nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	doc *fakeDoc
	err error
}

func (o fakeOpener) Open(data []byte) (core.Document, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

var pdfBytes = []byte("%PDF-1.7\n%fake")

func testConfig() *config.IngestConfig {
	return &config.IngestConfig{
		MaxPages:           10,
		MaxFallbackPages:   2,
		SparseCharsPerPage: 100,
		RenderDPI:          150,
		MaxArtifactBytes:   1 << 20,
	}
}

func TestExtract_TextUnchanged(t *testing.T) {
	ai := &fakeAI{reply: func(int) (string, error) { return "", nil }}
	p := NewPipeline(ai, fakeOpener{}, testConfig())

	payload, err := p.Extract(context.Background(), core.Artifact{Text: "  Room 12 change  "})
	require.NoError(t, err)
	assert.Equal(t, core.TextPayload{Body: "  Room 12 change  "}, payload)
	assert.Zero(t, ai.calls)

	_, err = p.Extract(context.Background(), core.Artifact{Text: "   "})
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestExtract_ImageUsesVisionVerbatim(t *testing.T) {
	ai := &fakeAI{reply: func(int) (string, error) { return "Hall closed today", nil }}
	p := NewPipeline(ai, fakeOpener{}, testConfig())

	png := []byte("\x89PNG\r\n\x1a\n0000")
	payload, err := p.Extract(context.Background(), core.Artifact{Data: png, FileName: "notice.png", Caption: "board"})
	require.NoError(t, err)

	img, ok := payload.(core.ImagePayload)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MediaType)
	assert.Equal(t, "Hall closed today", img.Extracted)
	assert.Equal(t, "board", img.Caption)
	assert.Equal(t, 1, ai.images)
}

func TestExtract_ImageTransientExhausted(t *testing.T) {
	ai := &fakeAI{reply: func(int) (string, error) {
		return "", &core.ExternalServiceError{Service: "llm", Status: 503, Transient: true, Err: errors.New("overloaded")}
	}}
	p := NewPipeline(ai, fakeOpener{}, testConfig())

	_, err := p.Extract(context.Background(), core.Artifact{Data: []byte("\xff\xd8\xff\xe0jpeg"), MediaType: "image/jpeg"})
	var ef *core.ExtractionFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, core.ReasonTransientExhausted, ef.Reason)
	assert.True(t, ef.Retryable())
}

func TestExtract_UnsupportedType(t *testing.T) {
	p := NewPipeline(&fakeAI{}, fakeOpener{}, testConfig())

	_, err := p.Extract(context.Background(), core.Artifact{Data: []byte{0x00, 0x01, 0x02, 0x03}, FileName: "blob.bin"})
	var ef *core.ExtractionFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, core.ReasonUnsupported, ef.Reason)
}

func TestExtract_HTMLAndCSV(t *testing.T) {
	p := NewPipeline(&fakeAI{}, fakeOpener{}, testConfig())

	payload, err := p.Extract(context.Background(), core.Artifact{
		Data:      []byte("<html><body><h1>Bulletin</h1><p>Assembly at 9</p></body></html>"),
		MediaType: "text/html; charset=utf-8",
	})
	require.NoError(t, err)
	assert.Equal(t, core.PayloadDocument, payload.Kind())
	assert.Contains(t, payload.Text(), "Assembly at 9")
	assert.NotContains(t, payload.Text(), "<p>")

	payload, err = p.Extract(context.Background(), core.Artifact{Data: []byte("period,teacher\n3,Mr Lee\n"), FileName: "relief.csv"})
	require.NoError(t, err)
	doc := payload.(core.DocumentPayload)
	assert.Equal(t, "text/csv", doc.MediaType)
	assert.Contains(t, doc.Extracted, "3,Mr Lee")
}

func TestExtract_DenseDocumentSkipsFallback(t *testing.T) {
	pages := []string{strings.Repeat("a", 150), strings.Repeat("b", 150)}
	doc := &fakeDoc{pages: pages}
	ai := &fakeAI{reply: func(int) (string, error) { return "vision", nil }}
	p := NewPipeline(ai, fakeOpener{doc: doc}, testConfig())

	payload, err := p.Extract(context.Background(), core.Artifact{Data: pdfBytes})
	require.NoError(t, err)

	assert.Zero(t, ai.calls)
	assert.Empty(t, doc.rendered)
	assert.True(t, doc.closed)
	assert.Equal(t, "--- Page 1 ---\n"+pages[0]+"\n\n--- Page 2 ---\n"+pages[1], payload.Text())
}

func TestExtract_SparseDocumentFallbackIsBounded(t *testing.T) {
	pages := make([]string, 10)
	pages[0] = "Relief"
	pages[1] = "List"
	doc := &fakeDoc{pages: pages}
	ai := &fakeAI{reply: func(call int) (string, error) { return fmt.Sprintf("vision text %d", call), nil }}
	p := NewPipeline(ai, fakeOpener{doc: doc}, testConfig())

	payload, err := p.Extract(context.Background(), core.Artifact{Data: pdfBytes, FileName: "relief.pdf"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, doc.rendered)
	assert.Equal(t, 2, ai.calls)

	result := payload.(core.DocumentPayload)
	assert.Equal(t, 10, result.Pages)
	assert.Equal(t, []int{1, 2}, result.FallbackPages)
	assert.Equal(t, "--- Page 1 ---\nvision text 1\n\n--- Page 2 ---\nvision text 2", result.Extracted)
	assert.NotContains(t, result.Extracted, "Page 3")
}

func TestExtract_PartialFallbackKeepsWhatWasObtained(t *testing.T) {
	doc := &fakeDoc{pages: make([]string, 4)}
	ai := &fakeAI{reply: func(call int) (string, error) {
		if call == 2 {
			return "", &core.ExternalServiceError{Service: "llm", Transient: true, Err: errors.New("timeout")}
		}
		return "page one text", nil
	}}
	p := NewPipeline(ai, fakeOpener{doc: doc}, testConfig())

	payload, err := p.Extract(context.Background(), core.Artifact{Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\npage one text", payload.Text())
}

func TestExtract_NothingObtainedFails(t *testing.T) {
	doc := &fakeDoc{pages: make([]string, 3)}
	ai := &fakeAI{reply: func(int) (string, error) {
		return "", &core.ExternalServiceError{Service: "llm", Transient: true, Err: errors.New("timeout")}
	}}
	p := NewPipeline(ai, fakeOpener{doc: doc}, testConfig())

	_, err := p.Extract(context.Background(), core.Artifact{Data: pdfBytes})
	var ef *core.ExtractionFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, core.ReasonTransientExhausted, ef.Reason)
}

func TestExtract_PageLimit(t *testing.T) {
	pages := make([]string, 15)
	for i := range pages {
		pages[i] = strings.Repeat("x", 200)
	}
	doc := &fakeDoc{pages: pages}
	p := NewPipeline(&fakeAI{}, fakeOpener{doc: doc}, testConfig())

	payload, err := p.Extract(context.Background(), core.Artifact{Data: pdfBytes})
	require.NoError(t, err)
	assert.Contains(t, payload.Text(), "--- Page 10 ---")
	assert.NotContains(t, payload.Text(), "--- Page 11 ---")
}

func TestExtract_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxArtifactBytes = 4
	p := NewPipeline(&fakeAI{}, fakeOpener{}, cfg)

	_, err := p.Extract(context.Background(), core.Artifact{Data: pdfBytes})
	var ef *core.ExtractionFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, core.ReasonUnsupported, ef.Reason)
}
