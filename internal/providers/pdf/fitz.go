package pdf

import (
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/sandevgo/reliefdesk/internal/core"
)

// Opener opens paginated documents (PDF, XPS, EPUB) with MuPDF.
type Opener struct{}

func NewOpener() *Opener {
	return &Opener{}
}

func (Opener) Open(data []byte) (core.Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return &document{doc: doc}, nil
}

// document serializes access; a MuPDF context is not safe for concurrent use.
type document struct {
	mu  sync.Mutex
	doc *fitz.Document
}

func (d *document) NumPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

func (d *document) Text(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, err := d.doc.Text(page)
	if err != nil {
		return "", fmt.Errorf("page %d text: %w", page+1, err)
	}
	return text, nil
}

func (d *document) RenderPNG(page int, dpi float64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.doc.ImagePNG(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("page %d render: %w", page+1, err)
	}
	return img, nil
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
