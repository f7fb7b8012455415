// Package pdf handles inspection of the source document: validation, page
// count, and the content-derived identity that namespaces all artifacts.
package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
)

// identityHashLen is the number of content-hash hex characters appended to the
// document stem. Enough to keep same-named documents from colliding.
const identityHashLen = 8

// Inspector derives document identity and basic structure using go-fitz.
type Inspector struct {
	validator *Validator
}

// NewInspector creates a new inspector instance.
func NewInspector(logger *observability.Logger) *Inspector {
	return &Inspector{validator: NewValidator(logger)}
}

// Inspect validates the file, hashes its content, and opens it to count
// pages. The returned Document carries the identity every stage keys
// artifacts under.
func (i *Inspector) Inspect(ctx context.Context, path string) (*domain.Document, error) {
	if err := i.validator.ValidatePDFPath(path); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("read PDF %s", path), err)
	}

	hash := sha256.Sum256(data)
	sum := hex.EncodeToString(hash[:])

	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.ValidationError("failed to open PDF", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	return &domain.Document{
		ID:     Identity(path, sum),
		Path:   path,
		SHA256: sum,
		Pages:  pages,
	}, nil
}

// Identity builds the document identity from the file stem and content hash.
func Identity(path, sha256Hex string) domain.DocumentID {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	suffix := sha256Hex
	if len(suffix) > identityHashLen {
		suffix = suffix[:identityHashLen]
	}
	return domain.DocumentID(fmt.Sprintf("%s-%s", stem, suffix))
}
