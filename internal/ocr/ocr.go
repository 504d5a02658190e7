// Package ocr extracts text, typed entities and line-item cells from invoice
// documents.
package ocr

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
	"github.com/wheelerbb/gcp-invoice-intel/pkg/docai"
)

// Client extracts a RawExtraction from one document.
type Client interface {
	Extract(ctx context.Context, doc Document) (*model.RawExtraction, error)
	Name() string
}

// Document is an invoice file handed to the extractor.
type Document struct {
	Name     string
	Content  []byte
	MIMEType string
}

// ErrUnsupportedFileType is returned for content the extractor cannot read.
var ErrUnsupportedFileType = eris.New("ocr: unsupported file type")

// MIME types accepted for extraction.
const (
	MIMEPDF  = "application/pdf"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMETIFF = "image/tiff"
	MIMEGIF  = "image/gif"
	MIMEWEBP = "image/webp"
)

var supportedTypes = map[string]bool{
	MIMEPDF:  true,
	MIMEPNG:  true,
	MIMEJPEG: true,
	MIMETIFF: true,
	MIMEGIF:  true,
	MIMEWEBP: true,
}

// DetectMIME resolves the document's media type from its declared type, its
// file extension and finally its leading bytes. It returns
// ErrUnsupportedFileType when none of them name a supported type.
func DetectMIME(doc Document) (string, error) {
	candidates := []string{doc.MIMEType}
	if ext := strings.ToLower(filepath.Ext(doc.Name)); ext != "" {
		candidates = append(candidates, mime.TypeByExtension(ext))
	}
	if len(doc.Content) > 0 {
		candidates = append(candidates, http.DetectContentType(doc.Content))
	}
	for _, c := range candidates {
		mt, _, err := mime.ParseMediaType(c)
		if err != nil {
			continue
		}
		if supportedTypes[mt] {
			return mt, nil
		}
	}
	return "", eris.Wrapf(ErrUnsupportedFileType, "ocr: %s", doc.Name)
}

// ErrorKind classifies extraction service failures.
type ErrorKind string

// Extraction error kinds.
const (
	KindRateLimited      ErrorKind = "rate_limited"
	KindInvalidProcessor ErrorKind = "invalid_processor"
	KindTransient        ErrorKind = "transient"
	KindService          ErrorKind = "service"
)

// ServiceError is returned by Client implementations when the backing
// service fails.
type ServiceError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ocr: %s %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ocr: %s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// classify wraps a service failure. Rate limits and server-side failures are
// transient; a missing or misconfigured processor is permanent. retryAfter is
// the service's Retry-After header, possibly empty.
func classify(provider string, status int, retryAfter string, err error) error {
	se := &ServiceError{Provider: provider, StatusCode: status, Err: err}
	switch {
	case status == http.StatusTooManyRequests:
		se.Kind = KindRateLimited
	case status == http.StatusBadRequest, status == http.StatusUnauthorized,
		status == http.StatusForbidden, status == http.StatusNotFound:
		se.Kind = KindInvalidProcessor
		return resilience.Permanent(se)
	case resilience.IsTransientHTTPStatus(status), status == 0 && resilience.IsTransient(err):
		se.Kind = KindTransient
	default:
		se.Kind = KindService
		return se
	}
	te := resilience.NewTransientError(se, status)
	te.RetryAfter = resilience.ParseRetryAfter(retryAfter, time.Now())
	return te
}

// New creates the Client selected by the extraction config.
func New(cfg config.ExtractionConfig) (Client, error) {
	switch cfg.Provider {
	case "documentai", "":
		d := cfg.DocumentAI
		if d.ProjectID == "" || d.Location == "" || d.ProcessorID == "" {
			return nil, eris.New("ocr: documentai provider requires project_id, location and processor_id")
		}
		opts := []docai.Option{docai.WithAccessToken(d.AccessToken)}
		if d.Endpoint != "" {
			opts = append(opts, docai.WithBaseURL(d.Endpoint))
		}
		return NewDocumentAI(docai.NewClient(d.ProjectID, d.Location, d.ProcessorID, opts...)), nil
	case "text":
		ext, err := NewExtractor(cfg.Text)
		if err != nil {
			return nil, err
		}
		return NewTextClient(ext), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
