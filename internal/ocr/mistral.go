package ocr

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR reads scanned invoices through the Mistral OCR API. Documents
// are sent inline as data URLs, so nothing has to be uploaded first.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR returns a MistralOCR using model, or the default OCR model
// when model is empty.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	return &MistralOCR{
		apiKey:   apiKey,
		model:    cmp.Or(model, defaultMistralModel),
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name implements Extractor.
func (m *MistralOCR) Name() string { return "mistral" }

// Accepts implements Extractor. PDFs and any image type are read.
func (m *MistralOCR) Accepts(mimeType string) bool {
	return mimeType == MIMEPDF || strings.HasPrefix(mimeType, "image/")
}

type mistralOCRRequest struct {
	Model              string             `json:"model"`
	Document           mistralOCRDocument `json:"document"`
	IncludeImageBase64 bool               `json:"include_image_base64"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Pages     []mistralOCRPage `json:"pages"`
	UsageInfo struct {
		PagesProcessed int `json:"pages_processed"`
	} `json:"usage_info"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractText implements Extractor. Page markdown is joined in page order
// with form feeds between pages.
func (m *MistralOCR) ExtractText(ctx context.Context, doc Document, mimeType string) (string, error) {
	body, err := json.Marshal(m.request(doc.Content, mimeType))
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "ocr: mistral API call")
		}
		return "", classify(m.Name(), 0, "", eris.Wrap(err, "ocr: mistral API call"))
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", classify(m.Name(), resp.StatusCode, resp.Header.Get("Retry-After"),
			eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(raw)))
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	zap.L().Debug("ocr: mistral pages read",
		zap.String("file", doc.Name),
		zap.Int("pages", len(out.Pages)),
		zap.Int("pages_processed", out.UsageInfo.PagesProcessed),
	)

	slices.SortStableFunc(out.Pages, func(a, b mistralOCRPage) int { return a.Index - b.Index })
	pages := make([]string, len(out.Pages))
	for i, p := range out.Pages {
		pages[i] = p.Markdown
	}
	return strings.Join(pages, pageBreak), nil
}

func (m *MistralOCR) request(content []byte, mimeType string) mistralOCRRequest {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content)
	req := mistralOCRRequest{Model: m.model}
	if mimeType == MIMEPDF {
		req.Document = mistralOCRDocument{Type: "document_url", DocumentURL: dataURL}
	} else {
		req.Document = mistralOCRDocument{Type: "image_url", ImageURL: dataURL}
	}
	return req
}
