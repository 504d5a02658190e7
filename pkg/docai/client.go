// Package docai is a minimal REST client for Document AI processors.
package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client performs Document AI processing calls.
type Client interface {
	Process(ctx context.Context, content []byte, mimeType string) (*Document, error)
}

// Document is the processed document returned by the API.
type Document struct {
	Text     string   `json:"text"`
	MimeType string   `json:"mimeType"`
	Entities []Entity `json:"entities"`
	Pages    []Page   `json:"pages"`
}

// Entity is a typed mention found by the processor.
type Entity struct {
	Type            string           `json:"type"`
	MentionText     string           `json:"mentionText"`
	Confidence      float64          `json:"confidence"`
	NormalizedValue *NormalizedValue `json:"normalizedValue,omitempty"`
	TextAnchor      *TextAnchor      `json:"textAnchor,omitempty"`
	Properties      []Entity         `json:"properties,omitempty"`
}

// NormalizedValue is the processor's canonical rendering of a mention.
type NormalizedValue struct {
	Text string `json:"text"`
}

// TextAnchor points into Document.Text.
type TextAnchor struct {
	TextSegments []TextSegment `json:"textSegments"`
	Content      string        `json:"content,omitempty"`
}

// TextSegment is a half-open byte range. int64 fields are JSON strings on
// the wire and omitted when zero.
type TextSegment struct {
	StartIndex int64 `json:"startIndex,string,omitempty"`
	EndIndex   int64 `json:"endIndex,string,omitempty"`
}

// Page holds the tables detected on one page.
type Page struct {
	PageNumber int     `json:"pageNumber"`
	Tables     []Table `json:"tables"`
}

// Table is a detected table.
type Table struct {
	HeaderRows []TableRow `json:"headerRows"`
	BodyRows   []TableRow `json:"bodyRows"`
}

// TableRow is one row of a table.
type TableRow struct {
	Cells []TableCell `json:"cells"`
}

// TableCell is one cell; its text lives in Layout.TextAnchor.
type TableCell struct {
	Layout Layout `json:"layout"`
}

// Layout positions an element in the document text.
type Layout struct {
	TextAnchor *TextAnchor `json:"textAnchor,omitempty"`
	Confidence float64     `json:"confidence"`
}

// AnchorText resolves an anchor against the document text. Out of range
// segments are clamped.
func (d *Document) AnchorText(a *TextAnchor) string {
	if a == nil {
		return ""
	}
	if a.Content != "" {
		return a.Content
	}
	var b bytes.Buffer
	n := int64(len(d.Text))
	for _, s := range a.TextSegments {
		start, end := min(max(s.StartIndex, 0), n), min(max(s.EndIndex, 0), n)
		if end > start {
			b.WriteString(d.Text[start:end])
		}
	}
	return b.String()
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	// RetryAfter is the raw Retry-After header, if any.
	RetryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docai: status %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the regional API endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithAccessToken sets the OAuth bearer token sent with every request.
func WithAccessToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

type httpClient struct {
	processor string
	baseURL   string
	token     string
	http      *http.Client
}

// NewClient creates a client bound to one processor.
func NewClient(projectID, location, processorID string, opts ...Option) Client {
	c := &httpClient{
		processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID),
		baseURL:   fmt.Sprintf("https://%s-documentai.googleapis.com/v1", location),
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type processRequest struct {
	RawDocument rawDocument `json:"rawDocument"`
}

type rawDocument struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type processResponse struct {
	Document Document `json:"document"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *httpClient) Process(ctx context.Context, content []byte, mimeType string) (*Document, error) {
	body, err := json.Marshal(processRequest{RawDocument: rawDocument{
		Content:  base64.StdEncoding.EncodeToString(content),
		MimeType: mimeType,
	}})
	if err != nil {
		return nil, eris.Wrap(err, "docai: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.processor+":process", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "docai: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "docai: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "docai: read response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Message != "" {
			apiErr.Status = env.Error.Status
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	var result processResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "docai: unmarshal response")
	}

	return &result.Document, nil
}
