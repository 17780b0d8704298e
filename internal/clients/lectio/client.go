// Package lectio provides a client for the lectio analysis and catalog service
package lectio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
)

const (
	DefaultBaseURL   = "http://localhost:8000/api"
	DefaultTimeout   = 60 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements interfaces.ServiceClient
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new service client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lectio API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// IsRateLimited reports whether err is an HTTP 429.
func IsRateLimited(err error) bool {
	return IsStatus(err, http.StatusTooManyRequests)
}

// do performs a rate-limited request. result may be nil; a []byte pointer
// receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", method).Str("path", path).Msg("lectio API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(msg) == 0 {
			msg = []byte(http.StatusText(resp.StatusCode))
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Endpoint:   path,
		}
	}

	switch out := result.(type) {
	case nil:
		return nil
	case *[]byte:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		*out = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", result)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", result)
}

// --- Catalog ---

// ListBooks retrieves every book in canonical order
func (c *Client) ListBooks(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := c.get(ctx, "/books/", &books); err != nil {
		return nil, err
	}
	return books, nil
}

// GetBook retrieves one book by abbreviation
func (c *Client) GetBook(ctx context.Context, abbr string) (*models.Book, error) {
	var book models.Book
	if err := c.get(ctx, "/books/abbr/"+url.PathEscape(abbr), &book); err != nil {
		return nil, err
	}
	if book.Abbreviation == "" {
		book.Abbreviation = abbr
	}
	return &book, nil
}

// GetVerses retrieves the ordered verses of a chapter
func (c *Client) GetVerses(ctx context.Context, book string, chapter int) ([]models.Verse, error) {
	var verses []models.Verse
	path := fmt.Sprintf("/verses/by-reference/%s/%d", url.PathEscape(book), chapter)
	if err := c.get(ctx, path, &verses); err != nil {
		return nil, err
	}
	return verses, nil
}

// --- Analysis ---

type analyzeRequest struct {
	Verse               string `json:"verse"`
	Reference           string `json:"reference"`
	IncludeTranslations bool   `json:"include_translations"`
	IncludeTheological  bool   `json:"include_theological"`
}

// AnalyzeVerse requests the full analysis of a verse
func (c *Client) AnalyzeVerse(ctx context.Context, text, reference string) (*models.AnalysisResponse, error) {
	var resp models.AnalysisResponse
	req := analyzeRequest{Verse: text, Reference: reference, IncludeTranslations: true, IncludeTheological: true}
	if err := c.postJSON(ctx, "/dictionary/analyze/verse", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type translateRequest struct {
	Verse    string `json:"verse"`
	Language string `json:"language"`
}

type translateResponse struct {
	Success     bool   `json:"success"`
	Translation string `json:"translation"`
	Error       string `json:"error,omitempty"`
}

// Translate translates a verse into one language
func (c *Client) Translate(ctx context.Context, text, language string) (string, error) {
	var resp translateResponse
	if err := c.postJSON(ctx, "/dictionary/translate", translateRequest{Verse: text, Language: language}, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Translation == "" {
		reason := resp.Error
		if reason == "" {
			reason = "empty translation"
		}
		return "", fmt.Errorf("translate %s: %s", language, reason)
	}
	return resp.Translation, nil
}

// RelatedVerses lists verses containing a word key. A 404 is an empty list.
// The service answers with either a bare list or {"verses": [...]}.
func (c *Client) RelatedVerses(ctx context.Context, key string) ([]models.RelatedVerse, error) {
	var raw json.RawMessage
	err := c.get(ctx, "/dictionary/word/"+url.PathEscape(key)+"/verses", &raw)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []models.RelatedVerse
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Verses []models.RelatedVerse `json:"verses"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode related verses: %w", err)
	}
	return wrapped.Verses, nil
}

// --- Audio ---

func audioPath(pos models.Position) string {
	return fmt.Sprintf("/audio/%s/%d/%d", url.PathEscape(pos.Book), pos.Chapter, pos.Verse)
}

// AudioExists checks for a clip with HEAD. A 404 is (false, nil).
func (c *Client) AudioExists(ctx context.Context, pos models.Position) (bool, error) {
	err := c.do(ctx, http.MethodHead, audioPath(pos), nil, "", nil)
	if IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetAudio downloads the clip bytes
func (c *Client) GetAudio(ctx context.Context, pos models.Position) ([]byte, error) {
	var data []byte
	if err := c.get(ctx, audioPath(pos), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// UploadRecording posts a take as multipart form field "audio"
func (c *Client) UploadRecording(ctx context.Context, pos models.Position, filename string, data []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.WriteField("reference", pos.Ref()); err != nil {
		return fmt.Errorf("failed to write form field: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	c.logger.Info().Str("ref", pos.Ref()).Int("bytes", len(data)).Msg("Uploading recording")
	return c.do(ctx, http.MethodPost, audioPath(pos), &body, w.FormDataContentType(), nil)
}

var _ interfaces.ServiceClient = (*Client)(nil)
