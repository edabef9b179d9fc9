package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 4 << 20

// Response is the envelope every typed call returns, successful or not.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Validator is implemented by payloads that check their own shape.
type Validator interface {
	Validate() error
}

// Client issues JSON requests to the management backend through a Transport.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL *url.URL, transport http.RoundTripper) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: transport},
		logger:     log.With().Str("component", "pipeline").Logger(),
	}
}

// HTTPClient is the underlying client, for callers that need raw responses.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// URL resolves path against the backend base URL.
func (c *Client) URL(path string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	return c.baseURL.ResolveReference(ref), nil
}

// Do sends body as JSON and decodes a 2xx payload into out. A payload that
// does not decode, or fails its own Validate, is an errors.ErrValidation.
//
// Non-2xx answers come back as a Response alongside an error whose kind
// follows the status: 403 is ErrForbidden, other 4xx ErrInvalidInput and
// 5xx ErrTransport. A session that cannot be recovered surfaces as
// *errors.NotAuthenticatedError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Response, error) {
	op := fmt.Sprintf("pipeline.Do %s %s", method, path)

	target, err := c.URL(path)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidInput, op, 0, err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.New(errors.ErrInvalidInput, op, 0, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidInput, op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var na *errors.NotAuthenticatedError
		if errors.As(err, &na) {
			return nil, na
		}
		return nil, errors.New(errors.ErrTransport, op, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.New(errors.ErrTransport, op, resp.StatusCode, err)
	}

	result := &Response{Status: resp.StatusCode}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		result.Message = envelope.Message
		result.Error = envelope.Error
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, errors.New(kindForStatus(resp.StatusCode), op, resp.StatusCode, backendMessage(result))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("response payload did not decode")
		return result, errors.New(errors.ErrValidation, op, resp.StatusCode, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			c.logger.Error().Err(err).Str("op", op).Msg("response payload failed validation")
			return result, errors.New(errors.ErrValidation, op, resp.StatusCode, err)
		}
	}
	return result, nil
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusForbidden:
		return errors.ErrForbidden
	case status == http.StatusUnauthorized:
		return errors.ErrNotAuthenticated
	case status >= 400 && status < 500:
		return errors.ErrInvalidInput
	default:
		return errors.ErrTransport
	}
}

func backendMessage(r *Response) error {
	switch {
	case r.Message != "":
		return fmt.Errorf("%s", r.Message)
	case r.Error != "":
		return fmt.Errorf("%s", r.Error)
	default:
		return nil
	}
}
