// Package apiclient sends single calls to the campus backend and classifies the result.
// It never retries and never refreshes credentials; that policy lives in package refresh
// and package session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/credentials"
)

const (
	headerRequestID    = "X-Request-ID"
	contentTypeJSON    = "application/json"
	defaultUserAgent   = "campus-auth-client"
	defaultHTTPTimeout = 30 * time.Second
)

// TokenReader is the part of the credential store the executor reads.
type TokenReader interface {
	Tokens() (credentials.Pair, bool)
}

// Request describes one call. Path is relative to the executor's base URL.
type Request struct {
	Method       string
	Path         string
	Body         any  // JSON encoded when non-nil
	RequiresAuth bool // attach the stored access token as a bearer credential
}

type Executor struct {
	baseURL   string
	client    *http.Client
	tokens    TokenReader
	userAgent string
	log       zerolog.Logger
}

type Option func(*Executor)

// WithHTTPClient replaces the default client. Timeouts are the client's concern.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func WithUserAgent(ua string) Option {
	return func(e *Executor) { e.userAgent = ua }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.client = &http.Client{Timeout: d} }
}

func NewExecutor(baseURL string, tokens TokenReader, opts ...Option) *Executor {
	e := &Executor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		tokens:    tokens,
		userAgent: defaultUserAgent,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends req and returns the raw JSON body of a 2xx response. Every other
// outcome is an *Error.
func (e *Executor) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindClient, Message: "encoding request body", Err: err}
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, e.baseURL+req.Path, body)
	if err != nil {
		return nil, &Error{Kind: KindClient, Message: "building request", Err: err}
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set(headerRequestID, requestID)

	if req.RequiresAuth && e.tokens != nil {
		if pair, ok := e.tokens.Tokens(); ok {
			pair.OAuth2Token().SetAuthHeader(httpReq)
		}
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.log.Debug().Err(err).
			Str("method", method).
			Str("path", req.Path).
			Str("request_id", requestID).
			Msg("request failed before a response")
		return nil, &Error{Kind: KindTransport, Message: "no response", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Status: resp.StatusCode, Message: "reading response body", Err: err}
	}

	e.log.Debug().
		Str("method", method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("request_id", requestID).
		Bool("auth", httpReq.Header.Get("Authorization") != "").
		Msg("api call")

	if !json.Valid(data) {
		return nil, &Error{
			Kind:    KindTransport,
			Status:  resp.StatusCode,
			Message: "response body is not JSON",
			Err:     fmt.Errorf("%d bytes of %q", len(data), resp.Header.Get("Content-Type")),
		}
	}

	var errBody authmodel.ErrorResponse
	_ = json.Unmarshal(data, &errBody) // non-object bodies leave it empty

	if kind := Classify(resp.StatusCode, errBody.Code); kind != 0 {
		msg := errBody.Error
		if msg == "" {
			msg = defaultErrorMessage
		}
		return nil, &Error{
			Kind:    kind,
			Status:  resp.StatusCode,
			Message: msg,
			Code:    errBody.Code,
		}
	}

	return json.RawMessage(data), nil
}

// Decode unmarshals a successful body into T. A body that does not fit T is a
// transport level failure: the server answered, but not with the agreed contract.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &Error{Kind: KindTransport, Message: "decoding response body", Err: err}
	}
	return v, nil
}
