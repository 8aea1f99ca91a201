package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jogardn/office-meals/internal/connectivity"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout = 10 * time.Second

	// storeKey is the identifier field name used by the CRUD service.
	storeKey = "_id"
)

// Request addresses one CRUD call. Collection is the path segment under
// /api ("orders", "shops", "login", ...).
type Request struct {
	Collection string
	Method     string
	ID         string
	Query      url.Values
	Body       interface{}
}

func (r Request) path() string {
	p := "/" + strings.Trim(r.Collection, "/")
	if r.ID != "" {
		p += "/" + url.PathEscape(r.ID)
	}
	if len(r.Query) > 0 {
		p += "?" + r.Query.Encode()
	}
	return p
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tracker    *connectivity.Tracker
	logger     *logrus.Logger
}

// NewClient builds a gateway to the CRUD service rooted at baseURL
// (for example http://localhost:5000/api). Every call goes through tracker.
func NewClient(baseURL string, timeout time.Duration, tracker *connectivity.Tracker, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracker: tracker,
		logger:  logger,
	}
}

// WithTransport swaps the underlying round tripper. Used by tests.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.httpClient.Transport = rt
	return c
}

func (c *Client) Tracker() *connectivity.Tracker {
	return c.tracker
}

// Send performs one call. The returned payload is a single document or an
// array of documents with the store's identifier key already renamed to "id".
//
// While the tracker reports the remote unreachable, Send fails fast with
// ErrRemoteUnavailable without touching the network.
func (c *Client) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	return c.send(ctx, req, c.tracker.Execute)
}

// Probe lists the given collection bypassing the unreachable state. A
// successful round-trip marks the remote reachable again.
func (c *Client) Probe(ctx context.Context, collection string) error {
	_, err := c.send(ctx, Request{Collection: collection, Method: http.MethodGet}, c.tracker.Force)
	return err
}

func (c *Client) send(ctx context.Context, req Request, run func(func() error) error) (json.RawMessage, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var payload json.RawMessage
	var roundTripErr error

	err := run(func() error {
		payload, roundTripErr = c.do(ctx, req)
		if isTransportFailure(roundTripErr) {
			return roundTripErr
		}
		if roundTripErr != nil && ctx.Err() != nil {
			return fmt.Errorf("%w: %w", connectivity.ErrAborted, roundTripErr)
		}
		return nil
	})

	switch {
	case errors.Is(err, connectivity.ErrUnreachable):
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRemoteUnavailable, req.Method, req.Collection, err)
	case err != nil && isTransportFailure(err):
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method":     req.Method,
			"collection": req.Collection,
		}).Warn("Remote store unreachable, switching to local cache")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRemoteUnavailable, req.Method, req.Collection, err)
	}

	return payload, roundTripErr
}

func (c *Client) do(ctx context.Context, req Request) (json.RawMessage, error) {
	var body io.Reader
	if req.Body != nil {
		jsonData, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", req.Collection, err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.path(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: fmt.Errorf("failed to send request to remote store: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: fmt.Errorf("failed to read remote store response: %w", err)}
	}

	c.logger.WithFields(logrus.Fields{
		"method":     req.Method,
		"collection": req.Collection,
		"status":     resp.StatusCode,
	}).Debug("Received response from remote store")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, req.Collection, req.ID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(raw)}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	mapped, err := renameIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", req.Collection, err)
	}
	return mapped, nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

// renameIDs moves the store key to "id" on a document or on every element of
// a document array. Nested values are left untouched.
func renameIDs(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '{':
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		renameKey(doc)
		return json.Marshal(doc)
	case '[':
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
		for i, d := range docs {
			d = bytes.TrimSpace(d)
			if len(d) == 0 || d[0] != '{' {
				continue
			}
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(d, &doc); err != nil {
				return nil, err
			}
			renameKey(doc)
			out, err := json.Marshal(doc)
			if err != nil {
				return nil, err
			}
			docs[i] = out
		}
		return json.Marshal(docs)
	default:
		return json.RawMessage(trimmed), nil
	}
}

func renameKey(doc map[string]json.RawMessage) {
	v, ok := doc[storeKey]
	if !ok {
		return
	}
	delete(doc, storeKey)
	doc["id"] = v
}
