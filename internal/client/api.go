// ABOUTME: REST client for the gateway's thread and message API
// ABOUTME: Posting through API.SendMessage is the only way a client writes a message

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/souk-gateway/internal/wire"
)

// DefaultHTTPTimeout applies when NewAPI is given a nil http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// API calls the gateway's HTTP endpoints with a bearer token.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a REST client for the gateway at baseURL.
func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// do sends a request and decodes a JSON response into out. It returns the
// response status code.
func (a *API) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp wire.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Me returns the caller's identity.
func (a *API) Me(ctx context.Context) (*wire.Me, error) {
	var me wire.Me
	if _, err := a.do(ctx, http.MethodGet, "/api/me", nil, nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Participants lists participants with the given role. An empty role lists
// the caller's counterparts.
func (a *API) Participants(ctx context.Context, role string) ([]wire.Participant, error) {
	path := "/api/participants"
	if role != "" {
		path += "?role=" + url.QueryEscape(role)
	}
	var list wire.ParticipantList
	if _, err := a.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Participants, nil
}

// ListThreads returns the caller's threads, most recent activity first.
// A non-positive limit uses the server default.
func (a *API) ListThreads(ctx context.Context, limit int) ([]wire.ThreadSummary, error) {
	path := "/api/threads"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list wire.ThreadList
	if _, err := a.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Threads, nil
}

// OpenThread finds or creates the thread with partnerID. created reports
// whether the gateway created it.
func (a *API) OpenThread(ctx context.Context, partnerID string) (thread *wire.Thread, created bool, err error) {
	var t wire.Thread
	status, err := a.do(ctx, http.MethodPost, "/api/threads", wire.CreateThreadRequest{PartnerID: partnerID}, nil, &t)
	if err != nil {
		return nil, false, err
	}
	return &t, status == http.StatusCreated, nil
}

// ListMessages returns messages with seq greater than afterSeq in append
// order. A non-positive limit returns all of them.
func (a *API) ListMessages(ctx context.Context, threadID string, afterSeq int64, limit int) ([]wire.Message, error) {
	q := url.Values{}
	if afterSeq > 0 {
		q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/threads/" + url.PathEscape(threadID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list wire.MessageList
	if _, err := a.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Messages, nil
}

// SendMessage appends a message to a thread. A non-empty idempotencyKey
// makes retries safe: a repeat returns the original message with replayed set.
func (a *API) SendMessage(ctx context.Context, threadID, content, idempotencyKey string) (msg *wire.Message, replayed bool, err error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{wire.IdempotencyKeyHeader: idempotencyKey}
	}

	var m wire.Message
	path := "/api/threads/" + url.PathEscape(threadID) + "/messages"
	status, err := a.do(ctx, http.MethodPost, path, wire.SendMessageRequest{Content: content}, headers, &m)
	if err != nil {
		return nil, false, err
	}
	return &m, status == http.StatusOK, nil
}
