// Package upstream is a typed client for the Salt master's rest_cherrypy
// REST API: login, job dispatch across all client types, key management,
// and the /events SSE stream.
//
// net/http is used directly here (not an ecosystem HTTP client) because
// nothing in the retrieved examples wires a third-party HTTP client for
// outbound REST calls; see DESIGN.md.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/upstream/sse"
)

// ClientType selects which Salt client backs a run_job request.
type ClientType string

const (
	ClientLocal        ClientType = "local"
	ClientLocalAsync   ClientType = "local_async"
	ClientLocalBatch   ClientType = "local_batch"
	ClientRunner       ClientType = "runner"
	ClientRunnerAsync  ClientType = "runner_async"
	ClientWheel        ClientType = "wheel"
	ClientWheelAsync   ClientType = "wheel_async"
)

// KeyState is one of the four buckets the master groups minion keys into,
// named after the key directories the wheel key module operates on.
type KeyState string

const (
	KeyStateAccepted KeyState = "minions"
	KeyStatePending  KeyState = "minions_pre"
	KeyStateRejected KeyState = "minions_rejected"
	KeyStateDenied   KeyState = "minions_denied"
)

// ParseKeyState maps a key-state path segment to a KeyState, accepting both
// the wire directory names and the short UI aliases.
func ParseKeyState(s string) (KeyState, bool) {
	switch s {
	case "minions", "accepted":
		return KeyStateAccepted, true
	case "minions_pre", "pending":
		return KeyStatePending, true
	case "minions_rejected", "rejected":
		return KeyStateRejected, true
	case "minions_denied", "denied":
		return KeyStateDenied, true
	}
	return "", false
}

// Error is the client's error taxonomy, matching the distinct failure modes
// a caller needs to tell apart (in particular Unauthorized, which triggers
// the session bridge's re-login retry).
type Error struct {
	Kind    ErrorKind
	Message string
}

type ErrorKind string

const (
	ErrUnauthorized        ErrorKind = "unauthorized"
	ErrForbidden           ErrorKind = "forbidden"
	ErrRequestError        ErrorKind = "request_error"
	ErrResponseParseError  ErrorKind = "response_parse_error"
	ErrMissingExpectedData ErrorKind = "missing_expected_data"
	ErrFailedRequest       ErrorKind = "failed_request"
)

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func newErr(kind ErrorKind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Token is the bearer credential returned by a successful login.
type Token struct {
	Token  string          `json:"token"`
	Start  float64         `json:"start"`
	Expire float64         `json:"expire"`
	User   string          `json:"user"`
	EAuth  string          `json:"eauth"`
	Perms  json.RawMessage `json:"perms"`
}

// MinionKey is one entry from get_keys.
type MinionKey struct {
	ID     string
	State  KeyState
	Finger string
}

// Client talks to the upstream Salt master's REST API. It carries two HTTP
// clients over a shared transport: api has a generous request deadline
// (state.highstate can run for many minutes), stream has none at all so the
// SSE connection can stay open indefinitely. Both share a short dial
// timeout so an unreachable master fails fast.
type Client struct {
	baseURL string
	api     *http.Client
	stream  *http.Client
}

const (
	dialTimeout    = 5 * time.Second
	requestTimeout = 20 * time.Minute
)

// New builds a Client. skipVerify disables TLS certificate validation, for
// development masters with self-signed certs.
func New(baseURL string, skipVerify bool) *Client {
	dialer := &net.Dialer{Timeout: dialTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: dialTimeout,
	}
	if skipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL: baseURL,
		api:     &http.Client{Transport: transport, Timeout: requestTimeout},
		stream:  &http.Client{Transport: transport},
	}
}

// Login authenticates against the master's /login endpoint, exchanging an
// eauth "rest" username/password (the opaque local AuthToken id is used as
// the password) for an upstream bearer Token.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	body, err := json.Marshal(map[string]string{
		"eauth":    "rest",
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.api.Do(req)
	if err != nil {
		logger.Session().Error().Err(err).Msg("login request failed")
		return nil, newErr(ErrRequestError, err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusForbidden {
		return nil, newErr(ErrForbidden, "login forbidden")
	}
	if res.StatusCode != http.StatusOK {
		return nil, newErr(ErrFailedRequest, fmt.Sprintf("unexpected status %d", res.StatusCode))
	}

	var envelope struct {
		Return []Token `json:"return"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, newErr(ErrResponseParseError, err.Error())
	}
	if len(envelope.Return) == 0 {
		return nil, newErr(ErrResponseParseError, "no token returned")
	}
	token := envelope.Return[0]

	// Salt returns an empty object instead of an empty array for perms when
	// the list is empty; normalize it so callers always see a JSON array.
	trimmed := bytes.TrimSpace(token.Perms)
	if len(trimmed) == 0 || (len(trimmed) > 0 && trimmed[0] == '{') {
		token.Perms = json.RawMessage("[]")
	}

	return &token, nil
}

// ListenEvents connects to the /events SSE stream and returns a channel of
// parsed events. The channel is closed when the connection drops; the
// caller (the listener package) is responsible for reconnecting.
func (c *Client) ListenEvents(ctx context.Context, tokenValue string) (<-chan sse.Event, error) {
	url := fmt.Sprintf("%s/events?salt_token=%s", c.baseURL, tokenValue)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.stream.Do(req)
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, newErr(ErrFailedRequest, fmt.Sprintf("unexpected status %d", res.StatusCode))
	}

	out := make(chan sse.Event)
	go func() {
		defer close(out)
		defer res.Body.Close()
		parser := sse.NewParser(res.Body)
		for {
			event, err := parser.Next()
			if err != nil {
				if err != io.EOF {
					logger.Listener().Warn().Err(err).Msg("sse stream read error")
				}
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) runJob(ctx context.Context, tokenValue string, payload map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", tokenValue)

	res, err := c.api.Do(req)
	if err != nil {
		return nil, newErr(ErrRequestError, err.Error())
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusForbidden:
		return nil, newErr(ErrForbidden, "run_job forbidden")
	case http.StatusUnauthorized:
		return nil, newErr(ErrUnauthorized, "run_job unauthorized")
	case http.StatusOK:
	default:
		return nil, newErr(ErrFailedRequest, fmt.Sprintf("unexpected status %d", res.StatusCode))
	}

	var envelope struct {
		Return []json.RawMessage `json:"return"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, newErr(ErrResponseParseError, err.Error())
	}
	if len(envelope.Return) == 0 {
		return nil, newErr(ErrMissingExpectedData, "run_job: missing return[0]")
	}
	return envelope.Return[0], nil
}

// jobPayload builds the common client/fun/arg/kwarg envelope shared by
// every run_job_* variant.
func jobPayload(client ClientType, fun string, arg []interface{}, kwarg map[string]string) map[string]interface{} {
	if arg == nil {
		arg = []interface{}{}
	}
	if kwarg == nil {
		kwarg = map[string]string{}
	}
	return map[string]interface{}{
		"client": string(client),
		"fun":    fun,
		"arg":    arg,
		"kwarg":  kwarg,
	}
}

// RunJobLocal dispatches a synchronous `local` job against tgt.
func (c *Client) RunJobLocal(ctx context.Context, tokenValue, tgt, tgtType, fun string, arg []interface{}, kwarg map[string]string) (json.RawMessage, error) {
	payload := jobPayload(ClientLocal, fun, arg, kwarg)
	payload["tgt"] = tgt
	if tgtType == "" {
		tgtType = "glob"
	}
	payload["tgt_type"] = tgtType
	return c.runJob(ctx, tokenValue, payload)
}

// RunJobLocalAsync dispatches an asynchronous `local_async` job.
func (c *Client) RunJobLocalAsync(ctx context.Context, tokenValue, tgt, tgtType, fun string, arg []interface{}, kwarg map[string]string) (json.RawMessage, error) {
	payload := jobPayload(ClientLocalAsync, fun, arg, kwarg)
	payload["tgt"] = tgt
	if tgtType == "" {
		tgtType = "glob"
	}
	payload["tgt_type"] = tgtType
	return c.runJob(ctx, tokenValue, payload)
}

// RunJobLocalBatch dispatches a `local_batch` job with the given batch size
// or percentage expression (e.g. "50%" or "10").
func (c *Client) RunJobLocalBatch(ctx context.Context, tokenValue, tgt, tgtType, fun string, arg []interface{}, kwarg map[string]string, batch string) (json.RawMessage, error) {
	payload := jobPayload(ClientLocalBatch, fun, arg, kwarg)
	payload["tgt"] = tgt
	if tgtType == "" {
		tgtType = "glob"
	}
	payload["tgt_type"] = tgtType
	payload["batch"] = batch
	return c.runJob(ctx, tokenValue, payload)
}

// RunJobRunner dispatches a synchronous `runner` job.
func (c *Client) RunJobRunner(ctx context.Context, tokenValue, fun string, arg []interface{}, kwarg map[string]string) (json.RawMessage, error) {
	return c.runJob(ctx, tokenValue, jobPayload(ClientRunner, fun, arg, kwarg))
}

// RunJobRunnerAsync dispatches an asynchronous `runner_async` job.
func (c *Client) RunJobRunnerAsync(ctx context.Context, tokenValue, fun string, arg []interface{}, kwarg map[string]string) (json.RawMessage, error) {
	return c.runJob(ctx, tokenValue, jobPayload(ClientRunnerAsync, fun, arg, kwarg))
}

// RunJobWheel dispatches a synchronous `wheel` job, unwrapping the nested
// "data" object the wheel client always returns.
func (c *Client) RunJobWheel(ctx context.Context, tokenValue, fun string, arg []interface{}, kwarg map[string]string) (json.RawMessage, error) {
	res, err := c.runJob(ctx, tokenValue, jobPayload(ClientWheel, fun, arg, kwarg))
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(res, &wrapper); err != nil || wrapper.Data == nil {
		return nil, newErr(ErrMissingExpectedData, "run_job_wheel: missing data")
	}
	return wrapper.Data, nil
}

// RunJobWheelAsync dispatches an asynchronous `wheel_async` job.
func (c *Client) RunJobWheelAsync(ctx context.Context, tokenValue, fun string, arg []interface{}, kwarg map[string]string) (json.RawMessage, error) {
	return c.runJob(ctx, tokenValue, jobPayload(ClientWheelAsync, fun, arg, kwarg))
}

// GetKeys lists minion keys across all four buckets via key.finger.
func (c *Client) GetKeys(ctx context.Context, tokenValue string) ([]MinionKey, error) {
	data, err := c.RunJobWheel(ctx, tokenValue, "key.finger", []interface{}{"*"}, nil)
	if err != nil {
		return nil, err
	}

	var buckets struct {
		Rejected map[string]string `json:"minions_rejected"`
		Denied   map[string]string `json:"minions_denied"`
		Pending  map[string]string `json:"minions_pre"`
		Accepted map[string]string `json:"minions"`
	}
	if err := json.Unmarshal(data, &buckets); err != nil {
		return nil, newErr(ErrResponseParseError, err.Error())
	}

	keys := make([]MinionKey, 0)
	for host, finger := range buckets.Rejected {
		keys = append(keys, MinionKey{ID: host, State: KeyStateRejected, Finger: finger})
	}
	for host, finger := range buckets.Denied {
		keys = append(keys, MinionKey{ID: host, State: KeyStateDenied, Finger: finger})
	}
	for host, finger := range buckets.Pending {
		keys = append(keys, MinionKey{ID: host, State: KeyStatePending, Finger: finger})
	}
	for host, finger := range buckets.Accepted {
		keys = append(keys, MinionKey{ID: host, State: KeyStateAccepted, Finger: finger})
	}
	return keys, nil
}

// keyDictArg builds the {state: [id]} envelope the wheel key.*_dict
// functions take as their match argument.
func keyDictArg(state KeyState, id string) []interface{} {
	return []interface{}{map[string]interface{}{string(state): []string{id}}}
}

// confirmKeyTransition checks that a key.*_dict response lists at least one
// key under the bucket the key was supposed to move into.
func confirmKeyTransition(data json.RawMessage, op string, into KeyState) error {
	var envelope struct {
		Return map[string][]string `json:"return"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Return == nil {
		return newErr(ErrMissingExpectedData, op+": missing return")
	}
	if len(envelope.Return[string(into)]) == 0 {
		return newErr(ErrMissingExpectedData, op+": key did not transition to "+string(into))
	}
	return nil
}

// AcceptKey accepts the key currently in state via wheel key.accept_dict,
// verifying the response shows it in the accepted bucket.
func (c *Client) AcceptKey(ctx context.Context, tokenValue string, state KeyState, id string) error {
	kwarg := map[string]string{"include_rejected": "True", "include_denied": "True"}
	data, err := c.RunJobWheel(ctx, tokenValue, "key.accept_dict", keyDictArg(state, id), kwarg)
	if err != nil {
		return err
	}
	return confirmKeyTransition(data, "accept_key", KeyStateAccepted)
}

// RejectKey rejects the key currently in state via wheel key.reject_dict,
// verifying the response shows it in the rejected bucket.
func (c *Client) RejectKey(ctx context.Context, tokenValue string, state KeyState, id string) error {
	kwarg := map[string]string{"include_accepted": "True", "include_denied": "True"}
	data, err := c.RunJobWheel(ctx, tokenValue, "key.reject_dict", keyDictArg(state, id), kwarg)
	if err != nil {
		return err
	}
	return confirmKeyTransition(data, "reject_key", KeyStateRejected)
}

// DeleteKey removes the key entirely via wheel key.delete_dict, which
// reports a bare success flag rather than a bucket listing.
func (c *Client) DeleteKey(ctx context.Context, tokenValue string, state KeyState, id string) error {
	data, err := c.RunJobWheel(ctx, tokenValue, "key.delete_dict", keyDictArg(state, id), nil)
	if err != nil {
		return err
	}
	var envelope struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Success == nil {
		return newErr(ErrMissingExpectedData, "delete_key: missing success")
	}
	if !*envelope.Success {
		return newErr(ErrMissingExpectedData, "delete_key: success is false")
	}
	return nil
}

// RefreshMinion re-collects a minion's materialised state: grains, pillar,
// and package data fire asynchronously, then a test-mode highstate runs
// synchronously. Conformity is expected to take the longest, so its return
// doubles as the "refresh finished" signal.
func (c *Client) RefreshMinion(ctx context.Context, tokenValue, id string) error {
	for _, fun := range []string{"grains.items", "pillar.items", "pkg.list_pkgs"} {
		if _, err := c.RunJobLocalAsync(ctx, tokenValue, id, "glob", fun, nil, nil); err != nil {
			return err
		}
	}
	kwarg := map[string]string{"test": "True"}
	_, err := c.RunJobLocal(ctx, tokenValue, id, "glob", "state.highstate", nil, kwarg)
	return err
}

// ToAppError maps a client Error to the HTTP-facing apperr taxonomy. An
// error that is already an AppError passes through unchanged.
func ToAppError(err error) *apperr.AppError {
	if appErr, ok := err.(*apperr.AppError); ok {
		return appErr
	}
	upstreamErr, ok := err.(*Error)
	if !ok {
		return apperr.InternalError(err.Error())
	}
	switch upstreamErr.Kind {
	case ErrUnauthorized:
		return apperr.Unauthorized("upstream rejected the session token")
	case ErrForbidden:
		return apperr.Forbidden("upstream denied the request")
	default:
		return apperr.Wrap(apperr.CodeInternalError, "upstream request failed", err)
	}
}
