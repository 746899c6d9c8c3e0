package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/llmbalancer/internal/cluster"
)

// HeaderRequestID carries the per-request correlation ID to and from nodes.
const HeaderRequestID = "X-Request-ID"

// Diagnostic fields added to structured node responses.
const (
	FieldServedBy       = "servedBy"
	FieldResponseTimeMs = "responseTimeMs"
)

// MaxResponseBytes bounds how much of a node response is buffered.
const MaxResponseBytes = 64 * 1024 * 1024

// ErrResponseTooLarge is wrapped in a *ForwardError when a node answers with
// more than the forwarder's response limit. The body is never relayed cut short.
var ErrResponseTooLarge = errors.New("node response exceeds size limit")

// shortPaths are read-only node paths that use the short timeout even when
// they are POSTed.
var shortPaths = map[string]bool{
	"/api/tags":    true,
	"/api/show":    true,
	"/api/ps":      true,
	"/api/version": true,
}

// Request is an inbound call to relay. Body is forwarded byte for byte.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Header    http.Header
	RequestID string
}

// Result is a node's response as relayed to the caller.
type Result struct {
	Node        cluster.Node
	StatusCode  int
	ContentType string
	Body        []byte
	Elapsed     time.Duration
}

// ForwardError reports that a node could not be reached or did not answer in
// time. The node's error counter has already been incremented.
type ForwardError struct {
	Node cluster.Node
	Err  error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward to %s: %v", e.Node.ID, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// Forwarder relays requests to nodes and records their outcome in State.
type Forwarder struct {
	state        *cluster.State
	client       *http.Client
	shortTimeout time.Duration
	longTimeout  time.Duration
	maxResponse  int64
}

// NewForwarder creates a Forwarder. Timeouts are applied per request, so the
// shared client carries none of its own.
func NewForwarder(state *cluster.State, shortTimeout, longTimeout time.Duration) *Forwarder {
	return &Forwarder{
		state:        state,
		client:       &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		shortTimeout: shortTimeout,
		longTimeout:  longTimeout,
		maxResponse:  MaxResponseBytes,
	}
}

// TimeoutFor returns the timeout applied to req.
func (f *Forwarder) TimeoutFor(req Request) time.Duration {
	if req.Method == http.MethodGet || req.Method == http.MethodHead || shortPaths[req.Path] {
		return f.shortTimeout
	}
	return f.longTimeout
}

// Forward sends req to node and waits for the answer or the timeout. The
// caller's cancellation is deliberately not propagated: once dispatched, a
// request runs to completion or timeout.
//
// Any HTTP answer, whatever its status, counts as a served request and its
// latency is recorded. Transport failures count as errors and return a
// *ForwardError.
func (f *Forwarder) Forward(ctx context.Context, node cluster.Node, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.TimeoutFor(req))
	defer cancel()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	url := strings.TrimRight(node.URL, "/") + req.Path

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		f.state.RecordError(node.ID)
		return nil, &ForwardError{Node: node, Err: fmt.Errorf("create request: %w", err)}
	}
	for _, h := range []string{"Content-Type", "Accept"} {
		if v := req.Header.Get(h); v != "" {
			httpReq.Header.Set(h, v)
		}
	}
	httpReq.Header.Set(HeaderRequestID, req.RequestID)

	log := logrus.WithFields(logrus.Fields{
		"node":       node.ID,
		"path":       req.Path,
		"request_id": req.RequestID,
	})

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.state.RecordError(node.ID)
		log.Warnf("forward failed: %v", err)
		return nil, &ForwardError{Node: node, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponse+1))
	if err != nil {
		f.state.RecordError(node.ID)
		log.Warnf("reading response failed: %v", err)
		return nil, &ForwardError{Node: node, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(respBody)) > f.maxResponse {
		f.state.RecordError(node.ID)
		log.Warnf("response larger than %d bytes dropped", f.maxResponse)
		return nil, &ForwardError{Node: node, Err: ErrResponseTooLarge}
	}
	elapsed := time.Since(start)
	f.state.RecordSuccess(node.ID, elapsed)

	log.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"elapsed": elapsed,
	}).Debug("forwarded")

	return &Result{
		Node:        node,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        Annotate(respBody, node.ID, elapsed),
		Elapsed:     elapsed,
	}, nil
}

// Annotate adds servedBy and responseTimeMs to body when it is a single JSON
// object. Anything else is returned unchanged.
func Annotate(body []byte, nodeID string, elapsed time.Duration) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return body
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return body
	}

	served, _ := json.Marshal(nodeID)
	ms, _ := json.Marshal(ResponseTimeMs(elapsed))
	obj[FieldServedBy] = served
	obj[FieldResponseTimeMs] = ms

	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}

// ResponseTimeMs converts d to milliseconds rounded to two decimals.
func ResponseTimeMs(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
