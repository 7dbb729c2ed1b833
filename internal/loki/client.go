// internal/loki/client.go

package loki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/orgoj/lokilog/internal/logger"
)

// PushPath is appended to the configured base URL.
const PushPath = "/loki/api/v1/push"

// Compression types for the push body
const (
	CompressNone = "none"
	CompressGzip = "gzip"
)

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 512

// HTTPDoer is the transport used for pushes. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PushRequest is the body of POST /loki/api/v1/push.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set with its values. Each value is
// [timestamp, line, structured metadata].
type Stream struct {
	Stream Labels          `json:"stream"`
	Values [][]interface{} `json:"values"`
}

// ClientOptions configures a Client. Only BaseURL is required.
type ClientOptions struct {
	BaseURL     string
	Headers     map[string]string // added to every request, e.g. X-Scope-OrgID
	Compression string            // CompressNone (default) or CompressGzip
	Timeout     time.Duration     // used when HTTPClient is nil; zero means none
	HTTPClient  HTTPDoer
	Sink        logger.Sink // receives delivery failures; defaults to the app logger
}

// Client pushes one record per call to a Loki push endpoint. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	pushURL     string
	headers     map[string]string
	compression string
	http        HTTPDoer
	sink        logger.Sink
}

// NewClient validates the options and creates a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("loki base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid loki base URL '%s': %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid loki base URL '%s': scheme must be http or https", base)
	}

	compression := opts.Compression
	switch compression {
	case "":
		compression = CompressNone
	case CompressNone, CompressGzip:
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compression)
	}

	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: opts.Timeout}
	}
	sink := opts.Sink
	if sink == nil {
		sink = logger.GetAppLogger()
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		pushURL:     strings.TrimRight(base, "/") + PushPath,
		headers:     headers,
		compression: compression,
		http:        doer,
		sink:        sink,
	}, nil
}

// PushURL returns the full push endpoint.
func (c *Client) PushURL() string {
	return c.pushURL
}

// Encode wraps a record in a single-stream, single-value push request.
func Encode(rec Record) ([]byte, error) {
	entry, err := marshalJSON(rec.Entry)
	if err != nil {
		return nil, fmt.Errorf("entry: %w", err)
	}

	req := PushRequest{
		Streams: []Stream{
			{
				Stream: rec.Labels,
				Values: [][]interface{}{
					{rec.TimestampString(), string(entry), rec.Metadata},
				},
			},
		},
	}
	return marshalJSON(req)
}

// Push sends rec in one blocking POST. Any failure is returned as a
// *DeliveryError. There are no retries.
func (c *Client) Push(ctx context.Context, rec Record) error {
	body, err := Encode(rec)
	if err != nil {
		return &DeliveryError{Op: OpEncode, URL: c.pushURL, Err: err}
	}

	if c.compression == CompressGzip {
		if body, err = gzipBody(body); err != nil {
			return &DeliveryError{Op: OpEncode, URL: c.pushURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Op: OpRequest, URL: c.pushURL, Err: err}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.compression == CompressGzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &DeliveryError{Op: OpRequest, URL: c.pushURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		return &DeliveryError{
			Op:         OpStatus,
			URL:        c.pushURL,
			StatusCode: resp.StatusCode,
			Body:       truncateString(strings.TrimSpace(string(snippet)), maxErrorBody),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Deliver pushes rec and reports a failure to the sink instead of returning
// it. It always returns normally.
func (c *Client) Deliver(ctx context.Context, rec Record) {
	if err := c.Push(ctx, rec); err != nil {
		c.Report(err)
	}
}

// Report logs a delivery failure at ERROR level with the cause as a
// structured field.
func (c *Client) Report(err error) {
	// A broken sink must not turn a contained failure into a panic.
	defer func() { _ = recover() }()

	fields := logger.Fields{
		"error": err,
		"url":   c.pushURL,
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		fields["op"] = de.Op
		if de.StatusCode != 0 {
			fields["status"] = de.StatusCode
		}
	}
	c.sink.Log(logger.ERROR, "Error pushing logs to Loki", fields)
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}
