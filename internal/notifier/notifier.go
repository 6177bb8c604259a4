package notifier

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"
)

// CommittedBody is the payload sent to the payer once a transfer is accepted
var CommittedBody = []byte(`{"transferState":"COMMITTED"}`)

// Notification is one outbound push to a downstream party
type Notification struct {
	Destination string // host:port
	Path        string
	Body        []byte
}

// URL returns the plain-HTTP target of the notification
func (n Notification) URL() string {
	return "http://" + n.Destination + n.Path
}

// Result describes how a notification ended.
// Err is set when no response was received or its body could not be drained.
type Result struct {
	StatusCode int
	Bytes      int64
	Err        error
}

// OK reports whether the party answered with a 2xx status
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Notifier delivers notifications to downstream parties
type Notifier interface {
	Send(ctx context.Context, n Notification) Result
}

// HTTPNotifier posts notifications with a minimal header set: Content-Length only.
// There is no retry.
type HTTPNotifier struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates an HTTPNotifier with validated configuration
func New(config Config, logger *slog.Logger) (*HTTPNotifier, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:               nil,
		DisableCompression:  true,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
	}

	return &HTTPNotifier{
		config: config,
		client: &http.Client{Transport: transport},
		logger: logger,
	}, nil
}

// PayeeCreated builds the notification for a created transfer. The body is forwarded unmodified.
func (n *HTTPNotifier) PayeeCreated(body []byte) Notification {
	return Notification{
		Destination: n.config.PayeeAddress,
		Path:        n.config.PayeePath,
		Body:        body,
	}
}

// PayerCommitted builds the notification for an accepted transfer at the caller's request URI
func (n *HTTPNotifier) PayerCommitted(requestURI string) Notification {
	return Notification{
		Destination: n.config.PayerAddress,
		Path:        requestURI,
		Body:        CommittedBody,
	}
}

// Send posts the notification and returns once the response body is fully drained,
// whatever the status. With a zero timeout only ctx bounds the call.
func (n *HTTPNotifier) Send(ctx context.Context, notification Notification) Result {
	if n.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.Timeout)
		defer cancel()
	}

	url := notification.URL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(notification.Body))
	if err != nil {
		return Result{Err: errors.Wrap(err, "build notification request")}
	}
	req.ContentLength = int64(len(notification.Body))
	// An explicitly empty User-Agent keeps net/http from adding its default
	req.Header.Set("User-Agent", "")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{Err: errors.Wrapf(err, "post %s", url)}
	}
	defer resp.Body.Close()

	drained, err := io.Copy(io.Discard, resp.Body)
	result := Result{StatusCode: resp.StatusCode, Bytes: drained}
	if err != nil {
		result.Err = errors.Wrapf(err, "drain response from %s", url)
		return result
	}

	n.logger.Debug("notification delivered",
		"url", url,
		"status", resp.StatusCode,
		"response_bytes", drained)
	return result
}

// CloseIdleConnections releases keep-alive connections held for downstream parties
func (n *HTTPNotifier) CloseIdleConnections() {
	n.client.CloseIdleConnections()
}

// GetConfig returns the notifier configuration
func (n *HTTPNotifier) GetConfig() Config {
	return n.config
}
