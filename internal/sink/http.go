package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	deliveryTimeout = 30 * time.Second
	userAgent       = "contig-rekey"
)

var errRedirect = errors.New("redirects are not followed for report delivery")

// deliveryClient returns the HTTP client used by the Slack and webhook
// sinks. It refuses redirects so an allowed host cannot bounce a report to
// an internal address.
func deliveryClient() *http.Client {
	return &http.Client{
		Timeout: deliveryTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return errRedirect
		},
	}
}

// postJSON posts v as JSON to url with the given extra headers. A non-2xx
// answer is returned as *statusError.
func postJSON(ctx context.Context, client *http.Client, sink, url string, headers http.Header, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s sink: encoding payload: %w", sink, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s sink: building request: %w", sink, err)
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s sink: posting report: %w", sink, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return &statusError{sink: sink, code: resp.StatusCode}
	}
	return nil
}
