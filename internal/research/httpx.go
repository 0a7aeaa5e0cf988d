package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxAPIBody caps JSON responses read from search APIs.
const maxAPIBody int64 = 4 << 20

// limitedReadAll reads at most maxBytes from r and errors beyond that.
func limitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// statusError is a non-2xx upstream response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *statusError) Unwrap() error { return ErrUpstream }

// doJSON sends req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := limitedReadAll(resp.Body, maxAPIBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &statusError{Code: resp.StatusCode, Body: snippet}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	return nil
}

// postJSON marshals in and POSTs it to url.
func postJSON(ctx context.Context, client *http.Client, url, userAgent string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return doJSON(client, req, out)
}
