package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxResponseBytes = 8 << 20

// postJSON sends body and decodes a 2xx reply into out. Failures come back as
// the typed errors.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Provider: provider, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Provider: provider, Err: fmt.Errorf("reading response: %w", err)}
	}
	if err := statusError(provider, httpResp, respBody); err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Join(ErrMalformedResponse, fmt.Errorf("%s: parsing response: %w", provider, err))
	}
	return nil
}
