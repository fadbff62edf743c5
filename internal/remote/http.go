package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qcsync/internal/qc"
)

// HTTPEndpoint submits batches to a qcsyncd server as JSON.
// Any non-2xx status or undecodable body is a transport failure.
type HTTPEndpoint struct {
	baseURL  string
	deviceID string
	client   *http.Client
}

var _ qc.Endpoint = (*HTTPEndpoint)(nil)

// NewHTTPEndpoint creates an HTTPEndpoint. A nil client gets the given timeout.
func NewHTTPEndpoint(baseURL, deviceID string, timeout time.Duration, client *http.Client) *HTTPEndpoint {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPEndpoint{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		client:   client,
	}
}

func (h *HTTPEndpoint) SubmitBatch(ctx context.Context, entries []qc.Entry) ([]qc.Result, error) {
	req := SyncRequest{DeviceID: h.deviceID, Entries: make([]WireEntry, len(entries))}
	for i, e := range entries {
		req.Entries[i] = NewWireEntry(e)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+SyncPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, qc.TransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, qc.TransportError(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, qc.TransportError(fmt.Errorf("decoding response: %w", err))
	}
	return out.Results, nil
}
