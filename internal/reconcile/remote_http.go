package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eduquest-progress/internal/domain"
)

// Remote is the network collaborator holding the remote copy of each record.
// Fetch reports found=false when the remote has no copy yet.
type Remote interface {
	Fetch(ctx context.Context, key string) (snap Snapshot, found bool, err error)
	Push(ctx context.Context, key string, snap Snapshot) error
}

// HTTPRemote talks to GET/PUT {baseURL}/api/sync/{key}.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) endpoint(key string) string {
	return r.baseURL + "/api/sync/" + url.PathEscape(key)
}

func (r *HTTPRemote) Fetch(ctx context.Context, key string) (Snapshot, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(key), nil)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: build request: %v", domain.ErrSync, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: fetch %s: %v", domain.ErrSync, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Snapshot{}, false, nil
	}
	if resp.StatusCode/100 != 2 {
		return Snapshot{}, false, fmt.Errorf("%w: fetch %s: status %d", domain.ErrSync, key, resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: decode %s: %v", domain.ErrSync, key, err)
	}
	return snap, true, nil
}

func (r *HTTPRemote) Push(ctx context.Context, key string, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrSync, key, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.endpoint(key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrSync, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: push %s: %v", domain.ErrSync, key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: push %s: status %d", domain.ErrSync, key, resp.StatusCode)
	}
	return nil
}
