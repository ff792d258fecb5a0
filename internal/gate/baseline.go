package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/platinumlabs/encbench/pkg/domain"
)

// BaselineRepository supplies the historical samples the statistical check
// compares against.
type BaselineRepository interface {
	Fetch(ctx context.Context) ([]domain.BaselineSample, error)
}

// HTTPBaselineRepository pulls recent results from the collector. The
// fetch happens once per process; every chunk of the run compares against
// the same snapshot.
type HTTPBaselineRepository struct {
	BaseURL string
	Limit   int
	Client  *http.Client

	once    sync.Once
	samples []domain.BaselineSample
	err     error
}

// Fetch returns the cached baseline snapshot, fetching on first call. A
// failed fetch is also cached: the collector being down should not add a
// retry storm on top of every trial.
func (r *HTTPBaselineRepository) Fetch(ctx context.Context) ([]domain.BaselineSample, error) {
	r.once.Do(func() {
		r.samples, r.err = r.fetch(ctx)
	})
	return r.samples, r.err
}

func (r *HTTPBaselineRepository) fetch(ctx context.Context) ([]domain.BaselineSample, error) {
	url := fmt.Sprintf("%s/results?limit=%s", r.BaseURL, strconv.Itoa(r.Limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("baseline fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("baseline fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("baseline fetch: %w", err)
	}

	// The collector serves either a bare array or a {"results": [...]}
	// envelope depending on version.
	var samples []domain.BaselineSample
	if err := json.Unmarshal(body, &samples); err == nil {
		return samples, nil
	}
	var wrapped struct {
		Results []domain.BaselineSample `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("baseline fetch: decode: %w", err)
	}
	return wrapped.Results, nil
}
