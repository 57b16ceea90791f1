// Package httpjson is the one concrete adapter shipped with the harvester:
// a generic bridge to any sidecar that exposes posts as a JSON array over
// HTTP (scraper containers, archive dumps, fixture servers). Real scraper
// logic lives behind that endpoint, not here.
package httpjson

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/backend"
)

// Config describes one JSON-over-HTTP source.
type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// Adapter fetches candidates from a JSON endpoint. The endpoint takes the
// query parameters account, stream, since (RFC3339) and limit, and returns
// a JSON array of raw posts.
type Adapter struct {
	name   string
	client *resty.Client
}

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(0) // retry is the orchestrator's job
	return &Adapter{name: cfg.Name, client: client}
}

func (a *Adapter) Name() string { return a.name }

// Fetch is eager: the sidecar returns the whole window in one response, so
// the lazy Iterator contract is satisfied with a slice iterator.
func (a *Adapter) Fetch(ctx context.Context, req backend.FetchRequest) (backend.Iterator, error) {
	var posts []*domain.RawPost

	r := a.client.R().
		SetContext(ctx).
		SetQueryParam("account", req.Account).
		SetQueryParam("stream", string(req.Stream)).
		SetQueryParam("limit", fmt.Sprintf("%d", req.Limit)).
		SetResult(&posts)
	if !req.LowerBound.IsZero() {
		r.SetQueryParam("since", req.LowerBound.Format(time.RFC3339))
	}

	resp, err := r.Get("/posts")
	if err != nil {
		return nil, domain.NewRetryableError(a.name, err)
	}
	if resp.IsError() {
		return nil, a.classifyStatus(resp.StatusCode())
	}

	return backend.NewSliceIterator(posts), nil
}

func (a *Adapter) classifyStatus(code int) error {
	err := fmt.Errorf("upstream returned %d", code)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
		return domain.NewFatalError(a.name, err)
	case code == http.StatusTooManyRequests || code >= 500:
		return domain.NewRetryableError(a.name, err)
	default:
		return domain.NewFatalError(a.name, err)
	}
}
