package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
	xhttp "CapFlow/pkg/http"
	"CapFlow/pkg/util"
)

// HTTPProvider pulls observations from a flows REST API:
// GET {base}/flows?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD with a bearer key.
type HTTPProvider struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPProvider builds an HTTP flow source.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithBearerToken(apiKey),
		),
	}
}

func (p *HTTPProvider) Name() string { return "http" }

// Fetch implements repository.FlowSource. Zero bounds are omitted from the query.
func (p *HTTPProvider) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	q := map[string][]string{}
	if !from.IsZero() {
		q["start_date"] = []string{util.FormatDate(from)}
	}
	if !to.IsZero() {
		q["end_date"] = []string{util.FormatDate(to)}
	}

	var raw []models.ObservationRecord
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         p.baseURL + "/flows",
		QueryParams: q,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetch flows: %w", err)
	}
	return models.ToObservations(raw)
}

// Health implements repository.FlowSource by probing {base}/health.
func (p *HTTPProvider) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    p.baseURL + "/health",
	}, nil)
}
