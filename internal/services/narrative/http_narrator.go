package narrative

import (
	"context"
	"fmt"
	"time"

	"CapFlow/internal/domain/models"
	xhttp "CapFlow/pkg/http"
	"CapFlow/pkg/logger"
)

const maxHighlights = 3

// HTTPNarrator asks an external narrative service to phrase the summary and
// drops back to the template narrator whenever that call fails.
type HTTPNarrator struct {
	baseURL  string
	client   *xhttp.Client
	fallback *Fallback
	log      *logger.Logger
}

// NewHTTPNarrator builds a remote narrator. An empty baseURL disables the
// remote call entirely.
func NewHTTPNarrator(baseURL string, timeout time.Duration, fallback *Fallback, log *logger.Logger) *HTTPNarrator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNarrator{
		baseURL:  baseURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		fallback: fallback,
		log:      log,
	}
}

type narrativeResp struct {
	Narrative  string   `json:"narrative"`
	Highlights []string `json:"highlights"`
}

// Narrate implements service.Narrator.
func (n *HTTPNarrator) Narrate(ctx context.Context, stats models.SummaryStats) (models.Narrative, error) {
	if n.baseURL == "" {
		return n.fallback.Build(stats), nil
	}
	out, err := n.remote(ctx, stats)
	if err != nil {
		n.log.Warn("narrative service failed, using template", logger.Error(err))
		return n.fallback.Build(stats), nil
	}
	return out, nil
}

func (n *HTTPNarrator) remote(ctx context.Context, stats models.SummaryStats) (models.Narrative, error) {
	var resp narrativeResp
	err := n.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     n.baseURL + "/narrative",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    stats,
	}, &resp)
	if err != nil {
		return models.Narrative{}, fmt.Errorf("post narrative: %w", err)
	}
	if resp.Narrative == "" || resp.Highlights == nil {
		return models.Narrative{}, fmt.Errorf("invalid narrative response")
	}
	if len(resp.Highlights) > maxHighlights {
		resp.Highlights = resp.Highlights[:maxHighlights]
	}
	return models.Narrative{
		Text:       resp.Narrative,
		Highlights: resp.Highlights,
		Timestamp:  n.fallback.now().UTC(),
	}, nil
}
