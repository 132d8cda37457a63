package evaluate

import (
	"context"
	"fmt"

	"bayesian-melody-predictor/internal/client"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/selection"
	"bayesian-melody-predictor/internal/server"

	"github.com/google/uuid"
)

// RemoteSelector runs selections against a selection service.
type RemoteSelector struct {
	client *client.Client
	prefix string
}

// NewRemoteSelector tags every request ID with prefix so audit records of
// one run can be found together.
func NewRemoteSelector(c *client.Client, prefix string) *RemoteSelector {
	return &RemoteSelector{client: c, prefix: prefix}
}

func (r *RemoteSelector) SelectBest(ctx context.Context, req selection.Request) (selection.Result, error) {
	resp, err := r.client.Select(ctx, server.SelectRequest{
		RequestID:  r.requestID(),
		SeedWindow: req.SeedWindow,
		Candidates: req.Candidates,
		Strategy:   req.Strategy,
		Horizon:    req.Horizon,
	})
	if err != nil {
		return selection.Result{}, err
	}
	if resp.BestIndex < 0 || resp.BestIndex >= len(resp.Scores) {
		return selection.Result{}, fmt.Errorf("service returned best index %d for %d scores", resp.BestIndex, len(resp.Scores))
	}
	return selection.Result{
		BestIndex: resp.BestIndex,
		Strategy:  resp.Strategy,
		Scores:    resp.Scores,
		Forecast:  ml.Forecast{Mean: resp.Forecast.Mean, Std: resp.Forecast.Std},
		CacheHit:  resp.CacheHit,
	}, nil
}

func (r *RemoteSelector) requestID() string {
	if r.prefix == "" {
		return ""
	}
	return r.prefix + "-" + uuid.New().String()
}
