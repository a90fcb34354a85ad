package valuation

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// EnsembleEstimator averages the estimates of its members, querying them
// concurrently. Any member failure fails the whole estimate.
type EnsembleEstimator struct {
	members []Estimator
}

// NewEnsembleEstimator creates an ensemble over the given members.
func NewEnsembleEstimator(members ...Estimator) *EnsembleEstimator {
	return &EnsembleEstimator{members: members}
}

// Price returns the mean of all member estimates.
func (e *EnsembleEstimator) Price(ctx context.Context, description string) (float64, error) {
	if len(e.members) == 0 {
		return 0, eris.New("valuation: ensemble has no members")
	}

	estimates := make([]float64, len(e.members))
	g, gctx := errgroup.WithContext(ctx)
	for i, member := range e.members {
		g.Go(func() error {
			v, err := member.Price(gctx, description)
			if err != nil {
				return err
			}
			estimates[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var sum float64
	for _, v := range estimates {
		sum += v
	}
	return sum / float64(len(estimates)), nil
}
