package llm

import (
	"context"
	"errors"
	"fmt"

	. "github.com/heraldlabs/herald/internal/logging"
)

// Candidate is one entry in a model fallback chain: a provider plus an
// optional model override. The first candidate is the primary.
type Candidate struct {
	Provider Provider
	Model    string
}

// resolve returns the provider with the candidate's model applied.
func (c Candidate) resolve() Provider {
	p := c.Provider
	if c.Model != "" && c.Model != p.Model() {
		p = p.WithModel(c.Model)
	}
	return p
}

// String renders "provider/model" for logs.
func (c Candidate) String() string {
	return c.Provider.Name() + "/" + c.resolve().Model()
}

// RunFallback tries candidates in order until run succeeds, returning the
// winning candidate's resolved provider. Candidates after the primary are
// logged as failovers. When every candidate fails the joined errors are
// returned and no provider is selected.
func RunFallback(ctx context.Context, candidates []Candidate, run func(ctx context.Context, p Provider) error) (Provider, error) {
	if len(candidates) == 0 {
		return nil, errors.New("no model candidates configured")
	}

	var errs []error
	for i, c := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		p := c.resolve()
		if i > 0 {
			L_warn("failover: using fallback model", "candidate", c.String(), "attempt", i+1)
		}

		err := run(ctx, p)
		if err == nil {
			return p, nil
		}
		L_error("model candidate failed", "candidate", c.String(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", c.String(), err))
	}

	return nil, fmt.Errorf("all model candidates failed: %w", errors.Join(errs...))
}
