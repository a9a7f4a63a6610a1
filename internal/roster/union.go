package roster

import (
	"context"

	"golang.org/x/sync/errgroup"

	"staffbot/internal/names"
)

// Union merges several sources read in parallel. Any failing source fails
// the whole snapshot.
type Union []Provider

func (u Union) CurrentNames(ctx context.Context) (names.Set, error) {
	sets := make([]names.Set, len(u))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range u {
		g.Go(func() error {
			s, err := p.CurrentNames(gctx)
			if err != nil {
				return err
			}
			sets[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := names.NewSet()
	for _, s := range sets {
		for n := range s {
			out.Add(n)
		}
	}
	return out, nil
}
