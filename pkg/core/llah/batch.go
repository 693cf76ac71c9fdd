package llah

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// LookupBatch runs LookupDocuments for every query set on at most workers
// goroutines (0 means GOMAXPROCS). results[i] belongs to queries[i]. The first
// failing query cancels the ones not yet started.
func (o *Operations) LookupBatch(ctx context.Context, queries [][]Point, maxHitsPerPoint uint32, workers int) ([][]*FoundDocument, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([][]*FoundDocument, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, points := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := o.LookupDocuments(points, maxHitsPerPoint, nil)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
