package fingerprint

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// FingerprintAll fans the scan out over a bounded pool. Each unit of work
// opens its own workbook reader; results keep the input order so the
// downstream clustering stays deterministic. workers <= 1 runs serially.
func (s *Scanner) FingerprintAll(ctx context.Context, paths []string, workers int) ([]internal.FileFingerprint, error) {
	if workers < 1 {
		workers = 1
	}

	out := make([]internal.FileFingerprint, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			out[i] = s.Fingerprint(path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
