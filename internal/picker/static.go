package picker

import "context"

// Static returns a fixed list of paths, one per call, then cancels.
// It backs the non-interactive "open" command.
type Static struct {
	paths []string
	next  int
}

// NewStatic creates a picker that yields paths in order
func NewStatic(paths ...string) *Static {
	return &Static{paths: paths}
}

// Choose returns the next path, or cancellation once the list is exhausted
func (p *Static) Choose(ctx context.Context, _, _ string) (string, bool, error) {
	if ctx.Err() != nil || p.next >= len(p.paths) {
		return "", false, nil
	}
	path := p.paths[p.next]
	p.next++
	return path, true, nil
}
