package probe

import "context"

// Chain tries each Prober in order, using the first one that both supports
// the file and probes it successfully. This is the polymorphic dispatch
// spec.md §4.D describes without mandating a specific ordering; the pipeline
// wires native (fastest, no subprocess) first, then ffprobe, then mediainfo
// as a last resort.
type Chain struct {
	Probers []Prober
}

func NewChain(probers ...Prober) *Chain {
	return &Chain{Probers: probers}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Supports(path string) bool {
	for _, p := range c.Probers {
		if p.Supports(path) {
			return true
		}
	}
	return false
}

func (c *Chain) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	var lastErr error
	for _, p := range c.Probers {
		if !p.Supports(path) {
			continue
		}
		info, err := p.Probe(ctx, path)
		if err == nil {
			return info, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
