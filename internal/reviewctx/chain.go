package reviewctx

import (
	"context"
	"errors"

	"github.com/dshills/patchwise/internal/patch"
)

// ChainLookup runs each lookup in order and merges their symbols. It fails
// only when every lookup fails.
type ChainLookup []SymbolLookup

func (c ChainLookup) Lookup(ctx context.Context, f File, r patch.LineRange) ([]Symbol, error) {
	var out []Symbol
	var errs []error
	seen := make(map[symbolKey]bool)
	for _, l := range c {
		syms, err := l.Lookup(ctx, f, r)
		if err != nil {
			errs = append(errs, err)
		}
		for _, s := range syms {
			if k := keyOf(s); !seen[k] {
				seen[k] = true
				out = append(out, s)
			}
		}
	}
	if len(errs) == len(c) && len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}
