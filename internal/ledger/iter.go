package ledger

import (
	"context"
	"iter"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	pageSize         = 25
)

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// pageFunc returns up to n transactions older than the before id, newest first.
// An empty before starts from the newest.
type pageFunc func(ctx context.Context, before string, n int) ([]*Transaction, error)

// paginate turns a page fetcher into a lazy sequence capped at limit. Each
// range over the sequence starts again from the newest transaction.
func paginate(ctx context.Context, limit int, fetch pageFunc) iter.Seq2[*Transaction, error] {
	limit = NormalizeLimit(limit)
	return func(yield func(*Transaction, error) bool) {
		before := ""
		remaining := limit
		for remaining > 0 {
			n := min(remaining, pageSize)
			page, err := fetch(ctx, before, n)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, tx := range page {
				if !yield(tx, nil) {
					return
				}
			}
			remaining -= len(page)
			if len(page) < n {
				return
			}
			before = page[len(page)-1].ID
		}
	}
}

// Collect drains a transaction sequence into a slice.
func Collect(seq iter.Seq2[*Transaction, error]) ([]*Transaction, error) {
	out := make([]*Transaction, 0, DefaultListLimit)
	for tx, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
