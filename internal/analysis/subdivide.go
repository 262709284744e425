package analysis

import (
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/logging"
	"github.com/chronolens/chronolens/internal/tokens"
)

// subdivideItems splits a chunk's items into consecutive slices whose
// rendered prompt fits within budget estimated tokens. The common case is a
// single slice; oversized chunks binary-search the longest fitting prefix
// and repeat on the remainder. A single item that alone exceeds the budget
// still gets its own slice: there is nothing smaller to send.
func subdivideItems(items []history.Item, render func([]history.Item) string, budget int) [][]history.Item {
	if len(items) == 0 {
		return nil
	}
	if budget <= 0 || tokens.Estimate(render(items)) <= budget {
		return [][]history.Item{items}
	}

	var out [][]history.Item
	for pos := 0; pos < len(items); {
		lo, hi := 1, len(items)-pos
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if tokens.Estimate(render(items[pos:pos+mid])) <= budget {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		if tokens.Estimate(render(items[pos:pos+lo])) > budget {
			logging.Warnf("[Analysis] Single item exceeds the token budget, sending anyway")
		}
		out = append(out, items[pos:pos+lo])
		pos += lo
	}
	return out
}
