package tickbitmap

import (
	"sort"

	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
)

// NextInitializedTick plays the role of TickBitmap.nextInitializedTickWithinOneWord
// over a sorted slice of initialized ticks instead of a bitmap, and returns the
// position of the tick in the slice so callers can read its liquidity directly.
//
// With lte set it finds the largest initialized tick <= tick, otherwise the
// smallest initialized tick > tick. ok is false when no such tick exists.
func NextInitializedTick(ticks []uniswapv3.TickInfo, tick int64, lte bool) (pos int, ok bool) {
	if lte {
		// first index with Index > tick; the answer sits just before it.
		i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Index > tick })
		if i == 0 {
			return 0, false
		}
		return i - 1, true
	}

	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Index > tick })
	if i >= len(ticks) {
		return 0, false
	}
	return i, true
}
