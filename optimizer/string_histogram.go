package optimizer

import (
	"github.com/HITGYA/Mit-6.830/common"
)

// StringHistogram estimates selectivities over strings by mapping each one to an integer built from
// its first four bytes (first byte most significant) and delegating to an IntHistogram.
type StringHistogram struct {
	hist *IntHistogram
}

var (
	minStringVal = stringToInt("")
	maxStringVal = stringToInt("zzzz")
)

func NewStringHistogram(buckets int) *StringHistogram {
	return &StringHistogram{hist: NewIntHistogram(buckets, minStringVal, maxStringVal)}
}

func stringToInt(s string) int {
	v := 0
	for i := 0; i < 4; i++ {
		v <<= 8
		if i < len(s) {
			v += int(s[i])
		}
	}
	return v
}

// clampedInt maps s into the histogram's range.
func clampedInt(s string) int {
	v := stringToInt(s)
	if v < minStringVal {
		return minStringVal
	}
	if v > maxStringVal {
		return maxStringVal
	}
	return v
}

func (h *StringHistogram) AddValue(s string) {
	h.hist.AddValue(clampedInt(s))
}

func (h *StringHistogram) EstimateSelectivity(op common.CompareOp, s string) float64 {
	return h.hist.EstimateSelectivity(op, clampedInt(s))
}

func (h *StringHistogram) AvgSelectivity() float64 {
	return h.hist.AvgSelectivity()
}

func (h *StringHistogram) String() string {
	return h.hist.String()
}
