package optimizer

import (
	"fmt"
	"strings"

	"github.com/HITGYA/Mit-6.830/common"
)

// IntHistogram is a fixed-width histogram over a bounded integer range. Bucket i covers the
// integers [min+i*width, min+(i+1)*width); the last bucket may extend past max.
type IntHistogram struct {
	min, max int
	width    int
	counts   []int
	total    int
}

// NewIntHistogram creates a histogram of at most buckets buckets for values in [min, max].
func NewIntHistogram(buckets, min, max int) *IntHistogram {
	common.Assert(buckets > 0, "histogram needs at least one bucket")
	common.Assert(min <= max, "histogram range [%d, %d] is empty", min, max)
	width := common.CeilDiv(max-min+1, buckets)
	if width < 1 {
		width = 1
	}
	return &IntHistogram{
		min:    min,
		max:    max,
		width:  width,
		counts: make([]int, common.CeilDiv(max-min+1, width)),
	}
}

func (h *IntHistogram) bucket(v int) int {
	return (v - h.min) / h.width
}

// AddValue records v. Values outside [min, max] are ignored.
func (h *IntHistogram) AddValue(v int) {
	if v < h.min || v > h.max {
		return
	}
	h.counts[h.bucket(v)]++
	h.total++
}

// Total returns how many values have been added.
func (h *IntHistogram) Total() int {
	return h.total
}

// EstimateSelectivity estimates the fraction of added values satisfying "value op v".
func (h *IntHistogram) EstimateSelectivity(op common.CompareOp, v int) float64 {
	switch op {
	case common.Equals, common.Like:
		return h.equals(v)
	case common.NotEquals:
		return 1 - h.equals(v)
	case common.GreaterThan:
		return h.greaterThan(v)
	case common.GreaterThanOrEqual:
		return h.greaterThan(v - 1)
	case common.LessThan:
		return h.lessThan(v)
	case common.LessThanOrEqual:
		return h.lessThan(v + 1)
	}
	return 0
}

func (h *IntHistogram) equals(v int) float64 {
	if h.total == 0 || v < h.min || v > h.max {
		return 0
	}
	return float64(h.counts[h.bucket(v)]) / float64(h.width) / float64(h.total)
}

func (h *IntHistogram) greaterThan(v int) float64 {
	if v < h.min {
		return 1
	}
	if v >= h.max || h.total == 0 {
		return 0
	}
	b := h.bucket(v)
	right := h.min + (b+1)*h.width // exclusive
	sel := float64(h.counts[b]) * float64(right-1-v) / float64(h.width)
	for _, c := range h.counts[b+1:] {
		sel += float64(c)
	}
	return sel / float64(h.total)
}

func (h *IntHistogram) lessThan(v int) float64 {
	if v <= h.min {
		return 0
	}
	if v > h.max {
		return 1
	}
	if h.total == 0 {
		return 0
	}
	b := h.bucket(v)
	left := h.min + b*h.width
	sel := float64(h.counts[b]) * float64(v-left) / float64(h.width)
	for _, c := range h.counts[:b] {
		sel += float64(c)
	}
	return sel / float64(h.total)
}

// AvgSelectivity is the expected selectivity of an equality predicate whose constant is drawn
// from the recorded values.
func (h *IntHistogram) AvgSelectivity() float64 {
	if h.total == 0 {
		return 0
	}
	n := float64(h.total)
	sel := 0.0
	for _, c := range h.counts {
		p := float64(c) / n
		sel += p * p / float64(h.width)
	}
	return sel
}

func (h *IntHistogram) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "IntHistogram[min=%d max=%d width=%d total=%d]", h.min, h.max, h.width, h.total)
	for i, c := range h.counts {
		if c > 0 {
			left := h.min + i*h.width
			fmt.Fprintf(&sb, " [%d,%d):%d", left, left+h.width, c)
		}
	}
	return sb.String()
}
