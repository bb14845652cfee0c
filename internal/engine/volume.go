package engine

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// VolumeProfile keeps a trailing window of per-interval traded volume for
// each symbol. VWAP slicing weighs the current interval against it.
type VolumeProfile struct {
	mu     sync.Mutex
	window int
	series map[string]*volumeRing
}

type volumeRing struct {
	values []decimal.Decimal
	next   int
	full   bool
}

// NewVolumeProfile creates a profile averaging the last window observations.
func NewVolumeProfile(window int) *VolumeProfile {
	if window < 1 {
		window = 1
	}
	return &VolumeProfile{window: window, series: make(map[string]*volumeRing)}
}

// Observe records one interval's volume for symbol.
func (p *VolumeProfile) Observe(symbol string, volume decimal.Decimal) {
	if volume.IsNegative() {
		return
	}
	symbol = strings.ToUpper(symbol)

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.series[symbol]
	if !ok {
		r = &volumeRing{values: make([]decimal.Decimal, p.window)}
		p.series[symbol] = r
	}
	r.values[r.next] = volume
	r.next = (r.next + 1) % len(r.values)
	if r.next == 0 {
		r.full = true
	}
}

// Average returns the mean observed volume for symbol, or zero when nothing
// has been observed yet.
func (p *VolumeProfile) Average(symbol string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.series[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero
	}
	n := r.next
	if r.full {
		n = len(r.values)
	}
	if n == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range r.values[:n] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
