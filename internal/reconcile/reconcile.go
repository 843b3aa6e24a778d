package reconcile

import (
	"sync"

	"golddesk/internal/numeric"
	"golddesk/internal/snapshot"
)

// Instrument identifies a metal tracked by the engine.
type Instrument string

const (
	Gold   Instrument = "gold"
	Silver Instrument = "silver"
)

// OzToGram is grams per troy ounce, for converting international per-ounce
// quotes onto the domestic per-gram basis.
const OzToGram = 31.1034768

// Params tunes reconciliation for one instrument. The field indices are
// the domestic feed's fixed offsets; that layout is a contract with the
// upstream format.
type Params struct {
	UnitDivisor float64 // grams per quoted international unit; OzToGram when zero
	QuoteScale  float64 // divisor normalizing the domestic quote unit, e.g. 1000 for CNY/kg feeds
	Precision   int     // rounding granularity of the domestic price

	PriceIndex     int // last traded price offset
	PrevCloseIndex int // yesterday's close offset

	// StampIndex and ClosedStamp support feeds that freeze a timestamp
	// field at a fixed value outside trading hours. Field availability is
	// the primary closed-market signal; set StampIndex negative unless
	// the upstream guarantees a stable sentinel.
	StampIndex  int
	ClosedStamp string

	DefaultPremium float64 // seeds the premium memory
}

// PremiumBook remembers the last directly observed domestic-vs-theoretical
// premium per instrument, surviving across polling cycles. It is written
// only from a confirmed open market with a positive price; extrapolated
// values are never recorded.
type PremiumBook struct {
	mu   sync.RWMutex
	prem map[Instrument]float64
}

func NewPremiumBook(seed map[Instrument]float64) *PremiumBook {
	prem := make(map[Instrument]float64, len(seed))
	for inst, v := range seed {
		prem[inst] = v
	}
	return &PremiumBook{prem: prem}
}

func (b *PremiumBook) Premium(inst Instrument) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prem[inst]
}

func (b *PremiumBook) Record(inst Instrument, premium float64) {
	b.mu.Lock()
	b.prem[inst] = premium
	b.mu.Unlock()
}

// Outcome is one reconciled domestic reading.
type Outcome struct {
	Domestic          float64
	DomesticChangePct float64
	Status            snapshot.MarketStatus
}

// Engine derives a domestic price for each instrument on every cycle:
// directly observed while the domestic exchange trades, theoretical plus
// the last recorded premium while it is closed.
type Engine struct {
	params map[Instrument]Params
	book   *PremiumBook
}

func New(params map[Instrument]Params) *Engine {
	seed := make(map[Instrument]float64, len(params))
	for inst, p := range params {
		seed[inst] = p.DefaultPremium
	}
	return NewWithBook(params, NewPremiumBook(seed))
}

// NewWithBook builds an engine around an existing premium book, letting
// callers inject arbitrary starting premiums.
func NewWithBook(params map[Instrument]Params, book *PremiumBook) *Engine {
	return &Engine{params: params, book: book}
}

func (e *Engine) Book() *PremiumBook { return e.book }

// Reconcile computes the domestic side of one instrument from the live
// international price, the FX rate and the domestic feed's raw fields.
// The second return is false when a prerequisite is missing (no
// international price or no exchange rate); that instrument keeps its
// snapshot defaults for the cycle, silently.
func (e *Engine) Reconcile(inst Instrument, intlPrice, intlChangePct, fxRate float64, domFields []string) (Outcome, bool) {
	p, ok := e.params[inst]
	if !ok || intlPrice <= 0 || fxRate <= 0 {
		return Outcome{Status: snapshot.MarketClosed}, false
	}
	unit := p.UnitDivisor
	if unit <= 0 {
		unit = OzToGram
	}
	scale := p.QuoteScale
	if scale <= 0 {
		scale = 1
	}

	theoretical := intlPrice * fxRate / unit

	var actual, yesterdayClose float64
	if len(domFields) > p.PriceIndex {
		actual = numeric.SafeFloat(domFields[p.PriceIndex], 0) / scale
	}
	if len(domFields) > p.PrevCloseIndex {
		yesterdayClose = numeric.SafeFloat(domFields[p.PrevCloseIndex], 0) / scale
	}

	closed := len(domFields) <= p.PriceIndex || actual <= 0
	if !closed && p.StampIndex >= 0 && len(domFields) > p.StampIndex && domFields[p.StampIndex] == p.ClosedStamp {
		closed = true
	}

	if closed {
		// Extrapolate: track the live international move, add back the
		// last observed premium. No fresh domestic reference exists, so
		// the change mirrors the international one.
		return Outcome{
			Domestic:          numeric.Round(theoretical+e.book.Premium(inst), p.Precision),
			DomesticChangePct: intlChangePct,
			Status:            snapshot.MarketClosed,
		}, true
	}

	e.book.Record(inst, actual-theoretical)
	out := Outcome{
		Domestic: numeric.Round(actual, p.Precision),
		Status:   snapshot.MarketOpen,
	}
	if yesterdayClose > 0 {
		out.DomesticChangePct = numeric.Round((actual-yesterdayClose)/yesterdayClose*100, 2)
	}
	return out, true
}
