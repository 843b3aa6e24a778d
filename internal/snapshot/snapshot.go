package snapshot

import "time"

// MarketStatus reports whether a domestic exchange was observed trading
// when the snapshot was taken.
type MarketStatus string

const (
	MarketOpen   MarketStatus = "open"
	MarketClosed MarketStatus = "closed"
)

// MetalQuote is one metal instrument inside a snapshot. International
// prices are USD per troy ounce; domestic prices are CNY per gram.
type MetalQuote struct {
	International          float64      `json:"intl"`
	InternationalChangePct float64      `json:"intl_change"`
	Domestic               float64      `json:"dom"`
	DomesticChangePct      float64      `json:"dom_change"`
	Status                 MarketStatus `json:"market_status"`
}

// CryptoTicker is a spot (or fallback contract) reading for one symbol.
type CryptoTicker struct {
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change"`
}

// Snapshot is one complete set of instrument readings produced per poll.
// Symbols with no data this cycle are simply absent from Crypto; metals
// with no data keep their zero values with a closed status. Error is set
// only on a catastrophic orchestration failure, never on a single-source
// failure.
type Snapshot struct {
	ExchangeRate float64                 `json:"exchange_rate"`
	Gold         MetalQuote              `json:"gold"`
	Silver       MetalQuote              `json:"silver"`
	Crypto       map[string]CryptoTicker `json:"crypto"`
	Error        string                  `json:"error,omitempty"`
	FetchedAt    time.Time               `json:"fetched_at"`
}

// New returns a snapshot with defaulted fields: zero prices, closed
// markets and an empty (non-nil) crypto map.
func New() *Snapshot {
	return &Snapshot{
		Gold:      MetalQuote{Status: MarketClosed},
		Silver:    MetalQuote{Status: MarketClosed},
		Crypto:    make(map[string]CryptoTicker),
		FetchedAt: time.Now().UTC(),
	}
}
