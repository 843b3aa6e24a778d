package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"golddesk/internal/config"
	"golddesk/internal/feed/okx"
	"golddesk/internal/feed/sina"
	"golddesk/internal/numeric"
	"golddesk/internal/reconcile"
	"golddesk/internal/snapshot"
)

// Engine fans out one text-feed fetch and one crypto fetch per tracked
// symbol, joins the results and reconciles them into a single Snapshot.
// Concurrent callers coalesce onto one in-flight upstream round.
type Engine struct {
	cfg     config.Config
	sina    *sina.Client
	okx     *okx.Client
	recon   *reconcile.Engine
	timeout time.Duration
	log     *logrus.Logger
	sf      singleflight.Group
}

func New(cfg config.Config, sinaClient *sina.Client, okxClient *okx.Client, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := time.Duration(cfg.Poll.TaskTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	params := map[reconcile.Instrument]reconcile.Params{
		reconcile.Gold:   metalParams(cfg.Gold),
		reconcile.Silver: metalParams(cfg.Silver),
	}
	return &Engine{
		cfg:     cfg,
		sina:    sinaClient,
		okx:     okxClient,
		recon:   reconcile.New(params),
		timeout: timeout,
		log:     log,
	}
}

func metalParams(m config.Metal) reconcile.Params {
	return reconcile.Params{
		UnitDivisor:    m.UnitDivisor,
		QuoteScale:     m.QuoteScale,
		Precision:      m.Precision,
		PriceIndex:     m.PriceIndex,
		PrevCloseIndex: m.PrevCloseIndex,
		StampIndex:     m.StampIndex,
		ClosedStamp:    m.ClosedStamp,
		DefaultPremium: m.DefaultPremium,
	}
}

// PremiumBook exposes the premium memory, mainly for injecting starting
// premiums in tests.
func (e *Engine) PremiumBook() *reconcile.PremiumBook { return e.recon.Book() }

func (e *Engine) quoteKeys() []string {
	keys := make([]string, 0, 5)
	for _, k := range []string{
		e.cfg.Gold.IntlKey,
		e.cfg.Silver.IntlKey,
		e.cfg.Sina.FXKey,
		e.cfg.Gold.DomesticKey,
		e.cfg.Silver.DomesticKey,
	} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// FetchAll produces one snapshot. Overlapping calls share a single
// upstream round trip.
func (e *Engine) FetchAll(ctx context.Context) *snapshot.Snapshot {
	v, _, _ := e.sf.Do("snapshot", func() (any, error) {
		return e.fetchAll(ctx), nil
	})
	snap, _ := v.(*snapshot.Snapshot)
	return snap
}

func (e *Engine) fetchAll(ctx context.Context) (snap *snapshot.Snapshot) {
	snap = snapshot.New()

	// Task failures are caught per task; only a fault outside every task
	// marks the snapshot, and even then the partial snapshot is returned.
	defer func() {
		if r := recover(); r != nil {
			snap.Error = fmt.Sprintf("internal fault: %v", r)
			e.log.WithField("panic", r).Error("snapshot assembly failed")
		}
	}()

	var (
		raw string
		mu  sync.Mutex
		g   errgroup.Group
	)

	g.Go(func() error {
		defer e.recoverTask("quote line")
		tctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		raw = e.sina.FetchQuoteLine(tctx, e.quoteKeys())
		return nil
	})

	for _, cs := range e.cfg.Crypto {
		cs := cs
		g.Go(func() error {
			defer e.recoverTask(cs.Name)
			tctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			ticker, err := e.okx.FetchSymbol(tctx, cs.Name, cs.Pair)
			if err != nil {
				e.log.WithError(err).WithField("symbol", cs.Name).Debug("crypto symbol absent this cycle")
				return nil
			}
			mu.Lock()
			snap.Crypto[cs.Name] = ticker
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	// Reconciliation runs strictly after the text feed's result is in.
	if raw != "" {
		if fx := sina.ExtractField(raw, e.cfg.Sina.FXKey); len(fx) > e.cfg.Sina.FXRateIndex {
			snap.ExchangeRate = numeric.SafeFloat(fx[e.cfg.Sina.FXRateIndex], 0)
		}
		snap.Gold = e.metalQuote(reconcile.Gold, e.cfg.Gold, raw, snap.ExchangeRate)
		snap.Silver = e.metalQuote(reconcile.Silver, e.cfg.Silver, raw, snap.ExchangeRate)
	}
	return snap
}

func (e *Engine) recoverTask(name string) {
	if r := recover(); r != nil {
		e.log.WithField("task", name).WithField("panic", r).Warn("quote task failed")
	}
}

func (e *Engine) metalQuote(inst reconcile.Instrument, mc config.Metal, raw string, fxRate float64) snapshot.MetalQuote {
	q := snapshot.MetalQuote{Status: snapshot.MarketClosed}

	intl := sina.ExtractField(raw, mc.IntlKey)
	if len(intl) == 0 {
		return q
	}
	q.International = numeric.SafeFloat(intl[0], 0)

	prevClose := 0.0
	if mc.IntlPrevCloseIndex >= 0 && len(intl) > mc.IntlPrevCloseIndex {
		prevClose = numeric.SafeFloat(intl[mc.IntlPrevCloseIndex], 0)
	}
	if prevClose == 0 && mc.IntlAltPrevCloseIndex >= 0 && len(intl) > mc.IntlAltPrevCloseIndex {
		prevClose = numeric.SafeFloat(intl[mc.IntlAltPrevCloseIndex], 0)
	}
	if q.International > 0 && prevClose > 0 {
		q.InternationalChangePct = numeric.Round((q.International-prevClose)/prevClose*100, 2)
	}

	dom := sina.ExtractField(raw, mc.DomesticKey)
	if out, ok := e.recon.Reconcile(inst, q.International, q.InternationalChangePct, fxRate, dom); ok {
		q.Domestic = out.Domestic
		q.DomesticChangePct = out.DomesticChangePct
		q.Status = out.Status
	}
	return q
}
