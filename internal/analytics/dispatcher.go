package analytics

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome labels for QueryEvent.
const (
	OutcomeOK           = "ok"
	OutcomeUnrecognized = "unrecognized"
	OutcomeError        = "error"
)

// QueryEvent describes one HandleQuery call after it finished.
type QueryEvent struct {
	Text     string
	Kind     Kind
	Params   []string
	Outcome  string
	Duration time.Duration
	At       time.Time
}

// Observer receives an event for every dispatched query. Implementations must
// not block.
type Observer interface {
	ObserveQuery(ctx context.Context, ev QueryEvent)
}

type ObserverFunc func(ctx context.Context, ev QueryEvent)

func (f ObserverFunc) ObserveQuery(ctx context.Context, ev QueryEvent) { f(ctx, ev) }

type handlerFunc func(ctx context.Context, d *Dispatcher, params []string) (any, error)

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
	run     handlerFunc
}

// rules is evaluated top to bottom and the first match wins. Several patterns
// overlap ("monthly orders from X" must stay a monthly report), so the order is
// part of the contract.
var rules = []rule{
	{KindMonthlyOrdersStats, regexp.MustCompile(`(?i)monthly orders|orders per month`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.MonthlyOrdersStats(ctx) }},
	{KindTopSellingProducts, regexp.MustCompile(`(?i)top selling products`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) {
			return d.TopSellingProducts(ctx, d.topProductsLimit)
		}},
	{KindOrdersByLocation, regexp.MustCompile(`(?i)orders from (.+)`),
		func(ctx context.Context, d *Dispatcher, p []string) (any, error) { return d.OrdersByLocation(ctx, p[0]) }},
	{KindPeakSalesPeriods, regexp.MustCompile(`(?i)peak (?:months|periods)`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.PeakSalesPeriods(ctx) }},
	{KindAverageOrderValue, regexp.MustCompile(`(?i)average order value`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.AverageOrderValue(ctx) }},
	{KindCustomerSpendingPatterns, regexp.MustCompile(`(?i)customer spending patterns`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.CustomerSpendingPatterns(ctx) }},
	{KindProductPerformanceByRegion, regexp.MustCompile(`(?i)product performance in (.+)`),
		func(ctx context.Context, d *Dispatcher, p []string) (any, error) {
			return d.ProductPerformanceByRegion(ctx, p[0])
		}},
	{KindLowStockAlerts, regexp.MustCompile(`(?i)inventory alerts`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) {
			return d.LowStockAlerts(ctx, d.lowStockThreshold)
		}},
	{KindSalesTrendsAnalysis, regexp.MustCompile(`(?i)sales trends`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.SalesTrendsAnalysis(ctx) }},
	{KindPopularProductCombinations, regexp.MustCompile(`(?i)popular product combinations`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.PopularProductCombinations(ctx) }},
	{KindCategoryPerformance, regexp.MustCompile(`(?i)category performance (.+)`),
		func(ctx context.Context, d *Dispatcher, p []string) (any, error) { return d.CategoryPerformance(ctx, p[0]) }},
	{KindCustomerRetentionAnalysis, regexp.MustCompile(`(?i)customer retention`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.CustomerRetentionAnalysis(ctx) }},
	{KindPriceSensitivityAnalysis, regexp.MustCompile(`(?i)price sensitivity`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.PriceSensitivityAnalysis(ctx) }},
	{KindSeasonalTrendsAnalysis, regexp.MustCompile(`(?i)seasonal trends`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.SeasonalTrendsAnalysis(ctx) }},
	{KindCustomerLifetimeValue, regexp.MustCompile(`(?i)customer lifetime value`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.CustomerLifetimeValue(ctx) }},
	{KindProductAffinityAnalysis, regexp.MustCompile(`(?i)product affinity`),
		func(ctx context.Context, d *Dispatcher, _ []string) (any, error) { return d.ProductAffinityAnalysis(ctx) }},
}

// Kinds lists the routable report kinds in evaluation order.
func Kinds() []Kind {
	kinds := make([]Kind, len(rules))
	for i, r := range rules {
		kinds[i] = r.kind
	}
	return kinds
}

// Dispatcher routes free-text analytics queries to report aggregators. It
// holds no mutable state after construction and is safe for concurrent use;
// every call reads storage independently.
type Dispatcher struct {
	db                *gorm.DB
	dialect           dialect
	log               *zap.Logger
	now               func() time.Time
	observers         []Observer
	topProductsLimit  int
	lowStockThreshold int
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithClock replaces time.Now for the reports that measure ages.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithObservers(obs ...Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, obs...) }
}

func WithTopProductsLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.topProductsLimit = n
		}
	}
}

func WithLowStockThreshold(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.lowStockThreshold = n
		}
	}
}

func NewDispatcher(db *gorm.DB, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		db:                db,
		dialect:           dialectFor(db),
		log:               zap.NewNop(),
		now:               time.Now,
		topProductsLimit:  10,
		lowStockThreshold: 20,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleQuery classifies text and runs the first matching report. A query no
// rule matches is not an error: it yields a Response whose body is
// {"error": "Query not understood"}. A storage failure is returned as err and
// no partial result is produced.
func (d *Dispatcher) HandleQuery(ctx context.Context, text string) (*Response, error) {
	start := d.now()
	log := d.log.With(zap.String("query", text))

	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		params := m[1:]
		log.Debug("Query matched", zap.String("kind", string(r.kind)), zap.Strings("params", params))

		body, err := r.run(ctx, d, params)
		if err != nil {
			log.Error("Report failed", zap.String("kind", string(r.kind)), zap.Error(err))
			d.notify(ctx, QueryEvent{Text: text, Kind: r.kind, Params: params, Outcome: OutcomeError, At: start,
				Duration: d.now().Sub(start)})
			return nil, err
		}

		d.notify(ctx, QueryEvent{Text: text, Kind: r.kind, Params: params, Outcome: OutcomeOK, At: start,
			Duration: d.now().Sub(start)})
		return &Response{Kind: r.kind, Params: params, Body: body}, nil
	}

	log.Debug("Query not understood")
	d.notify(ctx, QueryEvent{Text: text, Kind: KindUnknown, Outcome: OutcomeUnrecognized, At: start,
		Duration: d.now().Sub(start)})
	return &Response{Kind: KindUnknown, Body: ErrorBody{Error: QueryNotUnderstood}}, nil
}

func (d *Dispatcher) notify(ctx context.Context, ev QueryEvent) {
	for _, o := range d.observers {
		o.ObserveQuery(ctx, ev)
	}
}

// session scopes a query to the caller's context.
func (d *Dispatcher) session(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}
