package analytics

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/judyrop/storefront-analytics/models"
)

const periodSectionLimit = 10

// periodRules picks the look-back window; the first match wins and anything
// else covers a year.
var periodRules = []struct {
	pattern *regexp.Regexp
	days    int
}{
	{regexp.MustCompile(`daily|today|24 hour`), 1},
	{regexp.MustCompile(`weekly|last week|7 day`), 7},
	{regexp.MustCompile(`monthly|30 day|last month`), 30},
}

const defaultPeriodDays = 365

// periodSections are the optional report sections, each included when its
// keywords appear in the question.
var periodSections = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"revenue", regexp.MustCompile(`revenue|sales|money|earning|income`)},
	{"products", regexp.MustCompile(`product|item|selling`)},
	{"categories", regexp.MustCompile(`categor|group|type`)},
	{"patterns", regexp.MustCompile(`customer|buyer|shopper|spend`)},
}

// periodDays returns the window length for a lowercased question.
func periodDays(q string) int {
	for _, r := range periodRules {
		if r.pattern.MatchString(q) {
			return r.days
		}
	}
	return defaultPeriodDays
}

type PeriodSummary struct {
	Period        string        `json:"period"`
	TotalRevenue  float64       `json:"total_revenue"`
	TotalOrders   int64         `json:"total_orders"`
	TotalProducts int64         `json:"total_products"`
	TopProduct    *ProductUnits `json:"top_product"`
}

type ProductUnits struct {
	Name      string `json:"name"`
	UnitsSold int64  `json:"units_sold"`
}

type PeriodDay struct {
	Day        string  `json:"day"`
	Revenue    float64 `json:"revenue"`
	OrderCount int64   `json:"order_count"`
}

type CategoryRevenue struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
}

type CustomerSpend struct {
	Email      string  `json:"email"`
	TotalSpent float64 `json:"total_spent"`
	OrderCount int64   `json:"order_count"`
}

// PeriodReport answers a question about a trailing window. Sections the
// question did not ask for are nil and left out of the JSON; a requested
// section with no rows is an empty list.
type PeriodReport struct {
	Summary    PeriodSummary      `json:"summary"`
	Revenue    *[]PeriodDay       `json:"revenue,omitempty"`
	Products   *[]ProductSales    `json:"products,omitempty"`
	Categories *[]CategoryRevenue `json:"categories,omitempty"`
	Patterns   *[]CustomerSpend   `json:"patterns,omitempty"`
}

// NaturalLanguageReport summarises the window the question names (a day, a
// week, 30 days or a year ending now) and adds the revenue, products,
// categories and customer sections its keywords ask for.
func (d *Dispatcher) NaturalLanguageReport(ctx context.Context, question string) (*PeriodReport, error) {
	start := d.now()
	q := strings.ToLower(question)
	days := periodDays(q)
	w := window{start: start.AddDate(0, 0, -days), end: start}

	var sections []string
	for _, sec := range periodSections {
		if sec.pattern.MatchString(q) {
			sections = append(sections, sec.name)
		}
	}

	report, err := d.periodReport(ctx, days, w, sections)
	ev := QueryEvent{Text: question, Kind: KindPeriodReport, Params: sections, Outcome: OutcomeOK, At: start}
	if err != nil {
		d.log.Error("Period report failed", zap.String("query", question), zap.Error(err))
		ev.Outcome = OutcomeError
		report = nil
	}
	ev.Duration = d.now().Sub(start)
	d.notify(ctx, ev)
	return report, err
}

func (d *Dispatcher) periodReport(ctx context.Context, days int, w window, sections []string) (*PeriodReport, error) {
	summary, err := d.periodSummary(ctx, w)
	if err != nil {
		return nil, err
	}
	summary.Period = fmt.Sprintf("Last %d days", days)
	report := &PeriodReport{Summary: *summary}

	for _, name := range sections {
		switch name {
		case "revenue":
			rows, err := d.periodRevenue(ctx, w)
			if err != nil {
				return nil, err
			}
			report.Revenue = &rows
		case "products":
			rows, err := d.periodProducts(ctx, w)
			if err != nil {
				return nil, err
			}
			report.Products = &rows
		case "categories":
			rows, err := d.periodCategories(ctx, w)
			if err != nil {
				return nil, err
			}
			report.Categories = &rows
		case "patterns":
			rows, err := d.periodCustomers(ctx, w)
			if err != nil {
				return nil, err
			}
			report.Patterns = &rows
		}
	}
	return report, nil
}

func (d *Dispatcher) periodSummary(ctx context.Context, w window) (*PeriodSummary, error) {
	summary := &PeriodSummary{}
	var err error
	if summary.TotalRevenue, err = d.revenueBetween(ctx, w); err != nil {
		return nil, fmt.Errorf("period revenue: %w", err)
	}

	err = d.session(ctx).Model(&models.Order{}).
		Where("created_at >= ? AND created_at < ?", w.start, w.end).
		Count(&summary.TotalOrders).Error
	if err != nil {
		return nil, fmt.Errorf("period orders: %w", err)
	}

	if err := d.session(ctx).Model(&models.Product{}).Count(&summary.TotalProducts).Error; err != nil {
		return nil, fmt.Errorf("period products: %w", err)
	}

	var top []productSalesRow
	err = d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where("o.created_at >= ? AND o.created_at < ?", w.start, w.end).
		Select("p.name AS name, SUM(oi.quantity) AS units_sold").
		Group("p.id, p.name").
		Order("units_sold DESC, p.id").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return nil, fmt.Errorf("period top product: %w", err)
	}
	if len(top) == 1 {
		summary.TopProduct = &ProductUnits{Name: top[0].Name, UnitsSold: top[0].UnitsSold}
	}
	return summary, nil
}

type periodDayRow struct {
	Day        string  `gorm:"column:day"`
	Revenue    float64 `gorm:"column:revenue"`
	OrderCount int64   `gorm:"column:order_count"`
}

// periodRevenue is oldest day first, one row per day with orders.
func (d *Dispatcher) periodRevenue(ctx context.Context, w window) ([]PeriodDay, error) {
	day := d.dialect.dayKey("o.created_at")

	var rows []periodDayRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.created_at >= ? AND o.created_at < ?", w.start, w.end).
		Select(day + " AS day, SUM(" + lineRevenue + ") AS revenue, COUNT(DISTINCT o.id) AS order_count").
		Group(day).
		Order("day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("period daily revenue: %w", err)
	}

	out := make([]PeriodDay, 0, len(rows))
	for _, r := range rows {
		out = append(out, PeriodDay(r))
	}
	return out, nil
}

func (d *Dispatcher) periodProducts(ctx context.Context, w window) ([]ProductSales, error) {
	var rows []productSalesRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where("o.created_at >= ? AND o.created_at < ?", w.start, w.end).
		Select("p.name AS name, SUM(oi.quantity) AS units_sold, SUM(" + lineRevenue + ") AS revenue").
		Group("p.id, p.name").
		Order("revenue DESC, p.id").
		Limit(periodSectionLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("period products: %w", err)
	}

	out := make([]ProductSales, 0, len(rows))
	for _, r := range rows {
		out = append(out, ProductSales(r))
	}
	return out, nil
}

type categoryRevenueRow struct {
	Name    string  `gorm:"column:name"`
	Revenue float64 `gorm:"column:revenue"`
}

func (d *Dispatcher) periodCategories(ctx context.Context, w window) ([]CategoryRevenue, error) {
	var rows []categoryRevenueRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where("o.created_at >= ? AND o.created_at < ?", w.start, w.end).
		Select("p.category AS name, SUM(" + lineRevenue + ") AS revenue").
		Group("p.category").
		Order("revenue DESC, p.category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("period categories: %w", err)
	}

	out := make([]CategoryRevenue, 0, len(rows))
	for _, r := range rows {
		out = append(out, CategoryRevenue(r))
	}
	return out, nil
}

type customerSpendRow struct {
	Email      string  `gorm:"column:email"`
	TotalSpent float64 `gorm:"column:total_spent"`
	OrderCount int64   `gorm:"column:order_count"`
}

func (d *Dispatcher) periodCustomers(ctx context.Context, w window) ([]CustomerSpend, error) {
	var rows []customerSpendRow
	err := d.session(ctx).Table("orders AS o").
		Joins("JOIN customers c ON c.id = o.customer_id").
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Where("o.created_at >= ? AND o.created_at < ?", w.start, w.end).
		Select("c.email AS email, SUM(" + lineRevenue + ") AS total_spent, COUNT(DISTINCT o.id) AS order_count").
		Group("c.id, c.email").
		Order("total_spent DESC, c.id").
		Limit(periodSectionLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("period customers: %w", err)
	}

	out := make([]CustomerSpend, 0, len(rows))
	for _, r := range rows {
		out = append(out, CustomerSpend(r))
	}
	return out, nil
}
