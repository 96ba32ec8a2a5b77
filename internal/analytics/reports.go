package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
)

const (
	lineRevenue = "oi.quantity * oi.unit_price"

	// multiItemOrders selects orders with more than one line item.
	multiItemOrders = "oi.order_id IN (SELECT order_id FROM order_items GROUP BY order_id HAVING COUNT(*) > 1)"

	spendingPatternsLimit = 10
	salesTrendDays        = 30
	combinationsLimit     = 5
	seasonalMonths        = 12
	lifetimeValueLimit    = 10
	peakPeriodsLimit      = 3
	minSensitivityItems   = 5

	secondsPerDay   = 24 * 60 * 60
	secondsPerMonth = 30 * secondsPerDay
)

type monthRow struct {
	Month      string  `gorm:"column:month"`
	OrderCount int64   `gorm:"column:order_count"`
	Revenue    float64 `gorm:"column:revenue"`
}

func (d *Dispatcher) monthlyRows(ctx context.Context, order string, limit int) ([]MonthlyStat, error) {
	month := d.dialect.monthKey("o.created_at")
	q := d.session(ctx).Table("orders AS o").
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Select(month + " AS month, COUNT(DISTINCT o.id) AS order_count, SUM(" + lineRevenue + ") AS revenue").
		Group(month).
		Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []monthRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]MonthlyStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, MonthlyStat(r))
	}
	return out, nil
}

// MonthlyOrdersStats groups orders by calendar month, newest month first.
func (d *Dispatcher) MonthlyOrdersStats(ctx context.Context) (*MonthlyStatsReport, error) {
	rows, err := d.monthlyRows(ctx, "month DESC", 0)
	if err != nil {
		return nil, fmt.Errorf("monthly orders stats: %w", err)
	}
	return &MonthlyStatsReport{MonthlyStats: rows}, nil
}

// PeakSalesPeriods returns the highest-revenue months.
func (d *Dispatcher) PeakSalesPeriods(ctx context.Context) (*PeakPeriodsReport, error) {
	rows, err := d.monthlyRows(ctx, "revenue DESC, month DESC", peakPeriodsLimit)
	if err != nil {
		return nil, fmt.Errorf("peak sales periods: %w", err)
	}
	return &PeakPeriodsReport{PeakPeriods: rows}, nil
}

type productSalesRow struct {
	Name      string  `gorm:"column:name"`
	UnitsSold int64   `gorm:"column:units_sold"`
	Revenue   float64 `gorm:"column:revenue"`
}

// TopSellingProducts ranks products by units sold. A non-positive limit uses
// the dispatcher default.
func (d *Dispatcher) TopSellingProducts(ctx context.Context, limit int) (*TopProductsReport, error) {
	if limit <= 0 {
		limit = d.topProductsLimit
	}

	var rows []productSalesRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN products p ON p.id = oi.product_id").
		Select("p.name AS name, SUM(oi.quantity) AS units_sold, SUM(" + lineRevenue + ") AS revenue").
		Group("p.id, p.name").
		Order("units_sold DESC, p.id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top selling products: %w", err)
	}

	products := make([]ProductSales, 0, len(rows))
	for _, r := range rows {
		products = append(products, ProductSales(r))
	}
	return &TopProductsReport{TopProducts: products}, nil
}

type regionalRow struct {
	Name         string  `gorm:"column:name"`
	UnitsSold    int64   `gorm:"column:units_sold"`
	AveragePrice float64 `gorm:"column:average_price"`
}

func (d *Dispatcher) regionReport(ctx context.Context, region string) (*RegionReport, error) {
	var rows []regionalRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where(d.dialect.contains("o.shipping_address"), d.dialect.substringArg(region)).
		Select("p.name AS name, SUM(oi.quantity) AS units_sold, AVG(oi.unit_price) AS average_price").
		Group("p.id, p.name").
		Order("units_sold DESC, p.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	products := make([]RegionalProduct, 0, len(rows))
	for _, r := range rows {
		products = append(products, RegionalProduct(r))
	}
	return &RegionReport{Region: region, Products: products}, nil
}

// OrdersByLocation aggregates the products shipped to addresses containing
// region (case-sensitive).
func (d *Dispatcher) OrdersByLocation(ctx context.Context, region string) (*RegionReport, error) {
	report, err := d.regionReport(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("orders by location %q: %w", region, err)
	}
	return report, nil
}

func (d *Dispatcher) ProductPerformanceByRegion(ctx context.Context, region string) (*RegionReport, error) {
	report, err := d.regionReport(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("product performance in %q: %w", region, err)
	}
	return report, nil
}

type orderTotalsRow struct {
	TotalRevenue float64 `gorm:"column:total_revenue"`
	OrderCount   int64   `gorm:"column:order_count"`
}

// AverageOrderValue divides line-item revenue by the number of orders that
// have at least one item.
func (d *Dispatcher) AverageOrderValue(ctx context.Context) (*AverageOrderValueReport, error) {
	var row orderTotalsRow
	err := d.session(ctx).Table("order_items AS oi").
		Select("COALESCE(SUM(" + lineRevenue + "), 0) AS total_revenue, COUNT(DISTINCT oi.order_id) AS order_count").
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("average order value: %w", err)
	}

	report := &AverageOrderValueReport{TotalRevenue: row.TotalRevenue, OrderCount: row.OrderCount}
	if row.OrderCount > 0 {
		report.AverageOrderValue = row.TotalRevenue / float64(row.OrderCount)
	}
	return report, nil
}

type spendingRow struct {
	Email        string  `gorm:"column:email"`
	OrderCount   int64   `gorm:"column:order_count"`
	AverageOrder float64 `gorm:"column:average_order"`
	TotalSpent   float64 `gorm:"column:total_spent"`
}

// CustomerSpendingPatterns returns the ten biggest spenders. order_count
// counts joined line-item rows and average_order averages line items.
func (d *Dispatcher) CustomerSpendingPatterns(ctx context.Context) (*SpendingPatternsReport, error) {
	var rows []spendingRow
	err := d.session(ctx).Table("orders AS o").
		Joins("JOIN customers c ON c.id = o.customer_id").
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Select("c.email AS email, COUNT(o.id) AS order_count, AVG(" + lineRevenue + ") AS average_order, SUM(" + lineRevenue + ") AS total_spent").
		Group("c.id, c.email").
		Order("total_spent DESC, c.id").
		Limit(spendingPatternsLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("customer spending patterns: %w", err)
	}

	patterns := make([]SpendingPattern, 0, len(rows))
	for _, r := range rows {
		patterns = append(patterns, SpendingPattern(r))
	}
	return &SpendingPatternsReport{SpendingPatterns: patterns}, nil
}

type stockRow struct {
	Name  string `gorm:"column:name"`
	Stock int64  `gorm:"column:stock"`
}

// LowStockAlerts lists products with stock at or below threshold, lowest first.
func (d *Dispatcher) LowStockAlerts(ctx context.Context, threshold int) (*StockAlertsReport, error) {
	var rows []stockRow
	err := d.session(ctx).Table("products AS p").
		Select("p.name AS name, p.stock AS stock").
		Where("p.stock <= ?", threshold).
		Order("p.stock, p.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("low stock alerts: %w", err)
	}

	alerts := make([]StockAlert, 0, len(rows))
	for _, r := range rows {
		status := StatusLowStock
		if r.Stock == 0 {
			status = StatusOutOfStock
		}
		alerts = append(alerts, StockAlert{Product: r.Name, StockLevel: r.Stock, Status: status})
	}
	return &StockAlertsReport{Alerts: alerts}, nil
}

type dailyRow struct {
	Day     string  `gorm:"column:day"`
	Revenue float64 `gorm:"column:revenue"`
}

// SalesTrendsAnalysis returns revenue for the last 30 days that had orders,
// newest first.
func (d *Dispatcher) SalesTrendsAnalysis(ctx context.Context) (*DailyTrendsReport, error) {
	day := d.dialect.dayKey("o.created_at")

	var rows []dailyRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Select(day + " AS day, SUM(" + lineRevenue + ") AS revenue").
		Group(day).
		Order("day DESC").
		Limit(salesTrendDays).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sales trends: %w", err)
	}

	trends := make([]DailyRevenue, 0, len(rows))
	for _, r := range rows {
		trends = append(trends, DailyRevenue{Date: r.Day, Revenue: r.Revenue})
	}
	return &DailyTrendsReport{DailyTrends: trends}, nil
}

type combinationRow struct {
	OrderID      uint   `gorm:"column:order_id"`
	ProductNames string `gorm:"column:product_names"`
	Frequency    int64  `gorm:"column:frequency"`
}

// PopularProductCombinations returns the product lists of the five orders with
// the most line items.
func (d *Dispatcher) PopularProductCombinations(ctx context.Context) (*CombinationsReport, error) {
	var rows []combinationRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where(multiItemOrders).
		Select("oi.order_id AS order_id, " + d.dialect.joinNames("p.name") + " AS product_names, COUNT(*) AS frequency").
		Group("oi.order_id").
		Having("COUNT(*) > 1").
		Order("frequency DESC, oi.order_id").
		Limit(combinationsLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("popular product combinations: %w", err)
	}

	combos := make([]ProductCombination, 0, len(rows))
	for _, r := range rows {
		names := strings.Split(r.ProductNames, listSeparator)
		sort.Strings(names)
		combos = append(combos, ProductCombination{Products: names, Frequency: r.Frequency})
	}
	return &CombinationsReport{PopularCombinations: combos}, nil
}

type categoryRow struct {
	Name         string  `gorm:"column:name"`
	UnitsSold    int64   `gorm:"column:units_sold"`
	Revenue      float64 `gorm:"column:revenue"`
	AveragePrice float64 `gorm:"column:average_price"`
}

// CategoryPerformance reports per-product sales inside one category and the
// category's total revenue.
func (d *Dispatcher) CategoryPerformance(ctx context.Context, category string) (*CategoryReport, error) {
	var rows []categoryRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where("p.category = ?", category).
		Select("p.name AS name, SUM(oi.quantity) AS units_sold, SUM(" + lineRevenue + ") AS revenue, AVG(oi.unit_price) AS average_price").
		Group("p.id, p.name").
		Order("revenue DESC, p.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("category performance %q: %w", category, err)
	}

	report := &CategoryReport{Category: category, Products: make([]CategoryProduct, 0, len(rows))}
	for _, r := range rows {
		report.TotalRevenue += r.Revenue
		report.Products = append(report.Products, CategoryProduct(r))
	}
	return report, nil
}

type retentionRow struct {
	Email      string `gorm:"column:email"`
	OrderCount int64  `gorm:"column:order_count"`
	FirstOrder int64  `gorm:"column:first_order"`
	LastOrder  int64  `gorm:"column:last_order"`
}

// CustomerRetentionAnalysis covers customers with more than one order.
func (d *Dispatcher) CustomerRetentionAnalysis(ctx context.Context) (*RetentionReport, error) {
	var rows []retentionRow
	err := d.session(ctx).Table("orders AS o").
		Joins("JOIN customers c ON c.id = o.customer_id").
		Select("c.email AS email, COUNT(o.id) AS order_count, " +
			d.dialect.epoch("MIN(o.created_at)") + " AS first_order, " +
			d.dialect.epoch("MAX(o.created_at)") + " AS last_order").
		Group("c.id, c.email").
		Having("COUNT(o.id) > 1").
		Order("order_count DESC, c.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("customer retention: %w", err)
	}

	now := d.now().Unix()
	records := make([]RetentionRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, RetentionRecord{
			Email:             r.Email,
			OrderCount:        r.OrderCount,
			DaysBetweenOrders: (r.LastOrder - r.FirstOrder) / secondsPerDay,
			CustomerAgeDays:   (now - r.FirstOrder) / secondsPerDay,
		})
	}
	return &RetentionReport{RetentionData: records}, nil
}

type sensitivityRow struct {
	ProductID    uint    `gorm:"column:product_id"`
	Name         string  `gorm:"column:name"`
	AveragePrice float64 `gorm:"column:average_price"`
	TotalSold    int64   `gorm:"column:total_sold"`
}

type pricePoint struct {
	ProductID uint    `gorm:"column:product_id"`
	UnitPrice float64 `gorm:"column:unit_price"`
	Quantity  float64 `gorm:"column:quantity"`
}

// PriceSensitivityAnalysis scores products with more than five line items by
// the Pearson correlation between unit price and quantity. A product whose
// prices or quantities never vary scores 0.
func (d *Dispatcher) PriceSensitivityAnalysis(ctx context.Context) (*PriceSensitivityReport, error) {
	var rows []sensitivityRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN products p ON p.id = oi.product_id").
		Select("p.id AS product_id, p.name AS name, AVG(oi.unit_price) AS average_price, SUM(oi.quantity) AS total_sold").
		Group("p.id, p.name").
		Having("COUNT(*) > ?", minSensitivityItems).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("price sensitivity: %w", err)
	}

	report := &PriceSensitivityReport{PriceSensitivity: make([]PriceSensitivity, 0, len(rows))}
	if len(rows) == 0 {
		return report, nil
	}

	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ProductID
	}
	var points []pricePoint
	err = d.session(ctx).Table("order_items").
		Select("product_id, unit_price, quantity").
		Where("product_id IN ?", ids).
		Order("product_id, id").
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("price sensitivity points: %w", err)
	}

	prices := make(map[uint]stats.Float64Data, len(rows))
	quantities := make(map[uint]stats.Float64Data, len(rows))
	for _, p := range points {
		prices[p.ProductID] = append(prices[p.ProductID], p.UnitPrice)
		quantities[p.ProductID] = append(quantities[p.ProductID], p.Quantity)
	}

	for _, r := range rows {
		report.PriceSensitivity = append(report.PriceSensitivity, PriceSensitivity{
			Product:          r.Name,
			AveragePrice:     r.AveragePrice,
			TotalSold:        r.TotalSold,
			SensitivityScore: correlation(prices[r.ProductID], quantities[r.ProductID]),
		})
	}
	sort.SliceStable(report.PriceSensitivity, func(i, j int) bool {
		a, b := report.PriceSensitivity[i], report.PriceSensitivity[j]
		if a.SensitivityScore != b.SensitivityScore {
			return a.SensitivityScore > b.SensitivityScore
		}
		return a.Product < b.Product
	})
	return report, nil
}

func correlation(x, y stats.Float64Data) float64 {
	c, err := stats.Correlation(x, y)
	if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}

type seasonalRow struct {
	Year            int64   `gorm:"column:year"`
	Month           int64   `gorm:"column:month"`
	TotalSales      float64 `gorm:"column:total_sales"`
	OrderCount      int64   `gorm:"column:order_count"`
	UniqueCustomers int64   `gorm:"column:unique_customers"`
}

// SeasonalTrendsAnalysis groups sales by year and month in chronological order,
// keeping the first twelve months on record.
func (d *Dispatcher) SeasonalTrendsAnalysis(ctx context.Context) (*SeasonalTrendsReport, error) {
	year, month := d.dialect.year("o.created_at"), d.dialect.month("o.created_at")

	var rows []seasonalRow
	err := d.session(ctx).Table("orders AS o").
		Joins("JOIN customers c ON c.id = o.customer_id").
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Select(year + " AS year, " + month + " AS month, SUM(" + lineRevenue + ") AS total_sales, " +
			"COUNT(DISTINCT o.id) AS order_count, COUNT(DISTINCT c.email) AS unique_customers").
		Group(year + ", " + month).
		Order(year + ", " + month).
		Limit(seasonalMonths).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("seasonal trends: %w", err)
	}

	trends := make([]SeasonalTrend, 0, len(rows))
	for _, r := range rows {
		trends = append(trends, SeasonalTrend(r))
	}
	return &SeasonalTrendsReport{SeasonalTrends: trends}, nil
}

type lifetimeRow struct {
	Email      string  `gorm:"column:email"`
	TotalValue float64 `gorm:"column:total_value"`
	OrderCount int64   `gorm:"column:order_count"`
	FirstOrder int64   `gorm:"column:first_order"`
}

// CustomerLifetimeValue returns the ten most valuable customers. Activity is
// counted in 30-day months, rounded up, and never less than one.
func (d *Dispatcher) CustomerLifetimeValue(ctx context.Context) (*LifetimeValueReport, error) {
	var rows []lifetimeRow
	err := d.session(ctx).Table("orders AS o").
		Joins("JOIN customers c ON c.id = o.customer_id").
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Select("c.email AS email, SUM(" + lineRevenue + ") AS total_value, COUNT(o.id) AS order_count, " +
			d.dialect.epoch("MIN(o.created_at)") + " AS first_order").
		Group("c.email").
		Order("total_value DESC, c.email").
		Limit(lifetimeValueLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("customer lifetime value: %w", err)
	}

	now := d.now().Unix()
	values := make([]LifetimeValue, 0, len(rows))
	for _, r := range rows {
		months := int64(math.Ceil(float64(now-r.FirstOrder) / secondsPerMonth))
		if months < 1 {
			months = 1
		}
		values = append(values, LifetimeValue{
			Email:        r.Email,
			TotalValue:   r.TotalValue,
			OrderCount:   r.OrderCount,
			MonthsActive: months,
			MonthlyValue: round2(r.TotalValue / float64(months)),
		})
	}
	return &LifetimeValueReport{CustomerLifetimeValues: values}, nil
}

type affinityRow struct {
	Category  string `gorm:"column:category"`
	Frequency int64  `gorm:"column:frequency"`
}

// ProductAffinityAnalysis counts line items per (order, category) among
// multi-item orders and then pairs every two of those rows, scoring each pair
// with the smaller count. Rows are paired as returned, not per order, so the
// figure approximates co-occurrence rather than measuring it.
func (d *Dispatcher) ProductAffinityAnalysis(ctx context.Context) (*AffinityReport, error) {
	var rows []affinityRow
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where(multiItemOrders).
		Select("p.category AS category, COUNT(oi.order_id) AS frequency").
		Group("oi.order_id, p.category").
		Order("frequency DESC, oi.order_id, p.category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("product affinity: %w", err)
	}

	return &AffinityReport{CategoryAffinities: pairCategories(rows)}, nil
}

func pairCategories(rows []affinityRow) []CategoryAffinity {
	pairs := make([]CategoryAffinity, 0, len(rows)*(len(rows)-1)/2+1)
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			a, b := rows[i], rows[j]
			freq := a.Frequency
			if b.Frequency < freq {
				freq = b.Frequency
			}
			pairs = append(pairs, CategoryAffinity{Categories: [2]string{a.Category, b.Category}, Frequency: freq})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Frequency > pairs[j].Frequency })
	return pairs
}
