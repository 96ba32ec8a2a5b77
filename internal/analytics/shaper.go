package analytics

import (
	"encoding/json"
	"math"
)

// Kind names a report the dispatcher can route to.
type Kind string

const (
	KindMonthlyOrdersStats         Kind = "monthly_orders_stats"
	KindTopSellingProducts         Kind = "top_selling_products"
	KindOrdersByLocation           Kind = "orders_by_location"
	KindPeakSalesPeriods           Kind = "peak_sales_periods"
	KindAverageOrderValue          Kind = "average_order_value"
	KindCustomerSpendingPatterns   Kind = "customer_spending_patterns"
	KindProductPerformanceByRegion Kind = "product_performance_by_region"
	KindLowStockAlerts             Kind = "low_stock_alerts"
	KindSalesTrendsAnalysis        Kind = "sales_trends_analysis"
	KindPopularProductCombinations Kind = "popular_product_combinations"
	KindCategoryPerformance        Kind = "category_performance"
	KindCustomerRetentionAnalysis  Kind = "customer_retention_analysis"
	KindPriceSensitivityAnalysis   Kind = "price_sensitivity_analysis"
	KindSeasonalTrendsAnalysis     Kind = "seasonal_trends_analysis"
	KindCustomerLifetimeValue      Kind = "customer_lifetime_value"
	KindProductAffinityAnalysis    Kind = "product_affinity_analysis"

	// KindPeriodReport is the trailing-window report behind
	// NaturalLanguageReport. No HandleQuery rule routes to it.
	KindPeriodReport Kind = "period_report"

	// KindUnknown marks a query no rule matched.
	KindUnknown Kind = "unknown"
)

// QueryNotUnderstood is the error text returned for unmatched queries.
const QueryNotUnderstood = "Query not understood"

// Response is the outcome of HandleQuery. It marshals to Body alone, so
// callers see e.g. {"monthly_stats": [...]} or {"error": "Query not understood"}.
type Response struct {
	Kind   Kind
	Params []string
	Body   any
}

func (r *Response) MarshalJSON() ([]byte, error) { return json.Marshal(r.Body) }

// Understood reports whether a rule matched.
func (r *Response) Understood() bool { return r.Kind != KindUnknown }

type ErrorBody struct {
	Error string `json:"error"`
}

type MonthlyStat struct {
	Month      string  `json:"month"`
	OrderCount int64   `json:"order_count"`
	Revenue    float64 `json:"revenue"`
}

type MonthlyStatsReport struct {
	MonthlyStats []MonthlyStat `json:"monthly_stats"`
}

type PeakPeriodsReport struct {
	PeakPeriods []MonthlyStat `json:"peak_periods"`
}

type ProductSales struct {
	Name      string  `json:"name"`
	UnitsSold int64   `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
}

type TopProductsReport struct {
	TopProducts []ProductSales `json:"top_products"`
}

type RegionalProduct struct {
	Name         string  `json:"name"`
	UnitsSold    int64   `json:"units_sold"`
	AveragePrice float64 `json:"average_price"`
}

type RegionReport struct {
	Region   string            `json:"region"`
	Products []RegionalProduct `json:"products"`
}

type AverageOrderValueReport struct {
	AverageOrderValue float64 `json:"average_order_value"`
	TotalRevenue      float64 `json:"total_revenue"`
	OrderCount        int64   `json:"order_count"`
}

// SpendingPattern.AverageOrder is the mean line-item value (quantity ×
// unit_price per order item), not the mean order total. The name is kept
// because dashboard and export consumers key off it.
type SpendingPattern struct {
	Email        string  `json:"email"`
	OrderCount   int64   `json:"order_count"`
	AverageOrder float64 `json:"average_order"`
	TotalSpent   float64 `json:"total_spent"`
}

type SpendingPatternsReport struct {
	SpendingPatterns []SpendingPattern `json:"spending_patterns"`
}

const (
	StatusOutOfStock = "Out of Stock"
	StatusLowStock   = "Low Stock"
)

type StockAlert struct {
	Product    string `json:"product"`
	StockLevel int64  `json:"stock_level"`
	Status     string `json:"status"`
}

type StockAlertsReport struct {
	Alerts []StockAlert `json:"alerts"`
}

type DailyRevenue struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
}

type DailyTrendsReport struct {
	DailyTrends []DailyRevenue `json:"daily_trends"`
}

type ProductCombination struct {
	Products  []string `json:"products"`
	Frequency int64    `json:"frequency"`
}

type CombinationsReport struct {
	PopularCombinations []ProductCombination `json:"popular_combinations"`
}

type CategoryProduct struct {
	Name         string  `json:"name"`
	UnitsSold    int64   `json:"units_sold"`
	Revenue      float64 `json:"revenue"`
	AveragePrice float64 `json:"average_price"`
}

type CategoryReport struct {
	Category     string            `json:"category"`
	TotalRevenue float64           `json:"total_revenue"`
	Products     []CategoryProduct `json:"products"`
}

type RetentionRecord struct {
	Email             string `json:"email"`
	OrderCount        int64  `json:"order_count"`
	DaysBetweenOrders int64  `json:"days_between_orders"`
	CustomerAgeDays   int64  `json:"customer_age_days"`
}

type RetentionReport struct {
	RetentionData []RetentionRecord `json:"retention_data"`
}

type PriceSensitivity struct {
	Product          string  `json:"product"`
	AveragePrice     float64 `json:"average_price"`
	TotalSold        int64   `json:"total_sold"`
	SensitivityScore float64 `json:"sensitivity_score"`
}

type PriceSensitivityReport struct {
	PriceSensitivity []PriceSensitivity `json:"price_sensitivity"`
}

type SeasonalTrend struct {
	Year            int64   `json:"year"`
	Month           int64   `json:"month"`
	TotalSales      float64 `json:"total_sales"`
	OrderCount      int64   `json:"order_count"`
	UniqueCustomers int64   `json:"unique_customers"`
}

type SeasonalTrendsReport struct {
	SeasonalTrends []SeasonalTrend `json:"seasonal_trends"`
}

type LifetimeValue struct {
	Email        string  `json:"email"`
	TotalValue   float64 `json:"total_value"`
	OrderCount   int64   `json:"order_count"`
	MonthsActive int64   `json:"months_active"`
	MonthlyValue float64 `json:"monthly_value"`
}

type LifetimeValueReport struct {
	CustomerLifetimeValues []LifetimeValue `json:"customer_lifetime_values"`
}

type CategoryAffinity struct {
	Categories [2]string `json:"categories"`
	Frequency  int64     `json:"frequency"`
}

type AffinityReport struct {
	CategoryAffinities []CategoryAffinity `json:"category_affinities"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
