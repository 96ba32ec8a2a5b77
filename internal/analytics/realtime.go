package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/judyrop/storefront-analytics/models"
)

const (
	realtimeTopProducts = 5
	orderStatusComplete = "completed"
)

// RealtimeSummary is the dashboard snapshot for the current day and month.
type RealtimeSummary struct {
	TodayRevenue   float64        `json:"today_revenue"`
	MonthlyRevenue float64        `json:"monthly_revenue"`
	MonthlyOrders  int64          `json:"monthly_orders"`
	ConversionRate float64        `json:"conversion_rate"`
	TopProducts    []ProductSales `json:"top_products"`
}

type window struct {
	start, end time.Time
}

// dayWindow and monthWindow are half-open [start, end) in now's location.
func dayWindow(now time.Time) window {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return window{start: start, end: start.AddDate(0, 0, 1)}
}

func monthWindow(now time.Time) window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return window{start: start, end: start.AddDate(0, 1, 0)}
}

// Realtime computes today's and this month's revenue, the month's order count,
// today's conversion rate (completed orders per visit, as a percentage) and
// today's five best sellers.
func (d *Dispatcher) Realtime(ctx context.Context) (*RealtimeSummary, error) {
	now := d.now()
	today, month := dayWindow(now), monthWindow(now)

	summary := &RealtimeSummary{}
	var err error
	if summary.TodayRevenue, err = d.revenueBetween(ctx, today); err != nil {
		return nil, fmt.Errorf("realtime today revenue: %w", err)
	}
	if summary.MonthlyRevenue, err = d.revenueBetween(ctx, month); err != nil {
		return nil, fmt.Errorf("realtime monthly revenue: %w", err)
	}

	err = d.session(ctx).Model(&models.Order{}).
		Where("created_at >= ? AND created_at < ?", month.start, month.end).
		Count(&summary.MonthlyOrders).Error
	if err != nil {
		return nil, fmt.Errorf("realtime monthly orders: %w", err)
	}

	if summary.ConversionRate, err = d.conversionRate(ctx, today); err != nil {
		return nil, fmt.Errorf("realtime conversion rate: %w", err)
	}

	var rows []productSalesRow
	err = d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where("o.created_at >= ? AND o.created_at < ?", today.start, today.end).
		Select("p.name AS name, SUM(oi.quantity) AS units_sold, SUM(" + lineRevenue + ") AS revenue").
		Group("p.id, p.name").
		Order("units_sold DESC, p.id").
		Limit(realtimeTopProducts).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("realtime top products: %w", err)
	}
	summary.TopProducts = make([]ProductSales, 0, len(rows))
	for _, r := range rows {
		summary.TopProducts = append(summary.TopProducts, ProductSales(r))
	}
	return summary, nil
}

func (d *Dispatcher) revenueBetween(ctx context.Context, w window) (float64, error) {
	var total struct {
		Revenue float64 `gorm:"column:revenue"`
	}
	err := d.session(ctx).Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.created_at >= ? AND o.created_at < ?", w.start, w.end).
		Select("COALESCE(SUM(" + lineRevenue + "), 0) AS revenue").
		Scan(&total).Error
	return total.Revenue, err
}

func (d *Dispatcher) conversionRate(ctx context.Context, w window) (float64, error) {
	var visits int64
	err := d.session(ctx).Model(&models.AnalyticsEvent{}).
		Where("created_at >= ? AND created_at < ?", w.start, w.end).
		Count(&visits).Error
	if err != nil || visits == 0 {
		return 0, err
	}

	var completed int64
	err = d.session(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at >= ? AND created_at < ?", orderStatusComplete, w.start, w.end).
		Count(&completed).Error
	if err != nil {
		return 0, err
	}
	return round2(float64(completed) / float64(visits) * 100), nil
}
