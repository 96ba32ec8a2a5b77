package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/judyrop/storefront-analytics/internal/config"
	"github.com/judyrop/storefront-analytics/internal/database"
	"github.com/judyrop/storefront-analytics/models"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

// getTestDB opens a private in-memory sqlite database with the storefront
// schema. One connection keeps every query on the same memory database.
func getTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestDispatcher(t *testing.T, db *gorm.DB, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewDispatcher(db, opts...)
}

type line struct {
	product models.Product
	qty     int
	price   float64
}

type seeder struct {
	t  *testing.T
	db *gorm.DB
}

func (s seeder) product(name, category string, price float64, stock int) models.Product {
	s.t.Helper()
	p := models.Product{Name: name, Category: category, Price: price, Stock: stock}
	require.NoError(s.t, s.db.Create(&p).Error)
	return p
}

func (s seeder) customer(email string) models.Customer {
	s.t.Helper()
	c := models.Customer{Email: email, Name: email}
	require.NoError(s.t, s.db.Create(&c).Error)
	return c
}

func (s seeder) order(c models.Customer, address string, at time.Time, lines ...line) models.Order {
	s.t.Helper()
	o := models.Order{
		CustomerID:      c.ID,
		Status:          orderStatusComplete,
		ShippingAddress: address,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	for _, l := range lines {
		o.TotalAmount += float64(l.qty) * l.price
		o.Items = append(o.Items, models.OrderItem{
			ProductID: l.product.ID,
			Quantity:  l.qty,
			UnitPrice: l.price,
			CreatedAt: at,
		})
	}
	require.NoError(s.t, s.db.Create(&o).Error)
	return o
}

func (s seeder) visit(at time.Time) {
	s.t.Helper()
	require.NoError(s.t, s.db.Create(&models.AnalyticsEvent{Path: "/", SessionID: uuid.NewString(), CreatedAt: at}).Error)
}

func onDay(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 10, 0, 0, 0, time.UTC)
}
