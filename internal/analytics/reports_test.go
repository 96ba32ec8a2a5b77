package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopSellingProductsRanksByUnits(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	b := s.product("B", "Books", 5, 50)
	s.order(s.customer("a@example.com"), "1 Main St, Springfield", onDay(2026, time.March, 1),
		line{a, 2, 10}, line{b, 1, 5})

	report, err := newTestDispatcher(t, db).TopSellingProducts(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []ProductSales{
		{Name: "A", UnitsSold: 2, Revenue: 20},
		{Name: "B", UnitsSold: 1, Revenue: 5},
	}, report.TopProducts)
}

func TestTopSellingProductsHonoursLimit(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	c := s.customer("c@example.com")
	for i, name := range []string{"P1", "P2", "P3", "P4", "P5"} {
		p := s.product(name, "Games", 3, 10)
		s.order(c, "Somewhere", onDay(2026, time.February, i+1), line{p, i + 1, 3})
	}

	report, err := newTestDispatcher(t, db).TopSellingProducts(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, report.TopProducts, 3)
	for i := 1; i < len(report.TopProducts); i++ {
		assert.GreaterOrEqual(t, report.TopProducts[i-1].UnitsSold, report.TopProducts[i].UnitsSold)
	}
	assert.Equal(t, "P5", report.TopProducts[0].Name)
}

func TestLowStockAlerts(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	s.product("Empty", "Toys", 1, 0)
	s.product("Low", "Toys", 1, 15)
	s.product("Plenty", "Toys", 1, 25)
	s.product("Edge", "Toys", 1, 20)

	report, err := newTestDispatcher(t, db).LowStockAlerts(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, []StockAlert{
		{Product: "Empty", StockLevel: 0, Status: StatusOutOfStock},
		{Product: "Low", StockLevel: 15, Status: StatusLowStock},
		{Product: "Edge", StockLevel: 20, Status: StatusLowStock},
	}, report.Alerts)
}

func seedMonths(t *testing.T, s seeder) {
	t.Helper()
	a := s.product("A", "Books", 10, 50)
	b := s.product("B", "Games", 4, 50)
	alice := s.customer("alice@example.com")
	bob := s.customer("bob@example.com")

	s.order(alice, "Paris", onDay(2026, time.January, 5), line{a, 1, 10}, line{b, 2, 4})
	s.order(bob, "Lyon", onDay(2026, time.January, 20), line{a, 3, 10})
	s.order(alice, "Paris", onDay(2026, time.February, 2), line{b, 5, 4})
	s.order(bob, "Lyon", onDay(2026, time.March, 1), line{a, 1, 9.5})
}

func TestMonthlyOrdersStats(t *testing.T) {
	db := getTestDB(t)
	seedMonths(t, seeder{t, db})

	report, err := newTestDispatcher(t, db).MonthlyOrdersStats(context.Background())
	require.NoError(t, err)
	require.Len(t, report.MonthlyStats, 3)
	assert.Equal(t, MonthlyStat{Month: "2026-03", OrderCount: 1, Revenue: 9.5}, report.MonthlyStats[0])
	assert.Equal(t, MonthlyStat{Month: "2026-02", OrderCount: 1, Revenue: 20}, report.MonthlyStats[1])
	assert.Equal(t, MonthlyStat{Month: "2026-01", OrderCount: 2, Revenue: 48}, report.MonthlyStats[2])

	var sum float64
	for _, m := range report.MonthlyStats {
		sum += m.Revenue
	}
	var lineTotal float64
	require.NoError(t, db.Table("order_items").Select("SUM(quantity * unit_price)").Row().Scan(&lineTotal))
	assert.InDelta(t, lineTotal, sum, 1e-9)
}

func TestSQLiteMonthBucketsAreUTC(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	athens := time.FixedZone("EET", 2*60*60)
	s.order(s.customer("a@example.com"), "X", time.Date(2026, time.March, 1, 1, 0, 0, 0, athens), line{a, 1, 10})

	report, err := newTestDispatcher(t, db).MonthlyOrdersStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []MonthlyStat{{Month: "2026-02", OrderCount: 1, Revenue: 10}}, report.MonthlyStats)
}

func TestPeakSalesPeriods(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	seedMonths(t, s)
	p := s.product("C", "Toys", 1, 5)
	s.order(s.customer("carol@example.com"), "Nice", onDay(2025, time.December, 24), line{p, 2, 1})

	report, err := newTestDispatcher(t, db).PeakSalesPeriods(context.Background())
	require.NoError(t, err)
	require.Len(t, report.PeakPeriods, 3)
	assert.Equal(t, "2026-01", report.PeakPeriods[0].Month)
	assert.Equal(t, "2026-02", report.PeakPeriods[1].Month)
	assert.Equal(t, "2026-03", report.PeakPeriods[2].Month)
}

func TestRegionReportsMatchAddressCaseSensitively(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	b := s.product("B", "Books", 20, 50)
	c := s.customer("c@example.com")
	s.order(c, "12 Rue Oberkampf, Paris", onDay(2026, time.March, 1), line{a, 2, 10}, line{b, 1, 20})
	s.order(c, "3 Quai, Paris", onDay(2026, time.March, 2), line{a, 1, 12})
	s.order(c, "paris, texas", onDay(2026, time.March, 3), line{b, 9, 20})

	d := newTestDispatcher(t, db)
	byLocation, err := d.OrdersByLocation(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "Paris", byLocation.Region)
	require.Len(t, byLocation.Products, 2)
	assert.Equal(t, RegionalProduct{Name: "A", UnitsSold: 3, AveragePrice: 11}, byLocation.Products[0])
	assert.Equal(t, RegionalProduct{Name: "B", UnitsSold: 1, AveragePrice: 20}, byLocation.Products[1])

	byRegion, err := d.ProductPerformanceByRegion(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, byLocation, byRegion)

	none, err := d.OrdersByLocation(context.Background(), "Berlin")
	require.NoError(t, err)
	assert.Empty(t, none.Products)
	assert.NotNil(t, none.Products)
}

func TestAverageOrderValueIgnoresEmptyOrders(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	c := s.customer("c@example.com")
	s.order(c, "X", onDay(2026, time.March, 1), line{a, 2, 10}, line{a, 1, 5})
	s.order(c, "X", onDay(2026, time.March, 2), line{a, 1, 15})
	s.order(c, "X", onDay(2026, time.March, 3))

	report, err := newTestDispatcher(t, db).AverageOrderValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &AverageOrderValueReport{AverageOrderValue: 20, TotalRevenue: 40, OrderCount: 2}, report)
}

func TestCustomerSpendingPatternsCountsLineItems(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	alice := s.customer("alice@example.com")
	bob := s.customer("bob@example.com")
	s.order(alice, "X", onDay(2026, time.March, 1), line{a, 2, 10}, line{a, 1, 10})
	s.order(bob, "X", onDay(2026, time.March, 2), line{a, 1, 10})

	report, err := newTestDispatcher(t, db).CustomerSpendingPatterns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SpendingPattern{
		{Email: "alice@example.com", OrderCount: 2, AverageOrder: 15, TotalSpent: 30},
		{Email: "bob@example.com", OrderCount: 1, AverageOrder: 10, TotalSpent: 10},
	}, report.SpendingPatterns)
}

func TestSalesTrendsNewestDayFirst(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	c := s.customer("c@example.com")
	s.order(c, "X", onDay(2026, time.March, 13), line{a, 1, 10})
	s.order(c, "X", onDay(2026, time.March, 14), line{a, 2, 10})
	s.order(c, "X", onDay(2026, time.March, 14), line{a, 1, 3})

	report, err := newTestDispatcher(t, db).SalesTrendsAnalysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []DailyRevenue{
		{Date: "2026-03-14", Revenue: 23},
		{Date: "2026-03-13", Revenue: 10},
	}, report.DailyTrends)
}

func TestPopularProductCombinations(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("Apple", "Food", 1, 50)
	b := s.product("Bread", "Food", 2, 50)
	cheese := s.product("Cheese", "Food", 3, 50)
	c := s.customer("c@example.com")
	s.order(c, "X", onDay(2026, time.March, 1), line{b, 1, 2}, line{a, 1, 1})
	s.order(c, "X", onDay(2026, time.March, 2), line{cheese, 1, 3}, line{a, 1, 1}, line{b, 1, 2})
	s.order(c, "X", onDay(2026, time.March, 3), line{a, 4, 1})

	report, err := newTestDispatcher(t, db).PopularProductCombinations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ProductCombination{
		{Products: []string{"Apple", "Bread", "Cheese"}, Frequency: 3},
		{Products: []string{"Apple", "Bread"}, Frequency: 2},
	}, report.PopularCombinations)
}

func TestCategoryPerformance(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	novel := s.product("Novel", "Books", 12, 50)
	atlas := s.product("Atlas", "Books", 30, 50)
	game := s.product("Chess", "Games", 25, 50)
	c := s.customer("c@example.com")
	s.order(c, "X", onDay(2026, time.March, 1), line{novel, 2, 12}, line{atlas, 1, 30}, line{game, 1, 25})
	s.order(c, "X", onDay(2026, time.March, 2), line{novel, 1, 10})

	d := newTestDispatcher(t, db)
	report, err := d.CategoryPerformance(context.Background(), "Books")
	require.NoError(t, err)
	assert.Equal(t, "Books", report.Category)
	assert.InDelta(t, 64, report.TotalRevenue, 1e-9)
	require.Len(t, report.Products, 2)
	assert.Equal(t, "Novel", report.Products[0].Name)
	assert.EqualValues(t, 3, report.Products[0].UnitsSold)
	assert.InDelta(t, 34, report.Products[0].Revenue, 1e-9)
	assert.InDelta(t, 11, report.Products[0].AveragePrice, 1e-9)
	assert.Equal(t, "Atlas", report.Products[1].Name)

	lower, err := d.CategoryPerformance(context.Background(), "books")
	require.NoError(t, err)
	assert.Empty(t, lower.Products)
	assert.Zero(t, lower.TotalRevenue)
}

func TestCustomerRetentionAnalysis(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	alice := s.customer("alice@example.com")
	bob := s.customer("bob@example.com")
	s.order(alice, "X", onDay(2026, time.January, 1), line{a, 1, 10})
	s.order(alice, "X", onDay(2026, time.January, 31), line{a, 1, 10}, line{a, 1, 10})
	s.order(bob, "X", onDay(2026, time.February, 1), line{a, 1, 10})

	report, err := newTestDispatcher(t, db).CustomerRetentionAnalysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RetentionRecord{
		{Email: "alice@example.com", OrderCount: 2, DaysBetweenOrders: 30, CustomerAgeDays: 73},
	}, report.RetentionData)
}

func TestPriceSensitivityAnalysis(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	elastic := s.product("Elastic", "Toys", 10, 50)
	flat := s.product("Flat", "Toys", 5, 50)
	rare := s.product("Rare", "Toys", 5, 50)
	c := s.customer("c@example.com")
	for i := 0; i < 6; i++ {
		s.order(c, "X", onDay(2026, time.February, i+1),
			line{elastic, 6 - i, float64(10 * (i + 1))},
			line{flat, 2, 5})
	}
	for i := 0; i < 5; i++ {
		s.order(c, "X", onDay(2026, time.March, i+1), line{rare, 1, 5})
	}

	report, err := newTestDispatcher(t, db).PriceSensitivityAnalysis(context.Background())
	require.NoError(t, err)
	require.Len(t, report.PriceSensitivity, 2)

	assert.Equal(t, "Flat", report.PriceSensitivity[0].Product)
	assert.Zero(t, report.PriceSensitivity[0].SensitivityScore)
	assert.EqualValues(t, 12, report.PriceSensitivity[0].TotalSold)

	assert.Equal(t, "Elastic", report.PriceSensitivity[1].Product)
	assert.InDelta(t, -1, report.PriceSensitivity[1].SensitivityScore, 1e-9)
	assert.InDelta(t, 35, report.PriceSensitivity[1].AveragePrice, 1e-9)
	assert.EqualValues(t, 21, report.PriceSensitivity[1].TotalSold)
}

func TestSeasonalTrendsChronological(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	seedMonths(t, s)
	p := s.product("C", "Toys", 1, 5)
	s.order(s.customer("carol@example.com"), "Nice", onDay(2025, time.December, 24), line{p, 2, 1})

	report, err := newTestDispatcher(t, db).SeasonalTrendsAnalysis(context.Background())
	require.NoError(t, err)
	require.Len(t, report.SeasonalTrends, 4)
	assert.Equal(t, SeasonalTrend{Year: 2025, Month: 12, TotalSales: 2, OrderCount: 1, UniqueCustomers: 1}, report.SeasonalTrends[0])
	assert.Equal(t, SeasonalTrend{Year: 2026, Month: 1, TotalSales: 48, OrderCount: 2, UniqueCustomers: 2}, report.SeasonalTrends[1])
	assert.EqualValues(t, 3, report.SeasonalTrends[3].Month)
}

func TestCustomerLifetimeValue(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	a := s.product("A", "Books", 10, 50)
	alice := s.customer("alice@example.com")
	bob := s.customer("bob@example.com")
	s.order(alice, "X", onDay(2026, time.January, 1), line{a, 5, 10}, line{a, 3, 10})
	s.order(alice, "X", onDay(2026, time.February, 1), line{a, 2, 10})
	s.order(bob, "X", onDay(2026, time.March, 15), line{a, 1, 10})

	report, err := newTestDispatcher(t, db).CustomerLifetimeValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LifetimeValue{
		{Email: "alice@example.com", TotalValue: 100, OrderCount: 3, MonthsActive: 3, MonthlyValue: 33.33},
		{Email: "bob@example.com", TotalValue: 10, OrderCount: 1, MonthsActive: 1, MonthlyValue: 10},
	}, report.CustomerLifetimeValues)
}

func TestProductAffinityAnalysis(t *testing.T) {
	db := getTestDB(t)
	s := seeder{t, db}
	novel := s.product("Novel", "Books", 10, 50)
	atlas := s.product("Atlas", "Books", 10, 50)
	chess := s.product("Chess", "Games", 10, 50)
	c := s.customer("c@example.com")
	s.order(c, "X", onDay(2026, time.March, 1), line{novel, 1, 10}, line{atlas, 1, 10}, line{chess, 1, 10})
	s.order(c, "X", onDay(2026, time.March, 2), line{chess, 1, 10})

	report, err := newTestDispatcher(t, db).ProductAffinityAnalysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []CategoryAffinity{
		{Categories: [2]string{"Books", "Games"}, Frequency: 1},
	}, report.CategoryAffinities)
}

func TestPairCategories(t *testing.T) {
	pairs := pairCategories([]affinityRow{
		{Category: "Books", Frequency: 3},
		{Category: "Games", Frequency: 1},
		{Category: "Music", Frequency: 2},
	})
	assert.Equal(t, []CategoryAffinity{
		{Categories: [2]string{"Books", "Music"}, Frequency: 2},
		{Categories: [2]string{"Books", "Games"}, Frequency: 1},
		{Categories: [2]string{"Games", "Music"}, Frequency: 1},
	}, pairs)

	assert.Empty(t, pairCategories(nil))
}

func TestReportsAreIdempotent(t *testing.T) {
	db := getTestDB(t)
	seedMonths(t, seeder{t, db})
	d := newTestDispatcher(t, db)
	ctx := context.Background()

	for _, q := range []string{"monthly orders", "top selling products", "customer lifetime value", "seasonal trends"} {
		first, err := d.HandleQuery(ctx, q)
		require.NoError(t, err)
		second, err := d.HandleQuery(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, first, second, q)
	}
}
