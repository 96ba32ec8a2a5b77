package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/judyrop/storefront-analytics/internal/analytics"
	"github.com/judyrop/storefront-analytics/internal/logger"
	"github.com/judyrop/storefront-analytics/internal/querystats"
)

// reportQueries maps /api/analytics/reports/:type to the query it runs.
var reportQueries = map[string]string{
	"customer-cohort":   "customer retention",
	"product-affinity":  "product affinity",
	"price-sensitivity": "price sensitivity",
	"seasonal":          "seasonal trends",
}

// analyzeRule fans a keyword question out to one report. A question may hit
// several rules; each result is stored under key.
type analyzeRule struct {
	key      string
	keywords [][]string
	query    string
}

var analyzeRules = []analyzeRule{
	{"top_products", [][]string{{"top", "product"}}, "top selling products"},
	{"spending_patterns", [][]string{{"retention"}, {"customer"}}, "customer spending patterns"},
	{"price_sensitivity", [][]string{{"price"}, {"sensitivity"}}, "price sensitivity analysis"},
	{"monthly_stats", [][]string{{"revenue"}, {"sales"}}, "monthly orders"},
}

// matches reports whether any keyword group is fully contained in q.
func (a analyzeRule) matches(q string) bool {
	for _, group := range a.keywords {
		all := true
		for _, kw := range group {
			if !strings.Contains(q, kw) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func registerAnalyticsRoutes(r *gin.Engine, d *analytics.Dispatcher, stats *querystats.Recorder) {
	query := func(c *gin.Context) {
		q := queryParam(c)
		if strings.TrimSpace(q) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
			return
		}
		runQuery(c, d, q)
	}
	r.POST("/mcp/query", query)

	api := r.Group("/api/analytics")
	api.POST("/query", query)

	api.GET("/realtime", func(c *gin.Context) {
		summary, err := d.Realtime(c.Request.Context())
		if err != nil {
			logger.FromContext(c).Error("Realtime analytics failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while fetching realtime data"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.GET("/region/:region", func(c *gin.Context) {
		runQuery(c, d, "product performance in "+c.Param("region"))
	})

	api.GET("/category/:category", func(c *gin.Context) {
		runQuery(c, d, "category performance "+c.Param("category"))
	})

	api.GET("/reports/:type", func(c *gin.Context) {
		q, ok := reportQueries[c.Param("type")]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown report type"})
			return
		}
		runQuery(c, d, q)
	})

	// Trailing-window report; the question picks the period and the sections.
	r.POST("/api/nl-analytics/query", func(c *gin.Context) {
		q := queryParam(c)
		if strings.TrimSpace(q) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
			return
		}
		report, err := d.NaturalLanguageReport(c.Request.Context(), q)
		if err != nil {
			logger.FromContext(c).Error("Period report failed", zap.String("query", q), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run analytics query"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": report})
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"kinds": stats.Snapshot()})
	})

	// Keyword question fan-out. Unclear questions fall back to top products.
	r.POST("/api/analyze", func(c *gin.Context) {
		q := strings.ToLower(queryParam(c))

		var matched []analyzeRule
		for _, rule := range analyzeRules {
			if rule.matches(q) {
				matched = append(matched, rule)
			}
		}
		if len(matched) == 0 {
			matched = analyzeRules[:1]
		}

		result := make(map[string]*analytics.Response, len(matched))
		for _, rule := range matched {
			resp, err := d.HandleQuery(c.Request.Context(), rule.query)
			if err != nil {
				logger.FromContext(c).Error("Analysis failed", zap.String("question", q), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
				return
			}
			result[rule.key] = resp
		}
		c.JSON(http.StatusOK, result)
	})
}

func runQuery(c *gin.Context, d *analytics.Dispatcher, q string) {
	resp, err := d.HandleQuery(c.Request.Context(), q)
	if err != nil {
		logger.FromContext(c).Error("Analytics query failed", zap.String("query", q), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run analytics query"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// queryParam reads "query" from a JSON body, a form field or the URL.
func queryParam(c *gin.Context) string {
	if strings.Contains(c.ContentType(), "json") {
		var body struct {
			Query string `json:"query"`
		}
		if err := c.ShouldBindJSON(&body); err == nil && body.Query != "" {
			return body.Query
		}
	}
	if q := c.PostForm("query"); q != "" {
		return q
	}
	return c.Query("query")
}
