package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/judyrop/storefront-analytics/internal/analytics"
	"github.com/judyrop/storefront-analytics/internal/audit"
	"github.com/judyrop/storefront-analytics/internal/config"
	"github.com/judyrop/storefront-analytics/internal/database"
	"github.com/judyrop/storefront-analytics/internal/logger"
	"github.com/judyrop/storefront-analytics/internal/metrics"
	"github.com/judyrop/storefront-analytics/internal/querystats"
	"github.com/judyrop/storefront-analytics/models"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLog, err := logger.New(cfg.Log.Level, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()

	db, err := database.Open(cfg.Database, zapLog)
	if err != nil {
		zapLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			zapLog.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := Deps{
		Logger: zapLog,
		Options: []analytics.Option{
			analytics.WithTopProductsLimit(cfg.Analytics.TopProductsLimit),
			analytics.WithLowStockThreshold(cfg.Analytics.LowStockThreshold),
		},
	}

	if cfg.Auth.Issuer != "" {
		deps.Verifier, err = initOIDC(ctx, cfg.Auth.Issuer, cfg.Auth.ClientID)
		if err != nil {
			zapLog.Fatal("Failed to initialize OIDC provider", zap.String("issuer", cfg.Auth.Issuer), zap.Error(err))
		}
	} else {
		zapLog.Warn("OIDC_ISSUER not set, order creation is unauthenticated")
	}

	if len(cfg.Audit.Brokers) > 0 {
		pub := audit.NewPublisher(cfg.Audit.Brokers, cfg.Audit.Topic, zapLog)
		defer func() {
			if err := pub.Close(); err != nil {
				zapLog.Warn("Failed to close audit publisher", zap.Error(err))
			}
		}()
		deps.Options = append(deps.Options, analytics.WithObservers(pub))
		zapLog.Info("Query audit enabled", zap.Strings("brokers", cfg.Audit.Brokers), zap.String("topic", cfg.Audit.Topic))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           SetupRouter(db, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Server shutdown failed", zap.Error(err))
	}
}

func initOIDC(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// AuthMiddleware requires a valid bearer ID token. A nil verifier lets every
// request through.
func AuthMiddleware(verifier *oidc.IDTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, prefix)
		if _, err := verifier.Verify(c.Request.Context(), token); err != nil {
			logger.FromContext(c).Info("Rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

// Deps are the collaborators SetupRouter wires in. Zero values get working
// defaults: a no-op logger, fresh metric and latency registries, no auth.
type Deps struct {
	Logger   *zap.Logger
	Verifier *oidc.IDTokenVerifier
	Metrics  *metrics.Registry
	Stats    *querystats.Recorder
	// Options are applied to the dispatcher after the defaults.
	Options []analytics.Option
}

func (d *Deps) withDefaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.Stats == nil {
		d.Stats = querystats.NewRecorder()
	}
}

func SetupRouter(db *gorm.DB, deps Deps) *gin.Engine {
	deps.withDefaults()

	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(deps.Logger), deps.Metrics.Middleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// List products, optionally filtered by category
	r.GET("/products", func(c *gin.Context) {
		var products []models.Product
		q := db.WithContext(c.Request.Context()).Order("id")
		if category := c.Query("category"); category != "" {
			q = q.Where("category = ?", category)
		}
		if err := q.Find(&products).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, products)
	})

	// Create product
	r.POST("/products", func(c *gin.Context) {
		var product models.Product
		if err := c.ShouldBindJSON(&product); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if product.Name == "" || product.Category == "" || product.Price <= 0 || product.Stock < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name, category, positive price and non-negative stock are required"})
			return
		}
		if err := db.WithContext(c.Request.Context()).Create(&product).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, product)
	})

	// Create customer
	r.POST("/customers", func(c *gin.Context) {
		var customer models.Customer
		if err := c.ShouldBindJSON(&customer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if customer.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}
		if err := db.WithContext(c.Request.Context()).Create(&customer).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, customer)
	})

	// Create an order
	r.POST("/orders", AuthMiddleware(deps.Verifier), func(c *gin.Context) {
		var req orderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := placeOrder(c.Request.Context(), db, req)
		switch {
		case errors.Is(err, errCustomerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		case errors.Is(err, errInvalidOrder):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, errInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			logger.FromContext(c).Error("Failed to create order", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		default:
			c.JSON(http.StatusCreated, order)
		}
	})

	// Record a storefront visit
	r.POST("/visits", func(c *gin.Context) {
		var visit models.AnalyticsEvent
		if err := c.ShouldBindJSON(&visit); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		visit.ID = 0
		visit.CreatedAt = time.Time{}
		if err := db.WithContext(c.Request.Context()).Create(&visit).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, visit)
	})

	opts := append([]analytics.Option{
		analytics.WithLogger(deps.Logger),
		analytics.WithObservers(deps.Metrics, deps.Stats),
	}, deps.Options...)
	registerAnalyticsRoutes(r, analytics.NewDispatcher(db, opts...), deps.Stats)

	return r
}
