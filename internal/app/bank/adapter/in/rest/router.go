package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-api/pkg/metrics"
)

// Options 路由設定
type Options struct {
	// CORS 允許跨域請求 (cors.Default)
	CORS bool
	// RequestTimeout 每個請求的 context 期限，0 表示不限制
	RequestTimeout time.Duration
	// TracingService 非空時掛上 otelgin，值為 service 名稱
	TracingService string
}

// NewRouter 建立 HTTP 路由
//
// 參數:
//
//	accounts: 帳戶 CRUD 與交易
//	users: 使用者 CRUD
//	logger: 請求日誌與 panic 紀錄
//	opts: 中介層設定
func NewRouter(accounts *AccountHandler, users *UserHandler, logger *zap.Logger, opts Options) *gin.Engine {
	registerDecimal()

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(metricsMiddleware())
	if opts.TracingService != "" {
		router.Use(otelgin.Middleware(opts.TracingService))
	}
	if opts.CORS {
		router.Use(cors.Default())
	}
	if opts.RequestTimeout > 0 {
		router.Use(timeoutMiddleware(opts.RequestTimeout))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	accounts.register(router)
	users.register(router)
	return router
}

// metricsMiddleware 記錄請求數與耗時，path 使用路由樣板避免 label 爆量
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}

// timeoutMiddleware 請求 context 加上期限，交易核心的重試與儲存層都會遵守
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
