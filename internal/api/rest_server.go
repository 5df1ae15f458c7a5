// Package api - REST-интерфейс команд хранения лошадей и управления
// встроенной симуляцией мира.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/horsestore/internal/auth"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/annel0/horsestore/internal/middleware"
	"github.com/annel0/horsestore/internal/stable"
	"github.com/annel0/horsestore/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	service *stable.Service
	world   *world.Sim
	auth    *auth.Authenticator
	metrics *ServerMetrics
	logger  *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr     string                // адрес для запуска сервера, по умолчанию :8089
	Service  *stable.Service       // сервис хранения лошадей
	World    *world.Sim            // встроенный мир; nil отключает /api/world
	Registry prometheus.Registerer // регистр HTTP-метрик; nil - без метрик
	Gatherer prometheus.Gatherer   // источник /metrics; nil - без эндпоинта
	Auth     *auth.Authenticator   // проверка JWT; nil - API без авторизации
	Logger   *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Addr == "" {
		config.Addr = ":8089"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("horsestore"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	promMw := middleware.NewPrometheusMiddleware("horsestore", config.Registry)
	router.Use(promMw.Handler())
	if config.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	rs := &RestServer{
		router:  router,
		service: config.Service,
		world:   config.World,
		auth:    config.Auth,
		metrics: NewServerMetrics(),
		logger:  config.Logger,
	}
	rs.server = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	// Защищенные эндпоинты (требуют JWT, если он настроен)
	api := rs.router.Group("/api")
	api.Use(rs.jwtMiddleware())
	api.GET("/stats", rs.adminMiddleware(), rs.handleStats)

	owner := api.Group("/owners/:owner")
	owner.Use(ownerParam(), rs.ownerAccessMiddleware())
	{
		owner.GET("/horses", rs.handleList)
		owner.GET("/menu", rs.handleMenu)
		owner.GET("/live", rs.handleLive)
		owner.POST("/live/:horse/store", rs.handleStoreLive)
		owner.POST("/slots/:slot/store", rs.handleStoreInSlot)
		owner.POST("/slots/:slot/spawn", rs.handleSpawn)
		owner.DELETE("/slots/:slot", rs.handleDelete)
	}

	if rs.world != nil {
		w := api.Group("/world")
		w.Use(rs.adminMiddleware())
		w.POST("/players", rs.handleConnect)
		w.DELETE("/players/:id", rs.handleDisconnect)
		w.PUT("/players/:id/location", rs.handleMovePlayer)
		w.POST("/horses", rs.handleSpawnWild)
		w.GET("/horses/:id", rs.handleGetHorse)
		w.PUT("/horses/:id/location", rs.handleMoveHorse)
		w.POST("/regions/unload", rs.handleUnloadRegion)
		w.POST("/regions/load", rs.handleLoadRegion)
	}
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth отвечает на проверку живости
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleStats возвращает статистику сервиса и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"uptime":         rs.metrics.GetUptime(),
		"memory":         rs.metrics.GetMemoryStats(),
		"tracked_horses": rs.service.Index().Count(),
		"active_owners":  len(rs.service.Index().Owners()),
		"online_owners":  len(rs.service.Engine().ConnectedOwners()),
		"slots":          rs.service.Slots(),
		"server_time":    time.Now().Unix(),
	}
	if cpu, err := rs.metrics.GetCPUUsage(); err == nil {
		stats["cpu_percent"] = cpu
	}
	if rs.world != nil {
		stats["live_horses"] = rs.world.HorseCount()
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// Start запускает REST сервер и блокируется до Shutdown
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown дожидается завершения активных запросов
func (rs *RestServer) Shutdown(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}
