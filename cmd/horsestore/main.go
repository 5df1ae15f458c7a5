package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/annel0/horsestore/internal/api"
	"github.com/annel0/horsestore/internal/config"
	"github.com/annel0/horsestore/internal/eventbus"
	"github.com/annel0/horsestore/internal/eviction"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/annel0/horsestore/internal/observability"
	"github.com/annel0/horsestore/internal/ownership"
	"github.com/annel0/horsestore/internal/stable"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/annel0/horsestore/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию $HORSESTORE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger("horsestore", cfg.Logging.Dir, cfg.LogLevel()); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logging.GetLoggerManager().Configure(cfg.Logging.Dir, cfg.LogLevel())
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🐴 Запуск horsestore: storage=%s, слотов=%d, порог=%.1f, интервал=%ds",
		cfg.Storage.Driver, cfg.Settings.SlotsCount, cfg.Settings.MaxDistance, cfg.Settings.CheckIntervalSeconds)

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry := observability.ShutdownFunc(observability.Noop)
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			logging.Warn("OpenTelemetry не запущен: %v", err)
		} else {
			shutdownTelemetry = shutdown
		}
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки телеметрии: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ХРАНИЛИЩЕ И СЕРВИС ===
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("открытие хранилища: %w", err)
	}
	logging.Info("💾 Хранилище %s открыто", cfg.Storage.Driver)

	sim := world.NewSim()
	opts := cfg.StableOptions()
	opts.Metrics = stable.NewMetrics(reg)
	svc := stable.NewService(store, sim, ownership.NewIndex(), opts)
	defer func() {
		if err := svc.Close(); err != nil {
			logging.Error("Ошибка закрытия хранилища: %v", err)
		}
	}()

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn("Ошибка закрытия шины: %v", err)
		}
	}()

	busMetrics := eventbus.NewMetricsExporter(bus, reg)
	busMetrics.Start()
	defer busMetrics.Stop()

	sub, err := eventbus.Bind(ctx, bus, svc)
	if err != nil {
		return fmt.Errorf("подписка сервиса на события: %w", err)
	}
	defer sub.Unsubscribe()
	if cfg.LogLevel() <= logging.DEBUG {
		if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
			logging.Warn("LoggingListener не запущен: %v", err)
		}
	}
	sim.SetListener(eventbus.NewPublisher(bus, "world"))

	authn, err := cfg.Authenticator()
	if err != nil {
		return fmt.Errorf("ключ JWT: %w", err)
	}
	if authn == nil {
		logging.Warn("⚠️ server.jwt_secret не задан, REST API работает без авторизации")
	}

	// === МОНИТОР РАССТОЯНИЯ ===
	monitor := eviction.NewMonitor(svc, sim, svc.Index(), cfg.EvictionConfig(), eviction.NewMetrics(reg))
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()

	// === REST API ===
	rest := api.NewRestServer(api.Config{
		Addr:     ":" + strconv.Itoa(cfg.Server.RESTPort),
		Service:  svc,
		World:    sim,
		Registry: reg,
		Gatherer: reg,
		Auth:     authn,
	})
	restErr := make(chan error, 1)
	go func() { restErr <- rest.Start() }()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.RESTPort)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.RESTPort)

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-restErr:
		if err != nil {
			stop()
			<-monitorDone
			return fmt.Errorf("REST API: %w", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rest.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	stop()
	<-monitorDone
	return nil
}

// openBus выбирает JetStream при заданном url, иначе шину в памяти
func openBus(cfg *config.Config) (eventbus.EventBus, error) {
	jsCfg, ok := cfg.JetStreamConfig()
	if !ok {
		logging.Info("📨 Шина событий: в памяти (буфер %d)", cfg.EventBus.Buffer)
		return eventbus.NewMemoryBus(cfg.EventBus.Buffer), nil
	}

	bus, err := eventbus.NewJetStreamBus(jsCfg)
	if err != nil {
		return nil, fmt.Errorf("подключение к JetStream: %w", err)
	}
	logging.Info("📨 Шина событий: JetStream %s, стрим %s", jsCfg.URL, jsCfg.Stream)
	return bus, nil
}
