package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/flight-telemetry/internal/api"
	"github.com/annel0/flight-telemetry/internal/app"
	"github.com/annel0/flight-telemetry/internal/auth"
	"github.com/annel0/flight-telemetry/internal/cache"
	"github.com/annel0/flight-telemetry/internal/config"
	"github.com/annel0/flight-telemetry/internal/eventbus"
	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/network"
	"github.com/annel0/flight-telemetry/internal/observability"
	"github.com/annel0/flight-telemetry/internal/recorder"
	"github.com/annel0/flight-telemetry/internal/sim"
	"github.com/annel0/flight-telemetry/internal/storage"
	"github.com/annel0/flight-telemetry/internal/vec"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (или ENV TELEMETRY_CONFIG)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🚀 Запуск сервера телеметрии полёта...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Ошибка чтения конфигурации: %v", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = &config.Config{} // дефолты через геттеры
	}

	tcpAddr := fmt.Sprintf(":%d", cfg.Server.GetTCPPort())
	kcpAddr := fmt.Sprintf(":%d", cfg.Server.GetKCPPort())
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	logging.Info("📡 Конфигурация: TCP=%s, KCP=%s, REST=%s", tcpAddr, kcpAddr, restPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТРАССИРОВКА ===
	shutdownTracing, err := observability.InitTelemetry(ctx, "flight-telemetry")
	if err != nil {
		logging.Warn("Трассировка недоступна: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		jsBus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if err != nil {
			logging.Warn("JetStream недоступен (%v), использую шину в памяти", err)
			bus = eventbus.NewMemoryBus(1024)
		} else {
			bus = jsBus
			logging.Info("📨 Шина событий: JetStream %s", cfg.EventBus.URL)
		}
	} else {
		bus = eventbus.NewMemoryBus(1024)
	}
	eventbus.Init(bus)
	defer bus.Close()

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Слушатель событий не запущен: %v", err)
	}

	// === ЭКСПОРТ МЕТРИК ШИНЫ ===
	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	busExporter := eventbus.NewMetricsExporter(bus)
	busExporter.StartHTTP(metricsAddr)
	defer busExporter.Stop()
	logging.Info("📈 Метрики Prometheus: %s/metrics", metricsAddr)

	// === СИМУЛЯЦИЯ ===
	body := sim.DefaultBody()
	body.GM = cfg.Sim.GetBodyGM()
	body.Radius = cfg.Sim.GetBodyRadius()
	body.AtmoHeight = cfg.Sim.GetAtmoHeight()
	simulation := sim.NewSimulation(sim.Options{
		Body:     body,
		TickRate: cfg.Sim.GetTickRateHz(),
		Seed:     cfg.Sim.Seed,
	})
	registerDemoVessels(simulation, body)
	simulation.Start(ctx)
	defer simulation.Stop()

	// === РЕПОЗИТОРИЙ ТЕЛЕМЕТРИИ ===
	repo := buildTelemetryRepo(cfg)
	defer repo.Close()

	// === БОРТОВОЙ РЕГИСТРАТОР ===
	dataDir := cfg.Recorder.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	flightRecorder, err := recorder.NewFlightRecorder(dataDir)
	if err != nil {
		logging.Error("Ошибка открытия бортового регистратора: %v", err)
		os.Exit(1)
	}
	defer flightRecorder.Close()

	// === КЕШ СНИМКОВ ===
	flightCache := buildFlightCache(cfg, repo)
	if flightCache != nil {
		defer flightCache.Close()
	}

	// === КОНВЕЙЕР ТЕЛЕМЕТРИИ ===
	pipeline, err := app.NewTelemetryPipeline(app.PipelineConfig{
		Simulation: simulation,
		Repo:       repo,
		Recorder:   flightRecorder,
		Flights:    flightCache,
		SampleHz:   1,
	})
	if err != nil {
		logging.Error("Ошибка создания конвейера: %v", err)
		os.Exit(1)
	}
	if err := pipeline.Start(ctx); err != nil {
		logging.Error("Ошибка запуска конвейера: %v", err)
		os.Exit(1)
	}
	defer pipeline.Stop()

	// === АУТЕНТИФИКАЦИЯ ===
	userRepo := buildUserRepo(cfg)
	authenticator, err := auth.NewTelemetryAuthenticator(userRepo, os.Getenv("TELEMETRY_JWT_SECRET"))
	if err != nil {
		logging.Error("Ошибка инициализации аутентификации: %v", err)
		os.Exit(1)
	}

	// === СОКЕТ-СЕРВЕР (TCP + KCP) ===
	telemetryServer := network.NewTelemetryServer(network.ServerConfig{
		TCPAddr:      tcpAddr,
		KCPAddr:      kcpAddr,
		StreamRateHz: cfg.Server.GetStreamRateHz(),
		RequireAuth:  cfg.Server.RequireAuth,
	}, simulation, authenticator)
	if err := telemetryServer.Start(); err != nil {
		logging.Error("Ошибка запуска сокет-сервера: %v", err)
		os.Exit(1)
	}
	defer telemetryServer.Stop()

	// === REST API ===
	restServer := api.NewRestServer(api.Config{
		Port:       restPort,
		UserRepo:   userRepo,
		Simulation: simulation,
		Repo:       repo,
		Recorder:   flightRecorder,
		Flights:    flightCache,
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("REST API завершился с ошибкой: %v", err)
		}
	}()

	logging.Info("✅ Сервер телеметрии запущен. Ожидание сигнала завершения...")
	<-ctx.Done()

	logging.Info("⏳ Завершение работы...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logging.Warn("Ошибка завершения трассировки: %v", err)
	}
}

// buildTelemetryRepo выбирает бекенд репозитория по конфигурации:
// Redis -> MariaDB -> память.
func buildTelemetryRepo(cfg *config.Config) storage.TelemetryRepo {
	if cfg.Redis.Addr != "" {
		repo, err := storage.NewRedisTelemetryRepo(&storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err == nil {
			logging.Info("💾 Репозиторий телеметрии: Redis %s", cfg.Redis.Addr)
			return repo
		}
		logging.Warn("Redis недоступен (%v), пробую следующий бекенд", err)
	}

	if cfg.MariaDB.Host != "" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			cfg.MariaDB.Username, cfg.MariaDB.Password,
			cfg.MariaDB.Host, cfg.MariaDB.Port, cfg.MariaDB.Database)
		repo, err := storage.NewMariaTelemetryRepo(dsn)
		if err == nil {
			logging.Info("💾 Репозиторий телеметрии: MariaDB %s:%d", cfg.MariaDB.Host, cfg.MariaDB.Port)
			return repo
		}
		logging.Warn("MariaDB недоступна (%v), использую хранилище в памяти", err)
	}

	logging.Info("💾 Репозиторий телеметрии: память")
	return storage.NewMemoryTelemetryRepo()
}

// buildFlightCache собирает Redis-кеш снимков с NATS-инвалидацией.
// Возвращает nil, если Redis не сконфигурирован.
func buildFlightCache(cfg *config.Config, cold storage.TelemetryRepo) cache.FlightCache {
	if cfg.Redis.Addr == "" {
		return nil
	}

	var invalidator cache.CacheInvalidator
	if cfg.EventBus.URL != "" {
		inv, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{
			NATSURL: cfg.EventBus.URL,
		}, "server-"+fmt.Sprint(os.Getpid()))
		if err != nil {
			logging.Warn("NATS-инвалидация недоступна: %v", err)
		} else {
			invalidator = inv
		}
	}

	flightCache, err := cache.NewRedisFlightCache(&cache.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, cold, invalidator)
	if err != nil {
		logging.Warn("Кеш снимков недоступен: %v", err)
		return nil
	}

	logging.Info("⚡ Кеш снимков: Redis %s", cfg.Redis.Addr)
	return flightCache
}

// buildUserRepo выбирает хранилище операторских аккаунтов: MongoDB или память
func buildUserRepo(cfg *config.Config) auth.UserRepository {
	if cfg.Mongo.URI != "" {
		repo, err := auth.NewMongoUserRepo(auth.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err == nil {
			logging.Info("👤 Аккаунты операторов: MongoDB")
			return repo
		}
		logging.Warn("MongoDB недоступна (%v), использую аккаунты в памяти", err)
	}

	logging.Info("👤 Аккаунты операторов: память (observer/observer, admin/admin)")
	return auth.NewMemoryUserRepo()
}

// registerDemoVessels добавляет стартовый набор судов: корабль на круговой
// орбите 100 км (активный), судно на участке выведения и судно на площадке.
func registerDemoVessels(simulation *sim.Simulation, body *sim.CelestialBody) {
	orbitRadius := body.Radius + 100000.0
	orbitSpeed := math.Sqrt(body.GM / orbitRadius)
	orbiter := sim.NewVessel("Orbiter One",
		vec.Vec3{X: orbitRadius},
		vec.Vec3{Y: orbitSpeed})
	orbiter.SetState(sim.NewOrbitState())

	ascending := sim.NewVessel("Kerbin Express",
		vec.Vec3{X: body.Radius + 12000.0},
		vec.Vec3{X: 240.0, Y: 180.0})
	ascending.SetState(sim.NewAscentState())

	pad := sim.NewVessel("Pad Vehicle",
		vec.Vec3{X: body.Radius},
		vec.Vec3{})

	for _, v := range []*sim.Vessel{orbiter, ascending, pad} {
		if err := simulation.AddVessel(v); err != nil {
			logging.Warn("Не удалось зарегистрировать судно %s: %v", v.Name, err)
		}
	}
}
