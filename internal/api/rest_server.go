package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/flight-telemetry/internal/auth"
	"github.com/annel0/flight-telemetry/internal/cache"
	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/middleware"
	"github.com/annel0/flight-telemetry/internal/recorder"
	"github.com/annel0/flight-telemetry/internal/sim"
	"github.com/annel0/flight-telemetry/internal/storage"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер телеметрии.
// Отдаёт снимки полёта, историю и статистику поверх той же симуляции,
// которую обслуживает сокет-протокол.
type RestServer struct {
	router     *gin.Engine
	userRepo   auth.UserRepository
	simulation *sim.Simulation
	repo       storage.TelemetryRepo
	recorder   *recorder.FlightRecorder
	flights    cache.FlightCache
	port       string
	metrics    *ServerMetrics
	logger     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port       string                // порт для запуска сервера (":8088")
	UserRepo   auth.UserRepository   // репозиторий операторских аккаунтов
	Simulation *sim.Simulation       // живая симуляция
	Repo       storage.TelemetryRepo // репозиторий телеметрии (может быть nil)
	Recorder   *recorder.FlightRecorder
	Flights    cache.FlightCache // кеш снимков (может быть nil)
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	router.Use(otelgin.Middleware("telemetry_api"))

	promMw := middleware.NewPrometheusMiddleware("telemetry_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:     router,
		userRepo:   config.UserRepo,
		simulation: config.Simulation,
		repo:       config.Repo,
		recorder:   config.Recorder,
		flights:    config.Flights,
		port:       config.Port,
		metrics:    NewServerMetrics(),
		logger:     logging.GetAPILogger(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")

	// Эндпоинт для аутентификации (без JWT защиты)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", rs.handleLogin)
	}

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/vessels", rs.handleVessels)
		protected.GET("/vessels/:id/flight", rs.handleFlight)
		protected.GET("/vessels/:id/history", rs.handleHistory)
		protected.GET("/vessels/:id/replay", rs.handleReplay)
		protected.GET("/stats", rs.handleStats)
		protected.GET("/server", rs.handleServerInfo)

		// Административные эндпоинты (только для админов)
		admin := protected.Group("/admin")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/register", rs.handleAdminRegister)
			admin.POST("/vessels/:id/activate", rs.handleActivateVessel)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	UserID  uint64 `json:"user_id,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// RegisterRequest представляет запрос на регистрацию
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	user, err := rs.userRepo.ValidateCredentials(req.Username, req.Password)
	if err != nil {
		rs.logger.Warn("Неудачный вход: user=%s ip=%s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}

	token, err := auth.GenerateJWT(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешная авторизация",
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
	})
}

// handleVessels возвращает список кораблей симуляции
func (rs *RestServer) handleVessels(c *gin.Context) {
	infos := rs.simulation.VesselInfos()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список кораблей",
		Data: map[string]interface{}{
			"vessels": infos,
			"total":   len(infos),
		},
	})
}

// handleFlight возвращает текущий снимок полёта корабля.
// Сначала смотрит в кеш, затем в живую симуляцию.
func (rs *RestServer) handleFlight(c *gin.Context) {
	vesselID := c.Param("id")

	if rs.flights != nil {
		if snap, err := rs.flights.Get(c.Request.Context(), vesselID); err == nil {
			c.JSON(http.StatusOK, GenericResponse{
				Success: true,
				Message: "Снимок телеметрии (кеш)",
				Data:    snap,
			})
			return
		}
	}

	flight, err := rs.simulation.Flight(vesselID)
	if err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Корабль %s не найден", vesselID),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Снимок телеметрии",
		Data:    flight,
	})
}

// handleHistory возвращает историю телеметрии корабля за интервал.
// Параметры since/until - unix-секунды; по умолчанию последние 10 минут.
func (rs *RestServer) handleHistory(c *gin.Context) {
	if rs.repo == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Хранилище телеметрии не настроено",
		})
		return
	}

	vesselID := c.Param("id")
	since, until := parseWindow(c)

	snaps, err := rs.repo.History(c.Request.Context(), vesselID, since, until)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения истории: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "История телеметрии",
		Data: map[string]interface{}{
			"vessel_id": vesselID,
			"since":     since.Unix(),
			"until":     until.Unix(),
			"snapshots": snaps,
			"total":     len(snaps),
		},
	})
}

// handleReplay возвращает кадры бортового регистратора за интервал.
func (rs *RestServer) handleReplay(c *gin.Context) {
	if rs.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Бортовой регистратор не настроен",
		})
		return
	}

	vesselID := c.Param("id")
	since, until := parseWindow(c)

	frames, err := rs.recorder.Replay(vesselID, since, until)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка воспроизведения: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Кадры регистратора",
		Data: map[string]interface{}{
			"vessel_id": vesselID,
			"frames":    frames,
			"total":     len(frames),
		},
	})
}

// handleActivateVessel переключает активный корабль симуляции (только админ).
func (rs *RestServer) handleActivateVessel(c *gin.Context) {
	vesselID := c.Param("id")

	if err := rs.simulation.SetActiveVessel(vesselID); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Корабль %s не найден", vesselID),
		})
		return
	}

	rs.logger.Info("Активный корабль переключён: %s", vesselID)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Корабль %s сделан активным", vesselID),
	})
}

// handleAdminRegister обрабатывает регистрацию нового пользователя (только для админов)
func (rs *RestServer) handleAdminRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	// Валидация входных данных
	if len(req.Username) < 3 || len(req.Username) > 30 {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Имя пользователя должно быть от 3 до 30 символов",
		})
		return
	}

	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Пароль должен быть минимум 6 символов",
		})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка обработки пароля",
		})
		return
	}

	user, err := rs.userRepo.CreateUser(req.Username, passwordHash, req.IsAdmin)
	if err == auth.ErrUserExists {
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: "Пользователь уже существует",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка создания пользователя",
		})
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Пользователь успешно создан",
		Data: map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
			"is_admin": user.IsAdmin,
		},
	})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	// Статистика симуляции
	if rs.simulation != nil {
		stats["simulation"] = map[string]interface{}{
			"vessels":  len(rs.simulation.VesselInfos()),
			"sim_time": rs.simulation.SimTime(),
		}
	}

	// Статистика кеша
	if rs.flights != nil {
		stats["cache"] = rs.flights.Stats()
	}

	// Метрики процесса
	stats["process"] = rs.metrics.Snapshot()
	stats["server_time"] = time.Now().Unix()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	snap := rs.metrics.Snapshot()

	info := map[string]interface{}{
		"version":     "v0.1.0",
		"name":        "Flight Telemetry Server",
		"status":      "running",
		"uptime":      snap.Uptime,
		"memory_mb":   fmt.Sprintf("%.1f", snap.AllocMB),
		"cpu_percent": fmt.Sprintf("%.1f", snap.ProcCPU),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер
func (rs *RestServer) Start() error {
	rs.logger.Info("REST API запущен на %s", rs.port)
	return rs.router.Run(rs.port)
}

// parseWindow извлекает интервал since/until из query-параметров.
// По умолчанию возвращает последние 10 минут.
func parseWindow(c *gin.Context) (time.Time, time.Time) {
	now := time.Now()
	since := now.Add(-10 * time.Minute)
	until := now

	if raw, ok := c.GetQuery("since"); ok {
		var sec int64
		if _, err := fmt.Sscanf(raw, "%d", &sec); err == nil {
			since = time.Unix(sec, 0)
		}
	}
	if raw, ok := c.GetQuery("until"); ok {
		var sec int64
		if _, err := fmt.Sscanf(raw, "%d", &sec); err == nil {
			until = time.Unix(sec, 0)
		}
	}

	return since, until
}
