package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LazyDJ/cache"
	"LazyDJ/config"
	"LazyDJ/core/admin"
	"LazyDJ/core/event"
	"LazyDJ/core/session"
	"LazyDJ/core/spotify"
	"LazyDJ/logger"

	"github.com/gorilla/mux"
)

// Version 服务版本号
const Version = "1.0.0"

// 过期会话的后台清理间隔
const sweepInterval = time.Hour

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	// Redis 是可选的：没配置就不用搜索缓存
	if cfg.RedisHost != "" {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("Redis连接失败，搜索缓存已禁用", logger.ErrorField(err))
		} else {
			defer cache.CloseRedis()
			logger.Info("Redis连接成功")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sp := spotify.NewClient(cfg)
	hub := session.NewHub()
	go hub.Run()
	defer hub.Stop()

	manager := session.NewManager(cfg, sp, hub)
	manager.StartSweeper(ctx, sweepInterval)

	gate := admin.NewGate(cfg.AdminKeyword)
	if !gate.Enabled() {
		logger.Warn("未配置管理员口令，管理员模式不可用")
	}

	presets := event.NewPresetStore(cfg.EventConfigPath)
	if err := presets.Watch(ctx); err != nil {
		logger.Warn("预设歌曲配置热更新不可用", logger.ErrorField(err))
	}
	events := event.NewService(sp, presets, cfg.EventMode)

	searchCache := cache.NewSearchCache(cache.RedisClient, cfg.SearchCacheTTL)

	apiHandler := NewAPIHandler(cfg, manager, hub, sp, gate, events, searchCache)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Spotify 授权
	router.HandleFunc("/login", apiHandler.LoginHandler).Methods(http.MethodGet)
	router.HandleFunc("/callback", apiHandler.CallbackHandler).Methods(http.MethodGet)
	router.HandleFunc("/logout", apiHandler.LogoutHandler).Methods(http.MethodPost)

	// 全局点歌相关的API端点
	router.HandleFunc("/api/search", apiHandler.SearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.QueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/current", apiHandler.CurrentQueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue/play-now", apiHandler.PlayNowHandler).Methods(http.MethodPost)

	// 会话相关的API端点
	router.HandleFunc("/api/sessions", apiHandler.CreateSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}", apiHandler.GetSessionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/join", apiHandler.JoinSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/search", apiHandler.SessionSearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/queue", apiHandler.SessionQueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/queue", apiHandler.SessionQueueViewHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/end", apiHandler.EndSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/ws/sessions/{id}", apiHandler.SessionWSHandler).Methods(http.MethodGet)

	// 管理员相关的API端点
	router.HandleFunc("/api/admin/check", apiHandler.AdminCheckHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/status", apiHandler.AdminStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/deactivate", apiHandler.AdminDeactivateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/actions", apiHandler.AdminActionHandler).Methods(http.MethodPost)

	// 活动模式相关的API端点
	router.HandleFunc("/api/event/presets", apiHandler.EventPresetsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/event/play-preset", apiHandler.EventPlayPresetHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/event/fade-out", apiHandler.EventFadeOutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/event/fade-in", apiHandler.EventFadeInHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/event/resume-playlist", apiHandler.EventResumePlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/event/skip", apiHandler.EventSkipHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/event/toggle", apiHandler.EventToggleHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/version", apiHandler.VersionHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("LazyDJ服务启动",
			logger.String("addr", server.Addr),
			logger.String("version", Version),
			logger.Bool("eventMode", cfg.EventMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("收到退出信号，正在关闭服务")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭失败", logger.ErrorField(err))
	}
	logger.Info("服务已退出")
}
