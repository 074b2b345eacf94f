package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/planhub/checklist-api/internal/cache"
	"github.com/planhub/checklist-api/internal/catalog"
	"github.com/planhub/checklist-api/internal/config"
	"github.com/planhub/checklist-api/internal/handler"
	"github.com/planhub/checklist-api/internal/repo"
	"github.com/planhub/checklist-api/internal/resolver"
	"github.com/planhub/checklist-api/internal/service"
	"github.com/planhub/checklist-api/internal/worker"
)

func main() {
	// Подключаем логгер
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration.")
	}

	// Подключаем БД
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to Database.") // Fatal потому что дальнейшая работа теряет смысл
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal("Failed to ping the Database.")
	}
	logger.Info("Successfully connected to the Database!")

	// Слои приложения: репозиторий -> кэш/резолвер -> сервис -> хэндлеры
	taskRepo := repo.NewTaskRepo(pool)
	resolutionCache := cache.New(cfg.CacheTTL)
	res := resolver.New(taskRepo, resolutionCache, logger)
	svc := service.NewTaskService(taskRepo, res, catalog.Default(), resolutionCache, logger)
	h := handler.NewTaskHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(handler.Recover(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireUser)

		r.Route("/projects/{projectID}/tasks", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/duplicates", h.Duplicates)
			r.Get("/{identifier}", h.Get)
			r.Put("/{identifier}", h.Update)
			r.Delete("/{identifier}", h.Delete)
		})
		r.Get("/diagnostics/stats", h.GetStats)
	})

	janitor := worker.NewJanitor(taskRepo, resolutionCache, logger, cfg.JanitorInterval)
	janitor.Start(context.Background())

	srv := http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started at ", zap.String("port", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed: ", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Shutdown error: ", zap.Error(err))
	}
	janitor.Stop()
	logger.Info("Server stopped succsessfully!")
}
