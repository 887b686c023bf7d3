package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bookbridge/library-requests/internal/approval"
	"github.com/bookbridge/library-requests/internal/config"
	"github.com/bookbridge/library-requests/internal/database"
	"github.com/bookbridge/library-requests/internal/handler"
	"github.com/bookbridge/library-requests/internal/middleware"
	"github.com/bookbridge/library-requests/internal/queue"
	"github.com/bookbridge/library-requests/internal/repository"
	"github.com/bookbridge/library-requests/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: a nil client disables rate limiting and the
	// catalog cache but the service stays fully functional.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting and response cache disabled")
	}
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	store := repository.NewStore(db)
	bookRepo := repository.NewBookRepo(db)
	requestRepo := repository.NewRequestRepo(db, bookRepo)

	engine := approval.NewEngine(store, requestRepo, bookRepo, cfg.LockWait)

	books := handler.NewBookHandler(bookRepo)
	requests := handler.NewRequestHandler(requestRepo, bookRepo, engine, cacheCfg, rdb)
	chat := handler.NewChatHandler(bookRepo, requestRepo)

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.RequesterFromHeader())
	e.Use(middleware.NewTokenBucket(rlCfg, rdb))

	router.RegisterRoutes(e)
	router.RegisterAPI(e, books, requests, chat, middleware.NewResponseCache(cacheCfg, rdb))
	router.RegisterStatic(e, cfg.StaticDir)

	// Decision log consumer; reconnects on its own and never stops the server.
	go func() {
		if err := queue.StartDecisionConsumer(); err != nil {
			log.Printf("decision consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
