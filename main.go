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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"SIMS-backend/internal/inventory/catalog"
	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/inventory/items"
	"SIMS-backend/internal/inventory/loans"
	"SIMS-backend/internal/inventory/maintenance"
	"SIMS-backend/internal/inventory/movements"
	"SIMS-backend/internal/platform/auth"
	"SIMS-backend/internal/platform/db"
)

func main() {
	// .env は開発時の秘匿値注入用。無くてもよい
	_ = godotenv.Load()

	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if mode != "dev" && mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}
	if cfg.Auth.Secret == "" {
		log.Fatal("[FATAL] auth secret is not configured")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	if err := db.Migrate(conn, cfg.DB.DBName); err != nil {
		log.Fatalf("[FATAL] migration failed: %v", err)
	}

	catalogSvc := catalog.NewService(conn)
	ctx := context.Background()
	if err := catalogSvc.VerifyStates(ctx); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	eng := engine.New(conn)
	itemsSvc := items.NewService(conn, eng)
	movementsSvc := movements.NewService(conn)
	loansSvc := loans.NewService(conn, eng)
	maintSvc := maintenance.NewService(conn, eng)

	// 貸出中資産の紛失報告を明細へ逆照合するためのポート接続
	eng.SetLoanReconciler(loansSvc)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authSvc := auth.NewService(conn, []byte(cfg.Auth.Secret))
	auth.RegisterRoutes(r.Group("/auth"), authSvc)

	api := r.Group("/api/v1")
	api.Use(auth.RequireAuth([]byte(cfg.Auth.Secret)))
	catalog.RegisterRoutes(api, catalogSvc)
	items.RegisterRoutes(api, itemsSvc)
	movements.RegisterRoutes(api, movementsSvc)
	loans.RegisterRoutes(api, loansSvc)
	maintenance.RegisterRoutes(api, maintSvc)

	sched, err := maintenance.NewScheduler(cfg.Scheduler.PlanSpec, maintSvc)
	if err != nil {
		log.Fatalf("[FATAL] invalid scheduler spec %q: %v", cfg.Scheduler.PlanSpec, err)
	}
	sched.Start()

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err)
	}
}
