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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/remud/internal/api"
	"example.com/remud/internal/auth"
	"example.com/remud/internal/config"
	"example.com/remud/internal/engine"
	"example.com/remud/internal/netio"
	"example.com/remud/internal/observability"
	"example.com/remud/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	fmt.Println("==================================================")
	fmt.Println("   REMUD SERVER STARTING - WATCH THIS CONSOLE     ")
	fmt.Println("==================================================")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger, err := observability.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.SetupTracerProvider(ctx, "remud", true, logger)
	if err != nil {
		logger.Fatal("cannot init tracer", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	var st *store.Store
	if cfg.MemoryMode() {
		logger.Info("starting in IN-MEMORY MODE")
		st = store.NewMemoryStore()
	} else {
		db, err := store.ConnectMySQL(cfg.DBPath)
		if err != nil {
			logger.Warn("cannot connect db, falling back to IN-MEMORY MODE", zap.Error(err))
			st = store.NewMemoryStore()
		} else {
			defer db.Close()
			st = store.New(db)
			if err := st.ApplySchema(ctx); err != nil {
				logger.Fatal("cannot apply schema", zap.Error(err))
			}
		}
	}

	loaded, err := store.Load(ctx, st)
	if err != nil {
		logger.Fatal("cannot load world", zap.Error(err))
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	jwtMgr := auth.NewManager(cfg.JWTSecret)
	playerRepo := store.NewPlayerRepo(st)
	scriptRepo := store.NewScriptRepo(st)
	journal := store.NewJournal(st)

	eng := engine.New(loaded, journal, playerRepo, scriptRepo, logger, metrics)

	telnet, err := netio.Listen(cfg.TelnetAddr, eng, logger, metrics)
	if err != nil {
		logger.Fatal("cannot open telnet listener", zap.Error(err))
	}
	go func() {
		if err := telnet.Serve(); err != nil {
			logger.Info("telnet listener closed", zap.Error(err))
		}
	}()

	apiServer := api.NewServer(playerRepo, scriptRepo, jwtMgr, eng.Systems, eng.Runtime, eng, logger, cfg.CORSOrigins)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: apiServer.Router}
	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	tickStop := make(chan struct{})
	go eng.Run(tickStop)
	go eng.RunJournalWorker(ctx)

	logger.Info("remud running",
		zap.String("telnet_addr", telnet.Addr().String()),
		zap.String("http_addr", cfg.HTTPAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	close(tickStop)
	telnet.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
}
