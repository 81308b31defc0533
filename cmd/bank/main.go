package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	grpc_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/in/rest"
	db_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/db"
	kafka_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/memory"
	wal_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/wal"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
	"github.com/JoeShih716/go-bank-api/internal/config"
	"github.com/JoeShih716/go-bank-api/pkg/database"
	"github.com/JoeShih716/go-bank-api/pkg/logger"
	"github.com/JoeShih716/go-bank-api/pkg/tracing"
	"github.com/JoeShih716/go-bank-api/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.New(cfg.Log)
	defer zlog.Sync() //nolint:errcheck

	shutdownTracing, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		zlog.Fatal("Failed to init tracing", zap.Error(err))
	}

	// 2. 儲存層
	accountRepo, userRepo, closeStore, err := openStore(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	// 3. 異動紀錄 (WAL / Kafka)
	journal, closeJournal, err := openJournal(cfg.Journal, zlog)
	if err != nil {
		zlog.Fatal("Failed to open journal", zap.Error(err))
	}
	defer closeJournal()

	// 4. UseCase
	core := usecase.NewTransactionCore(accountRepo, journal, zlog.Named("core"), cfg.Core)
	accountService := usecase.NewAccountService(accountRepo, userRepo, zlog.Named("accounts"), cfg.Core.RetryConfig, cfg.Security.BcryptCost)
	userService := usecase.NewUserService(userRepo, accountRepo, zlog.Named("users"))

	// 5. Driving adapters
	routerOpts := rest.Options{CORS: cfg.HTTP.CORS, RequestTimeout: cfg.HTTP.RequestTimeout}
	if cfg.Tracing.Enabled {
		routerOpts.TracingService = cfg.Tracing.ServiceName
	}
	router := rest.NewRouter(
		rest.NewAccountHandler(accountService, core),
		rest.NewUserHandler(userService),
		zlog.Named("http"),
		routerOpts,
	)
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	grpcServer := grpc_adapter.NewServer(grpc_adapter.NewBankServer(core, accountService), zlog.Named("grpc"))

	// 6. 啟動，收到 SIGINT/SIGTERM 後 graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			zlog.Fatal("Failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
		}
		g.Go(func() error {
			zlog.Info("Starting gRPC server", zap.String("addr", cfg.GRPC.Addr))
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		zlog.Info("Shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		err := httpServer.Shutdown(shutdownCtx)
		if tErr := shutdownTracing(shutdownCtx); tErr != nil {
			zlog.Warn("Failed to flush traces", zap.Error(tErr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		zlog.Error("Server exited with error", zap.Error(err))
		return
	}
	zlog.Info("Server exited")
}

// openStore 依設定選擇記憶體或 SQL 儲存層
func openStore(cfg *config.Config, zlog *zap.Logger) (usecase.AccountRepository, usecase.UserRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQL:
		client, err := database.NewClient(cfg.Store.Database, zlog.Named("database"))
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := db_adapter.Migrate(client); err != nil {
				_ = client.Close()
				return nil, nil, nil, err
			}
		}
		zlog.Info("Connected to database", zap.String("driver", cfg.Store.Database.Driver))
		closeFn := func() {
			if err := client.Close(); err != nil {
				zlog.Warn("Failed to close database", zap.Error(err))
			}
		}
		return db_adapter.NewAccountStore(client), db_adapter.NewUserStore(client), closeFn, nil
	default:
		accounts, err := memory_adapter.NewAccountStore()
		if err != nil {
			return nil, nil, nil, err
		}
		zlog.Warn("Using in-memory store, data is lost on restart")
		return accounts, memory_adapter.NewUserStore(), func() {}, nil
	}
}

// openJournal 組合已設定的異動紀錄目的地，都沒設定時回傳 nil
func openJournal(cfg config.JournalConfig, zlog *zap.Logger) (usecase.Journal, func(), error) {
	var journals usecase.Journals
	var closers []func() error

	if cfg.WALPath != "" {
		w, err := wal.NewWAL(cfg.WALPath)
		if err != nil {
			return nil, nil, err
		}
		journals = append(journals, wal_adapter.NewJournal(w))
		closers = append(closers, w.Close)
		zlog.Info("Journal WAL enabled", zap.String("path", cfg.WALPath))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kj, err := kafka_adapter.NewJournal(cfg.Kafka)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, err
		}
		journals = append(journals, kj)
		closers = append(closers, kj.Close)
		zlog.Info("Journal Kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				zlog.Warn("Failed to close journal", zap.Error(err))
			}
		}
	}
	if len(journals) == 0 {
		return nil, closeAll, nil
	}
	return journals, closeAll, nil
}
