package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/bookshelf-service/config"
	"github.com/Astemirdum/bookshelf-service/internal/handler"
	"github.com/Astemirdum/bookshelf-service/internal/repository"
	"github.com/Astemirdum/bookshelf-service/internal/server"
	"github.com/Astemirdum/bookshelf-service/internal/service"
	"github.com/Astemirdum/bookshelf-service/internal/storage"
	"github.com/Astemirdum/bookshelf-service/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/kafka"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"go.uber.org/zap"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "bookshelf")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}
	files, err := storage.NewFileStore(cfg.Storage, log)
	if err != nil {
		log.Fatal("filestore", zap.Error(err))
	}

	// The event feed is best-effort: a broker outage must not keep the
	// service from starting.
	var queue service.Enqueuer
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Warn("kafka.NewProducer", zap.Error(err))
	} else {
		queue = service.NewEnqueuer(producer)
	}

	svc := service.NewService(repo, files, queue, cfg.Storage.MaxSizeBytes, log)

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter([]byte(cfg.Auth.JWTKey)))
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		_ = producer.Close()
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
