package app

import (
	"context"
	"log/slog"

	httpapp "github.com/BariVakhidov/waitingroom/internal/app/http"
	prometheusapp "github.com/BariVakhidov/waitingroom/internal/app/prometheus"
	storageapp "github.com/BariVakhidov/waitingroom/internal/app/storage"
	redisapp "github.com/BariVakhidov/waitingroom/internal/app/storage/redis"
	"github.com/BariVakhidov/waitingroom/internal/config"
	queuehttp "github.com/BariVakhidov/waitingroom/internal/http/queue"
	"github.com/BariVakhidov/waitingroom/internal/kafka"
	"github.com/BariVakhidov/waitingroom/internal/services/reaper"
	"github.com/BariVakhidov/waitingroom/internal/services/waitingroom"
	"github.com/google/uuid"
)

type App struct {
	httpServer   *httpapp.App
	metrics      *prometheusapp.App
	storage      *storageapp.App
	redisStorage *redisapp.App
	reaper       *reaper.Reaper
	producer     *kafka.Producer
	cfg          *config.Config
}

func New(log *slog.Logger, cfg *config.Config) *App {
	metrics := prometheusapp.New(log, cfg.MetricsPort)

	kafkaPublisher := kafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	storage := storageapp.MustCreateApp(cfg.Storage, log)

	// lock TTL matches the reclaim cadence so a crashed holder frees the lock
	// before the next cycle
	redisApp := redisapp.New(log, cfg.Redis.Addr, cfg.Room.ReclaimInterval)

	roomService := waitingroom.New(
		log,
		storage.Storage,
		storage.Storage,
		storage.Storage,
		storage.Storage,
		kafkaPublisher,
		waitingroom.Config{
			RoomCapacity:      cfg.Room.Capacity,
			OccupancyDuration: cfg.Room.OccupancyDuration,
		},
		waitingroom.Metrics{
			Enqueued: metrics.EnqueuedCounter,
			Admitted: metrics.AdmittedCounter,
			Rejected: metrics.RejectedCounter,
			Reaped:   metrics.ReapedCounter,
		},
	)

	reaperService := reaper.New(log, roomService, redisApp.Storage, uuid.NewString())

	serverAPI := queuehttp.InitializeServerAPI(log, roomService)

	httpOpts := httpapp.AppOpts{
		Log:             log,
		Port:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}
	httpApp := httpapp.New(httpOpts, serverAPI.Router())

	return &App{
		httpServer:   httpApp,
		metrics:      metrics,
		storage:      storage,
		redisStorage: redisApp,
		reaper:       reaperService,
		producer:     kafkaPublisher,
		cfg:          cfg,
	}
}

func (a *App) MustRun() {
	go a.httpServer.MustRun()
	go a.metrics.MustRun()
	a.reaper.StartReaping(context.Background(), a.cfg.Room.ReclaimInterval)
}

func (a *App) Stop() error {
	a.reaper.Stop()
	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	a.storage.Stop()
	if err := a.producer.Close(); err != nil {
		return err
	}
	return a.redisStorage.Stop()
}
