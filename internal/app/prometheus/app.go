package prometheusapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BariVakhidov/waitingroom/internal/lib/logger/sl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	log  *slog.Logger
	port int
	reg  *prometheus.Registry

	EnqueuedCounter *prometheus.CounterVec
	AdmittedCounter *prometheus.CounterVec
	RejectedCounter *prometheus.CounterVec
	ReapedCounter   prometheus.Counter
}

func New(log *slog.Logger, port int) *App {
	reg := prometheus.NewRegistry()

	enqueued := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "waitingroom_tickets_enqueued_total",
		Help: "Total number of tickets placed in the waiting line.",
	}, []string{"product"})
	admitted := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "waitingroom_tickets_admitted_total",
		Help: "Total number of tickets granted a room slot.",
	}, []string{"product"})
	rejected := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "waitingroom_admissions_rejected_total",
		Help: "Total number of admission attempts refused (not eligible or lost race).",
	}, []string{"product"})
	reaped := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "waitingroom_tickets_reaped_total",
		Help: "Total number of expired tickets removed by reclamation.",
	})

	return &App{
		log:             log,
		port:            port,
		reg:             reg,
		EnqueuedCounter: enqueued,
		AdmittedCounter: admitted,
		RejectedCounter: rejected,
		ReapedCounter:   reaped,
	}
}

func (a *App) MustRun() {
	err := a.Run()
	if errors.Is(err, http.ErrServerClosed) {
		a.log.Info("Prometheus server closed", sl.Err(err))
	} else if err != nil {
		a.log.Error("Failed to start Prometheus", sl.Err(err))
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "prometheusapp.Run"
	log := a.log.With(slog.String("op", op), slog.Int("port", a.port))

	log.Info("exposing Prometheus metrics")

	http.Handle("/metrics", promhttp.HandlerFor(
		a.reg,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics e.g. to support exemplars.
			EnableOpenMetrics: true,
		},
	))

	return http.ListenAndServe(fmt.Sprintf(":%d", a.port), nil)
}
