package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Server exposes /metrics and /healthz and owns the process tracer provider.
type Server struct {
	addr   string
	logger *zap.Logger

	startStopMutex sync.Mutex
	started        bool
	srv            *http.Server
	tp             *sdktrace.TracerProvider
	wg             sync.WaitGroup
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) getLogEntry() *log.Entry {
	return log.WithField("component", "observability")
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.startStopMutex.Lock()
	defer s.startStopMutex.Unlock()
	if s.started {
		return nil
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	s.logger = logger

	Register(prometheus.DefaultRegisterer)

	s.tp = sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(s.tp)

	if s.addr != "" {
		listener, err := net.Listen("tcp", s.addr)
		if err != nil {
			return err
		}
		s.srv = &http.Server{
			Handler:           s.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          zap.NewStdLog(logger),
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.getLogEntry().WithField("error", err.Error()).Error("metrics server failed")
			}
		}()
		s.getLogEntry().WithField("addr", s.addr).Info("metrics server started")
	}
	s.started = true
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.startStopMutex.Lock()
	defer s.startStopMutex.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	var errs []error
	if s.srv != nil {
		errs = append(errs, s.srv.Shutdown(ctx))
	}
	s.wg.Wait()
	if s.tp != nil {
		errs = append(errs, s.tp.Shutdown(ctx))
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	return errors.Join(errs...)
}
