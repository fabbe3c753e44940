package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/metrics"
	"github.com/hpungsan/cpetrack/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const shutdownTimeout = 5 * time.Second

// Deps are the services the web UI is built on. Metrics and Logger may be nil.
type Deps struct {
	DB         *sql.DB
	Config     *config.Config
	Extraction *ops.Extraction
	Metrics    *metrics.Manager
	Logger     *logging.Logger
}

// NewServer creates and configures the HTTP server for the dashboard.
func NewServer(d Deps, version, bind string, port int) (*http.Server, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	log := d.Logger
	if log == nil {
		log = logging.Nop()
	}
	log = log.Named("web")

	h := &Handlers{
		db:       d.DB,
		cfg:      d.Config,
		x:        d.Extraction,
		metrics:  d.Metrics,
		renderer: NewRenderer(templateSub, version, log),
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.HandleDashboard)
	mux.HandleFunc("POST /entries", h.HandleAdd)
	mux.HandleFunc("POST /entries/clear", h.HandleClear)
	mux.HandleFunc("POST /entries/{id}/delete", h.HandleDelete)
	mux.HandleFunc("POST /extract", h.HandleExtract)
	mux.HandleFunc("GET /report", h.HandleReport)
	mux.HandleFunc("GET /export.xlsx", h.HandleExportXLSX)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	errLog, err := zap.NewStdLogAt(log.Named("http").Underlying(), zapcore.WarnLevel)
	if err != nil {
		errLog = stdlog.Default()
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(instrument(mux, d.Metrics, log)),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          errLog,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; form-action 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument tags each request with an ID and a logger, counts it by matched
// route pattern, and logs it at debug.
func instrument(next http.Handler, m *metrics.Manager, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ulid.Make().String()
		w.Header().Set("X-Request-Id", id)
		ctx := logging.WithLogger(logging.WithRequestID(r.Context(), id), log)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(route, rec.status)
		if !log.Enabled(zapcore.DebugLevel) {
			return
		}
		log.Debug(ctx, "request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, log *logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info(ctx, "dashboard running", zap.String("url", "http://"+srv.Addr))
	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, "[::]:") || strings.HasPrefix(srv.Addr, ":") {
		log.Warn(ctx, "server is binding to all interfaces and may be reachable from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
