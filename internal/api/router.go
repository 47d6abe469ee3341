package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"postbot/internal/storage"
	"postbot/internal/trigger"
	logx "postbot/pkg/logx"
)

// Deps are the collaborators the handlers use. Health and Metrics are
// optional.
type Deps struct {
	Store    storage.Store
	Registry *trigger.Registry
	Health   func() any
	Metrics  http.Handler
	// StoreTimeout bounds each store call made by a handler.
	StoreTimeout time.Duration
}

// NewRouter builds the API handler for cfg.
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLog(log), middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Liveness stays open for health checkers.
	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics)
		}
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
		r.Route("/api", func(r chi.Router) {
			r.Get("/trigger-kinds", h.triggerKinds)
			r.Get("/trigger-kinds/{kind}", h.triggerTemplate)
			r.Route("/posts", func(r chi.Router) {
				r.Get("/", h.listPosts)
				r.Post("/", h.createPost)
				r.Get("/{id}", h.getPost)
				r.Put("/{id}", h.replacePost)
				r.Delete("/{id}", h.deletePost)
			})
		})
	})
	return r
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
				}
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
