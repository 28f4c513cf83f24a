// Package apiapp serves the time card HTTP API: one endpoint whose action
// parameter selects between listing, submitting, reviewing and logging in.
package apiapp

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/phillip-england/timecard/internal/auth"
	"github.com/phillip-england/timecard/internal/ledger"
	"github.com/phillip-england/timecard/internal/middleware"
	"github.com/phillip-england/timecard/internal/session"
	"github.com/rs/cors"
)

type Ledger interface {
	Append(ctx context.Context, fields ledger.Fields) (string, error)
	ListAll(ctx context.Context) ([]ledger.TimeCard, error)
	Approve(ctx context.Context, id string, fields ledger.Fields) error
	Update(ctx context.Context, id string, fields ledger.Fields) error
}

type EmployeeDirectory interface {
	Names(ctx context.Context) ([]string, error)
}

type Authenticator interface {
	Login(ctx context.Context, username, passwordHash string) (auth.Result, error)
}

type SessionResolver interface {
	Resolve(ctx context.Context, token string) (session.Identity, error)
}

type Deps struct {
	Ledger    Ledger
	Employees EmployeeDirectory
	Auth      Authenticator
	Sessions  SessionResolver
	Logger    *slog.Logger

	// ManagerRoles, when non-empty, limits getAll, approve and update to
	// sessions whose role is listed.
	ManagerRoles []string
	// AllowedOrigins feeds the CORS handler. Empty means any origin.
	AllowedOrigins []string
}

type Server struct {
	ledger       Ledger
	employees    EmployeeDirectory
	auth         Authenticator
	sessions     SessionResolver
	logger       *slog.Logger
	managerRoles map[string]struct{}
	origins      []string
	validate     *validator.Validate
}

func New(deps Deps) *Server {
	roles := make(map[string]struct{}, len(deps.ManagerRoles))
	for _, role := range deps.ManagerRoles {
		if role = strings.TrimSpace(role); role != "" {
			roles[strings.ToLower(role)] = struct{}{}
		}
	}
	return &Server{
		ledger:       deps.Ledger,
		employees:    deps.Employees,
		auth:         deps.Auth,
		sessions:     deps.Sessions,
		logger:       deps.Logger,
		managerRoles: roles,
		origins:      deps.AllowedOrigins,
		validate:     newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Handler returns the routed API. "/" answers like "/api" so a client pointed
// at the bare host keeps working.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RequestLogger(s.logger),
		middleware.Recover(s.logger, s.internalError),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
			ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		}),
		s.cors().Handler,
	)

	router.Get("/api/health", s.health)
	for _, path := range []string{"/api", "/"} {
		router.Get(path, s.dispatch)
		router.Post(path, s.dispatch)
	}
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return router
}

func (s *Server) cors() *cors.Cors {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, http.StatusInternalServerError, genericFailure)
}
