package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/service"
)

type Dependencies struct {
	Logger   *zap.Logger
	Addr     string
	Location *time.Location

	Rules    *service.RuleService
	Registry *service.IdentityRegistry
	Verifier *service.VerificationService
	Audit    *service.AuditTrail
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	loc        *time.Location

	rules    *service.RuleService
	registry *service.IdentityRegistry
	verifier *service.VerificationService
	audit    *service.AuditTrail
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Server{
		logger:   logger,
		loc:      loc,
		rules:    d.Rules,
		registry: d.Registry,
		verifier: d.Verifier,
		audit:    d.Audit,
	}

	r := chi.NewRouter()
	r.Use(recoverMiddleware(logger), loggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/users/", s.handleListUsers)
	r.Post("/users/", s.handleCreateUser)
	r.Get("/users/{email}/", s.handleGetUser)
	r.Delete("/users/{email}/", s.handleRemoveUser)
	r.Post("/assign-rfid-id-to-user/", s.handleAssignRFID)
	r.Post("/remove-rfid-id-from-user/", s.handleRemoveRFID)

	r.Get("/users/{email}/access-rules/", s.handleListRules)
	r.Post("/users/{email}/access-rules/", s.handleAddRule)
	r.Delete("/users/{email}/access-rules/{index}/", s.handleRemoveRule)

	r.Post("/grant-unconditional-access/", s.handleGrant)
	r.Post("/deny-unconditional-access/", s.handleDeny)
	r.Post("/use-access-rules/", s.handleUseRules)

	r.Post("/verify-rfid-id-access/", s.handleVerify)
	r.Get("/log/", s.handleLog)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
