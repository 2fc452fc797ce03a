package api

import (
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/bus"
	"github.com/platinummonkey/schoolhouse/pkg/httputil"
	"github.com/platinummonkey/schoolhouse/pkg/middleware"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes int64 = 1 << 20

// Role sets attached to routes
var (
	anyRole   = rbac.NewRoleSet(rbac.AllRoles()...)
	staff     = rbac.NewRoleSet(rbac.RoleSA, rbac.RoleDistrictAdministrator, rbac.RoleSchoolAdministrator, rbac.RoleSchoolTeacher, rbac.RoleClassTeacher)
	admins    = rbac.NewRoleSet(rbac.RoleSA, rbac.RoleDistrictAdministrator, rbac.RoleSchoolAdministrator)
	sysAdmins = rbac.NewRoleSet(rbac.RoleSA)
)

// Server represents our API server
type Server struct {
	router        *mux.Router
	handler       http.Handler
	bus           *bus.Bus
	authenticator *auth.Authenticator
	policy        *rbac.CreatePolicy
	limiter       middleware.Limiter
	proxies       middleware.TrustedProxies
	metrics       *observability.Metrics
	logger        *observability.Logger
	tracer        trace.TracerProvider
	maxBodyBytes  int64
	newID         func() (string, error)
}

// Option configures a Server
type Option func(*Server)

// WithCreatePolicy replaces the built-in create matrix used by the create guard
func WithCreatePolicy(policy *rbac.CreatePolicy) Option {
	return func(s *Server) { s.policy = policy }
}

// WithRateLimiter limits the public password routes. A nil limiter disables it.
func WithRateLimiter(limiter middleware.Limiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// WithTrustedProxies lets the rate limiter key clients on X-Forwarded-For
// when the request arrives through one of proxies
func WithTrustedProxies(proxies middleware.TrustedProxies) Option {
	return func(s *Server) { s.proxies = proxies }
}

// WithMetrics enables HTTP and guard metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithLogger sets the request and error logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTracerProvider instruments the handler with otelhttp spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp }
}

// WithMaxBodyBytes caps request bodies at n bytes
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithIDGenerator overrides how new user and district ids are made
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Server) { s.newID = newID }
}

// newTimeID returns a time based (version 1) UUID
func newTimeID() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewServer builds the router. It fails when b has no handler for a message
// the routes dispatch.
func NewServer(b *bus.Bus, authenticator *auth.Authenticator, opts ...Option) (*Server, error) {
	s := &Server{
		router:        mux.NewRouter(),
		bus:           b,
		authenticator: authenticator,
		policy:        rbac.DefaultCreatePolicy(),
		maxBodyBytes:  DefaultMaxBodyBytes,
		newID:         newTimeID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}

	if err := b.Require(dispatchedMessages...); err != nil {
		return nil, err
	}
	s.logger.WithField("handlers", b.Names()).Debug("bus handlers ready")

	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s, nil
}

// dispatchedMessages lists every message a route sends through the bus
var dispatchedMessages = []string{
	users.MsgCreateUser,
	users.MsgGetUser,
	users.MsgGetUsers,
	users.MsgUpdateUser,
	users.MsgDeleteUser,
	users.MsgSelectDistrict,
	users.MsgSetPassword,
	users.MsgResetPassword,
	users.MsgCreateDistrict,
	users.MsgListDistricts,
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	// User routes; /users/current and /users/select-district come before {userId}
	s.handle("/users", http.MethodPost, s.createUser, s.roles(staff), middleware.RequireCreatableRole(s.policy))
	s.handle("/users", http.MethodGet, s.listUsers, s.roles(staff))
	s.handle("/users/current", http.MethodGet, s.currentUser, s.roles(anyRole))
	s.handle("/users/select-district", http.MethodPost, s.selectDistrict, s.roles(sysAdmins))
	s.handle("/users/{userId}", http.MethodGet, s.getUser, s.roles(staff))
	s.handle("/users/{userId}", http.MethodPut, s.updateUser, s.roles(staff))
	s.handle("/users/{userId}", http.MethodDelete, s.deleteUser, s.roles(admins))

	// District routes
	s.handle("/districts", http.MethodPost, s.createDistrict, s.roles(sysAdmins))
	s.handle("/districts", http.MethodGet, s.listDistricts, s.roles(sysAdmins))

	// Public password routes
	s.public("/set-password/{userId}", http.MethodPost, s.setPassword)
	s.public("/reset-password", http.MethodPost, s.resetPassword)

	s.router.NotFoundHandler = httputil.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return notFound(r)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.ErrorResponse{
			Error:   "method_not_allowed",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		})
	})
}

// roles is the authenticate stage followed by a role check
func (s *Server) roles(set rbac.RoleSet) []middleware.Guard {
	return []middleware.Guard{
		middleware.Authenticate(s.authenticator),
		middleware.RequireRoles(set),
	}
}

// handle registers an authenticated route. Extra guards run after the role check.
func (s *Server) handle(path, method string, h httputil.HandlerFunc, guards []middleware.Guard, extra ...middleware.Guard) {
	pipeline := middleware.NewPipeline(append(guards, extra...)...)
	s.mount(path, method, pipeline, h)
}

// public registers an unauthenticated route behind the rate limiter
func (s *Server) public(path, method string, h httputil.HandlerFunc) {
	var guards []middleware.Guard
	if s.limiter != nil {
		guards = append(guards, middleware.RateLimit(s.limiter, "password", s.proxies, s.metrics))
	}
	s.mount(path, method, middleware.NewPipeline(guards...), h)
}

func (s *Server) mount(path, method string, pipeline *middleware.Pipeline, h httputil.HandlerFunc) {
	pipeline = pipeline.WithRejectHook(middleware.CountRejections(s.metrics))
	s.router.Handle(path, httputil.Handle(pipeline.Then(h))).Methods(method)
	s.logger.WithFields(map[string]interface{}{
		"method": method,
		"path":   path,
		"stages": pipeline.Stages(),
	}).Debug("route registered")
}

// wrap applies the outer middleware, outermost first
func (s *Server) wrap(h http.Handler) http.Handler {
	h = httputil.Chain(
		httputil.RequestIDMiddleware(),
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(s.maxBodyBytes),
	)(h)
	if s.tracer != nil {
		h = otelhttp.NewHandler(h, "schoolhouse",
			otelhttp.WithTracerProvider(s.tracer),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "HTTP " + r.Method
			}),
		)
	}
	return h
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Routes lists the registered method and path templates
func (s *Server) Routes() []string {
	var routes []string
	s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		for _, m := range methods {
			routes = append(routes, m+" "+tmpl)
		}
		return nil
	})
	return routes
}
