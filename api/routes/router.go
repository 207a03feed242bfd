package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/libraryhub-backend/api/controllers"
	"github.com/angelmondragon/libraryhub-backend/api/middleware"
	"github.com/angelmondragon/libraryhub-backend/internal/auth"
	"github.com/angelmondragon/libraryhub-backend/internal/books"
	"github.com/angelmondragon/libraryhub-backend/internal/dashboard"
	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/internal/users"
	"github.com/angelmondragon/libraryhub-backend/pkg/auth/session"
	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/libraryhub-backend/pkg/redis"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Auth      auth.Service
	Books     books.Service
	Holds     holds.Service
	Loans     loans.Service
	Users     users.Service
	Dashboard dashboard.Service
}

// Infra carries the cross-cutting dependencies of the router. Nil rate
// limiter, idempotency store, metrics and static handlers disable the
// corresponding feature.
type Infra struct {
	Sessions    session.AccessSessionChecker
	Roles       middleware.RoleResolver
	RateLimiter pkgredis.RateLimiter
	Idempotency pkgredis.IdempotencyStore
	Readiness   map[string]controllers.Pinger
	Metrics     http.Handler
	// Static serves locally stored blobs under /static.
	Static http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	maxUpload := int64(cfg.Storage.MaxUploadMB) << 20
	authn := middleware.Auth(cfg.JWT, infra.Sessions, infra.Roles, logg)
	adminOnly := middleware.RequireRole(logg, enums.RoleAdmin)
	idempotent := middleware.Idempotency(infra.Idempotency, cfg.AuthRateLimit.IdempotencyDefaultTTL, logg)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginMatricLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterMatricLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.Readiness))
	})
	if infra.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", infra.Metrics)
	}
	if infra.Static != nil {
		r.Method(http.MethodGet, "/static/*", infra.Static)
		r.Method(http.MethodHead, "/static/*", infra.Static)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, infra.RateLimiter, logg)).Post("/register", controllers.AuthRegister(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, infra.RateLimiter, logg)).Post("/login", controllers.AuthLogin(svc.Auth, logg))
		r.With(authn).Post("/logout", controllers.AuthLogout(svc.Auth, logg))
	})

	r.Route("/books", func(r chi.Router) {
		r.Get("/", controllers.BookList(svc.Books, logg))
		r.Get("/categories", controllers.BookCategories(svc.Books, logg))
		r.Get("/{bookID}", controllers.BookGet(svc.Books, logg))

		r.Group(func(r chi.Router) {
			r.Use(authn, adminOnly)
			r.Post("/", controllers.BookCreate(svc.Books, maxUpload, logg))
			r.Put("/{bookID}", controllers.BookUpdate(svc.Books, maxUpload, logg))
			r.Delete("/{bookID}", controllers.BookDelete(svc.Books, logg))
		})

		r.With(authn, middleware.RequireRole(logg, enums.RoleStudent), idempotent).
			Post("/{bookID}/hold", controllers.BookPlaceHold(svc.Holds, logg))
	})

	r.With(authn).Get("/holds", controllers.HoldList(svc.Holds, logg))

	r.Route("/loans", func(r chi.Router) {
		r.Use(authn)
		r.Get("/", controllers.LoanList(svc.Loans, logg))
		r.With(idempotent).Post("/request", controllers.LoanRequest(svc.Loans, logg))
		r.With(idempotent).Post("/return", controllers.LoanReturn(svc.Loans, logg))

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/active", controllers.LoanListActive(svc.Loans, logg))
			r.With(idempotent).Post("/{loanID}/approve", controllers.LoanApprove(svc.Loans, logg))
			r.With(idempotent).Post("/{loanID}/reject", controllers.LoanReject(svc.Loans, logg))
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authn)
		r.Get("/me", controllers.UserMe(svc.Users, logg))
		r.Put("/me", controllers.UserUpdateMe(svc.Users, maxUpload, logg))

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", controllers.UserList(svc.Users, logg))
			r.Put("/{userID}", controllers.UserUpdate(svc.Users, logg))
			r.Delete("/{userID}", controllers.UserDelete(svc.Users, logg))
		})
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(authn, adminOnly)
		r.Get("/stats", controllers.DashboardStats(svc.Dashboard, logg))
		r.Get("/summary", controllers.DashboardSummary(svc.Dashboard, logg))
		r.Get("/overdue", controllers.DashboardOverdue(svc.Dashboard, logg))
	})

	return r
}
