package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/session"
)

const requestTimeout = 30 * time.Second

// RouterConfig holds the dependencies for the router
type RouterConfig struct {
	Handlers      *Handlers
	JWTService    *auth.JWTService
	Staging       session.Staging
	SecureCookies bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(middleware.Session(cfg.JWTService, cfg.Staging, cfg.SecureCookies))

	r.Get("/health", h.Health)

	// Catalog
	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/categories", h.ListCategories)

	// Cart
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.With(middleware.RequireAuth).Post("/items/{productID}/add", h.AddToCart)
		r.Post("/items/{lineID}", h.UpdateCartItem)
		r.Post("/items/{lineID}/remove", h.RemoveCartItem)
		r.Post("/clear", h.ClearCart)
	})

	// Auth
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)
		r.With(middleware.RequireAuth).Get("/me", h.Me)
	})

	r.Get("/order/success", h.OrderSuccess)

	// Purchase and account routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/checkout", h.CheckoutForm)
		r.Post("/checkout", h.Checkout)
		r.Post("/payment/create-order", h.CreatePayment)
		r.Post("/payment/capture-order", h.CapturePayment)

		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Post("/profile/password", h.ChangePassword)

		r.Get("/orders", h.MyOrders)
		r.Get("/orders/{orderID}", h.GetOrder)

		r.Post("/products/{productID}/favorite", h.ToggleFavorite)
		r.Get("/favorites", h.ListFavorites)
	})

	// Back office
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireStaff)

		r.Get("/dashboard", h.Dashboard)
		r.Route("/products", h.productAdmin().routes)
		r.Route("/categories", h.categoryAdmin().routes)

		r.Route("/users", func(r chi.Router) {
			accounts := h.accountAdmin()
			r.Get("/", accounts.list)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", accounts.get)
			r.Put("/{id}", accounts.update)
			r.Delete("/{id}", accounts.remove)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.AdminListOrders)
			r.Get("/export", h.ExportOrders)
			r.Get("/{orderID}", h.AdminGetOrder)
			r.Put("/{orderID}", h.AdminEditOrder)
			r.Post("/{orderID}/status", h.UpdateOrderStatus)
			r.Delete("/{orderID}", h.AdminDeleteOrder)
		})

		r.Get("/reconciliations", h.ListReconciliations)
		r.Post("/reconciliations/{id}/resolve", h.ResolveReconciliation)
	})

	return otelhttp.NewHandler(r, "storefront")
}
