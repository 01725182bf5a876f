package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	Provider           identity.Provider
	Log                *zap.Logger
}

type Handlers struct {
	Cart      *CartHandler
	Orders    *OrdersHandler
	Books     *BookHandler
	Inventory *InventoryHandler
}

func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.Books.List)
			r.Get("/{book_id}", h.Books.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Provider))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Post("/", h.Cart.AddLine)
				r.Put("/{line_id}", h.Cart.UpdateQuantity)
				r.Delete("/{line_id}", h.Cart.RemoveLine)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.Orders.CreateOrder)
				r.Get("/", h.Orders.ListOrders)
				r.Get("/{order_id}", h.Orders.GetOrder)
				r.Put("/{order_id}/payment", h.Orders.SubmitPayment)
				r.Put("/{order_id}/payment-verify", h.Orders.VerifyPayment)
				r.Put("/{order_id}/complete", h.Orders.CompleteOrder)
				r.Delete("/{order_id}", h.Orders.RetireOrder)
			})

			r.Route("/inventory", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", h.Inventory.List)
				r.Get("/{book_id}", h.Inventory.Get)
				r.Put("/{book_id}", h.Inventory.Set)
				r.Post("/{book_id}/replenish", h.Inventory.Replenish)
				r.Delete("/{book_id}", h.Inventory.Retire)
			})
		})
	})

	return otelhttp.NewHandler(r, "bookstore")
}
