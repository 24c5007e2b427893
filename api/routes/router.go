package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cartview"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	idempotencyStore pkgredis.IdempotencyStore,
	metricsHandler http.Handler,
	carts controllers.CartSessions,
	catalogueService catalogue.Service,
	modeResolver pricing.Resolver,
	cartViews *cartview.Builder,
	checkoutService checkoutsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	decreasePolicy, err := enums.ParseDecreasePolicy(cfg.Cart.DecreasePolicy)
	if err != nil {
		decreasePolicy = enums.DecreasePolicyDeleteOnZero
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/products", controllers.ProductList(catalogueService, modeResolver, carts, logg))
		r.Get("/pricing-mode", controllers.PricingMode(modeResolver, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartView(cartViews, logg))
			r.Delete("/", controllers.CartClear(carts, logg))
			r.Route("/items/{productId}", func(r chi.Router) {
				r.Post("/increase", controllers.CartIncrease(carts, catalogueService, logg))
				r.Post("/decrease", controllers.CartDecrease(carts, decreasePolicy, logg))
				r.Put("/quantity", controllers.CartSetQuantity(carts, logg))
				r.Post("/commit", controllers.CartCommitQuantity(carts, logg))
				r.Delete("/", controllers.CartRemoveItem(carts, logg))
			})
		})

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
	})

	return r
}
