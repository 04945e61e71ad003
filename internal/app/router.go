package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altiplano-erp/altiplano-erp/internal/carriers"
	"github.com/altiplano-erp/altiplano-erp/internal/finance"
	"github.com/altiplano-erp/altiplano-erp/internal/inventory"
	"github.com/altiplano-erp/altiplano-erp/internal/orders"
	"github.com/altiplano-erp/altiplano-erp/internal/payments"
	"github.com/altiplano-erp/altiplano-erp/internal/platform/httpx"
)

// NewRouter wires every component and mounts the API.
func NewRouter(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool) chi.Router {
	validate := validator.New(validator.WithRequiredStructEnabled())

	financeSvc := finance.NewService(pool, cfg.BaseCurrency, logger)
	ledger := financeSvc.Ledger()
	paymentsSvc := payments.NewService(pool, logger, func(tx pgx.Tx) payments.TransactionPoster {
		return payments.NewLedgerPoster(ledger, tx)
	})

	ordersH := orders.NewHandler(logger, orders.NewService(pool, logger), validate)
	inventoryH := inventory.NewHandler(logger, inventory.NewService(pool, logger), validate)
	carriersH := carriers.NewHandler(logger, carriers.NewService(pool, logger), validate)
	paymentsH := payments.NewHandler(logger, paymentsSvc, validate)
	financeH := finance.NewHandler(logger, financeSvc, validate)

	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{Logger: logger, Config: cfg})...)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		ordersH.MountRoutes(api)
		inventoryH.MountRoutes(api)
		carriersH.MountRoutes(api)
		paymentsH.MountRoutes(api)
		financeH.MountRoutes(api)
	})

	return r
}
