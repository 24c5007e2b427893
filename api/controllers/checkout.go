package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type checkoutResponse struct {
	OrderRef       string           `json:"order_ref"`
	Message        string           `json:"message"`
	Payload        orders.Payload   `json:"order"`
	Warnings       []orders.Warning `json:"warnings"`
	StaleCatalogue bool             `json:"stale_catalogue"`
}

// Checkout submits the caller's cart to the store API. The cart is cleared only
// when the order is accepted. The idempotency key is released only when the
// order never left this service.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		result, err := svc.PlaceOrder(r.Context(), middleware.CredentialsFromContext(r.Context()))
		if err != nil {
			if pkgerrors.NotSent(err) {
				middleware.ReleaseIdempotencyKey(r.Context())
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderRef:       result.OrderRef,
			Message:        result.Message,
			Payload:        result.Order.Payload,
			Warnings:       result.Order.Warnings,
			StaleCatalogue: result.Stale,
		})
	}
}
