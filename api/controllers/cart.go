package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cartview"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CartSessions hands out the caller's cart.
type CartSessions interface {
	Session(ctx context.Context, customerID string) (*cart.Store, error)
}

type cartMutationResponse struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	ItemCount int   `json:"item_count"`
	UnitCount int   `json:"unit_count"`
}

type cartEditResponse struct {
	cartMutationResponse
	Applied bool `json:"applied"`
}

type quantityRequest struct {
	Value *string `json:"value" validate:"omitempty,max=12"`
}

func (q quantityRequest) raw() (string, error) {
	if q.Value == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"value": "is required"})
	}
	return *q.Value, nil
}

// CartView returns the priced cart with display prices, GST and warnings.
func CartView(builder *cartview.Builder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if builder == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		view, err := builder.Build(r.Context(), middleware.CredentialsFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartIncrease adds one unit. The cached catalogue entry, when known, is stored
// alongside the line.
func CartIncrease(carts CartSessions, cat catalogue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, productID, ok := cartTarget(w, r, carts, logg)
		if !ok {
			return
		}

		var ref *catalogue.Product
		if cat != nil {
			if snap, cached := cat.Cached(store.CustomerID()); cached {
				if product, found := snap.Lookup(productID); found {
					ref = &product
				}
			}
		}

		qty := store.Increase(r.Context(), productID, ref)
		responses.WriteSuccess(w, mutationResponse(store, productID, qty))
	}
}

// CartDecrease removes one unit. ?policy overrides the configured decrease policy.
func CartDecrease(carts CartSessions, def enums.DecreasePolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy, err := validators.ParseDecreasePolicy(r, def)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, productID, ok := cartTarget(w, r, carts, logg)
		if !ok {
			return
		}

		qty := store.Decrease(r.Context(), productID, policy)
		responses.WriteSuccess(w, mutationResponse(store, productID, qty))
	}
}

// CartSetQuantity applies an in-progress quantity edit. An empty value hides the
// line until it is committed; an unparsable value is ignored.
func CartSetQuantity(carts CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := decodeQuantity(w, r, logg)
		if !ok {
			return
		}
		store, productID, ok := cartTarget(w, r, carts, logg)
		if !ok {
			return
		}

		applied := store.SetQuantity(r.Context(), productID, raw)
		responses.WriteSuccess(w, cartEditResponse{
			cartMutationResponse: mutationResponse(store, productID, store.Quantity(productID)),
			Applied:              applied,
		})
	}
}

// CartCommitQuantity finishes an edit, reverting values below one.
func CartCommitQuantity(carts CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := decodeQuantity(w, r, logg)
		if !ok {
			return
		}
		store, productID, ok := cartTarget(w, r, carts, logg)
		if !ok {
			return
		}

		qty := store.CommitQuantity(r.Context(), productID, raw)
		responses.WriteSuccess(w, mutationResponse(store, productID, qty))
	}
}

func CartRemoveItem(carts CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, productID, ok := cartTarget(w, r, carts, logg)
		if !ok {
			return
		}
		store.Remove(r.Context(), productID)
		responses.WriteSuccess(w, mutationResponse(store, productID, 0))
	}
}

func CartClear(carts CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := cartSession(w, r, carts, logg)
		if !ok {
			return
		}
		store.Clear(r.Context())
		responses.WriteSuccess(w, map[string]int{"item_count": 0, "unit_count": 0})
	}
}

func cartSession(w http.ResponseWriter, r *http.Request, carts CartSessions, logg *logger.Logger) (*cart.Store, bool) {
	if carts == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return nil, false
	}
	customerID := middleware.CustomerIDFromContext(r.Context())
	if customerID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required"))
		return nil, false
	}
	store, err := carts.Session(r.Context(), customerID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart"))
		return nil, false
	}
	return store, true
}

func cartTarget(w http.ResponseWriter, r *http.Request, carts CartSessions, logg *logger.Logger) (*cart.Store, int64, bool) {
	productID, err := validators.ParseProductID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, 0, false
	}
	store, ok := cartSession(w, r, carts, logg)
	if !ok {
		return nil, 0, false
	}
	return store, productID, true
}

func decodeQuantity(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	var payload quantityRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return "", false
	}
	raw, err := payload.raw()
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return "", false
	}
	return raw, true
}

func mutationResponse(store *cart.Store, productID int64, qty int) cartMutationResponse {
	return cartMutationResponse{
		ProductID: productID,
		Quantity:  qty,
		ItemCount: store.ItemCount(),
		UnitCount: store.UnitCount(),
	}
}
