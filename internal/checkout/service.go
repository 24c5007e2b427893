package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/storeapi"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	outcomePlaced       = "placed"
	outcomeEmptyCart    = "empty_cart"
	outcomeUnauthorized = "unauthorized"
	outcomeRejected     = "rejected"
	outcomeFailed       = "failed"
)

type sessionProvider interface {
	Session(ctx context.Context, customerID string) (*cart.Store, error)
}

type orderSubmitter interface {
	PlaceOrder(ctx context.Context, creds auth.Credentials, payload orders.Payload) (*storeapi.PlaceResult, error)
}

// EventOrderPlaced is the event type published after an accepted order.
const EventOrderPlaced = "order.placed"

// EventPublisher announces placed orders. Failures are logged and never fail a checkout.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, attributes map[string]string, payload any) error
}

// OrderPlacedEvent is emitted after the store API accepts an order.
type OrderPlacedEvent struct {
	OrderRef   string         `json:"order_ref"`
	CustomerID string         `json:"customer_id"`
	Payload    orders.Payload `json:"payload"`
	Message    string         `json:"message"`
	PlacedAt   time.Time      `json:"placed_at"`
}

// Result describes an accepted order.
type Result struct {
	OrderRef string             `json:"order_ref"`
	Message  string             `json:"message"`
	Order    orders.Composition `json:"order"`
	Stale    bool               `json:"stale_catalogue"`
}

// Service places the caller's cart as an order.
type Service interface {
	PlaceOrder(ctx context.Context, creds auth.Credentials) (*Result, error)
}

type service struct {
	carts     sessionProvider
	catalogue catalogue.Service
	submitter orderSubmitter
	publisher EventPublisher
	policy    pricing.Policy
	location  *time.Location
	metrics   *metrics.Metrics
	logg      *logger.Logger
	now       func() time.Time
}

// Options carries the optional collaborators of the checkout service.
type Options struct {
	Publisher EventPublisher
	Location  *time.Location
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// NewService builds a checkout service backed by the provided stack.
func NewService(carts sessionProvider, cat catalogue.Service, submitter orderSubmitter, opts Options) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart sessions required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalogue service required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &service{
		carts:     carts,
		catalogue: cat,
		submitter: submitter,
		publisher: opts.Publisher,
		policy:    pricing.DefaultPolicy,
		location:  loc,
		metrics:   opts.Metrics,
		logg:      opts.Logger,
		now:       time.Now,
	}, nil
}

// PlaceOrder composes the cart against a fresh catalogue and submits it. The
// cart is cleared, and its persisted snapshot removed, only after the store API
// accepts the order. Any failure leaves the cart untouched; failures before the
// submission are marked with pkgerrors.MarkNotSent.
func (s *service) PlaceOrder(ctx context.Context, creds auth.Credentials) (*Result, error) {
	if !creds.Valid() {
		s.metrics.IncCheckout(outcomeUnauthorized)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
	}
	if s.logg != nil {
		ctx = s.logg.WithCustomerID(ctx, creds.CustomerID)
	}

	store, err := s.carts.Session(ctx, creds.CustomerID)
	if err != nil {
		s.metrics.IncCheckout(outcomeFailed)
		return nil, pkgerrors.MarkNotSent(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart"))
	}

	lines := store.Lines()
	if len(lines) == 0 {
		s.metrics.IncCheckout(outcomeEmptyCart)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	snap, err := s.catalogue.Snapshot(ctx, creds)
	if err != nil {
		s.metrics.IncCheckout(outcomeFailed)
		return nil, pkgerrors.MarkNotSent(err)
	}

	composition := orders.Compose(lines, snap, s.policy, s.now().In(s.location))
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, composition.LogFields()), "checkout.submitting")
	}

	placed, err := s.submitter.PlaceOrder(ctx, creds, composition.Payload)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeRejected) {
			s.metrics.IncCheckout(outcomeRejected)
		} else {
			s.metrics.IncCheckout(outcomeFailed)
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout.submit_failed")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "place order")
	}

	store.Clear(ctx)
	s.metrics.IncCheckout(outcomePlaced)

	result := &Result{
		OrderRef: uuid.NewString(),
		Message:  placed.Message,
		Order:    composition,
		Stale:    snap.Stale,
	}
	s.publish(ctx, creds.CustomerID, result)
	return result, nil
}

func (s *service) publish(ctx context.Context, customerID string, result *Result) {
	if s.publisher == nil {
		return
	}
	event := OrderPlacedEvent{
		OrderRef:   result.OrderRef,
		CustomerID: customerID,
		Payload:    result.Order.Payload,
		Message:    result.Message,
		PlacedAt:   s.now().UTC(),
	}
	attrs := map[string]string{
		"customer_id": customerID,
		"order_ref":   result.OrderRef,
	}
	if err := s.publisher.PublishEvent(ctx, EventOrderPlaced, attrs, event); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_ref", result.OrderRef), "checkout.publish_failed", err)
	}
}
