package discount

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
	"github.com/webdna/commerce-multi-coupon/internal/session"
)

// Service exposes the engine's entry points to the host: adjustment
// evaluation on the hot path, and the non-hot-path code attachment
// lifecycle.
type Service struct {
	orders      order.Repository
	attachments order.CouponAttachments
	catalog     *CatalogService
	adjuster    *Adjuster
	validator   *Validator
}

// NewService wires the engine's entry points.
func NewService(
	orders order.Repository,
	attachments order.CouponAttachments,
	catalog *CatalogService,
	adjuster *Adjuster,
	validator *Validator,
) *Service {
	return &Service{
		orders:      orders,
		attachments: attachments,
		catalog:     catalog,
		adjuster:    adjuster,
		validator:   validator,
	}
}

// EvaluateOrderAdjustments loads the order and its attached codes, runs one
// evaluation pass with a fresh session, and returns the adjustments in
// processing order. Storage failures propagate: an empty discount set is
// never silently substituted, since that changes the amount charged.
func (s *Service) EvaluateOrderAdjustments(ctx context.Context, orderID string) ([]Adjustment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	codes, err := s.attachments.Codes(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load attached codes")
	}
	o.CouponCodes = codes

	return s.adjuster.Adjust(ctx, session.New(), o)
}

// LookupCouponDiscount reports the rule a code would unlock, or
// ErrCouponNotFound.
func (s *Service) LookupCouponDiscount(ctx context.Context, storeID int64, code string) (*Rule, error) {
	return s.validator.LookupCouponDiscount(ctx, storeID, code)
}

// AttachCode validates a staged code and records its attachment to the
// order. Invalid codes are rejected before anything is persisted.
func (s *Service) AttachCode(ctx context.Context, orderID, code string) (*Rule, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	rule, err := s.validator.LookupCouponDiscount(ctx, o.StoreID, code)
	if err != nil {
		return nil, err
	}

	if err := s.attachments.Attach(ctx, o.ID, rule.ID, code); err != nil {
		return nil, errors.Wrap(err, "attach coupon code")
	}

	return rule, nil
}

// RemoveCodes deletes specific code attachments from the order.
func (s *Service) RemoveCodes(ctx context.Context, orderID string, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	if err := s.attachments.Remove(ctx, orderID, codes); err != nil {
		return errors.Wrap(err, "remove coupon codes")
	}
	return nil
}
