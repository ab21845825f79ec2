// Package condition evaluates stored boolean rule conditions against model
// snapshots. Expressions use expr-lang syntax and see the snapshot fields as
// top-level identifiers.
//
// Evaluation fails closed: a malformed or mistyped expression matches
// nothing, is logged at warn, and never aborts the surrounding discount
// evaluation.
package condition

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
)

var _ discount.ConditionEvaluator = (*Evaluator)(nil)

// Evaluator implements discount.ConditionEvaluator with expr-lang/expr.
type Evaluator struct{}

// NewEvaluator returns a ready Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// MatchOrder evaluates an order-level condition against the order snapshot.
func (e *Evaluator) MatchOrder(ctx context.Context, cond string, o *order.Order) bool {
	return e.eval(ctx, cond, discount.OrderSnapshot(o))
}

// MatchCustomer evaluates a customer condition. Only the customer id is in
// scope; richer customer snapshots belong to the host platform.
func (e *Evaluator) MatchCustomer(ctx context.Context, cond string, customerID int64) bool {
	return e.eval(ctx, cond, map[string]any{"customerId": customerID})
}

// MatchAddress evaluates a billing or shipping address condition.
func (e *Evaluator) MatchAddress(ctx context.Context, cond string, addressID int64) bool {
	return e.eval(ctx, cond, map[string]any{"addressId": addressID})
}

// MatchFormula evaluates the free-form order condition formula against the
// order-plus-custom-fields map.
func (e *Evaluator) MatchFormula(ctx context.Context, formula string, snapshot map[string]any) bool {
	return e.eval(ctx, formula, snapshot)
}

func (e *Evaluator) eval(ctx context.Context, src string, env map[string]any) bool {
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		zctx.From(ctx).Warn("condition failed to compile, treating as non-matching",
			zap.String("condition", src),
			zap.Error(err),
		)
		return false
	}

	out, err := expr.Run(program, env)
	if err != nil {
		zctx.From(ctx).Warn("condition failed to evaluate, treating as non-matching",
			zap.String("condition", src),
			zap.Error(err),
		)
		return false
	}

	matched, ok := out.(bool)
	return ok && matched
}
