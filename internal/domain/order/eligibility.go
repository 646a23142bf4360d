package order

import (
	"github.com/go-faster/errors"

	"github.com/xenking/panel-commerce/internal/domain/product"
	"github.com/xenking/panel-commerce/internal/domain/user"
)

// Eligibility failures. ErrUnavailable deliberately covers three distinct
// situations: a missing product, an out-of-stock product, and a shadow-banned
// user. Callers must present all three identically.
var (
	ErrUnavailable    = errors.New("product unavailable")
	ErrClassTooLow    = errors.New("account class too low for this product")
	ErrWrongNodeGroup = errors.New("account group cannot purchase this product")
	ErrNewUsersOnly   = errors.New("product is for new users only")
	ErrOrderNotFound  = errors.New("order not found")
)

// CheckEligibility gates a product purchase. priorOrders is the user's total
// order count across all statuses; it is only consulted when the product
// requires a new user, so callers may pass 0 otherwise.
//
// The check is read-only. It must pass before any mutation happens.
func CheckEligibility(p *product.Product, usr *user.User, priorOrders int64) error {
	if p == nil || !p.InStock() {
		return ErrUnavailable
	}

	// Shadow-banned accounts get the exact same answer as an out-of-stock
	// product so the ban cannot be probed through the shop.
	if usr.IsShadowBanned {
		return ErrUnavailable
	}

	if p.Limit.ClassRequired > 0 && usr.Class < p.Limit.ClassRequired {
		return ErrClassTooLow
	}

	if p.Limit.NodeGroupRequired > 0 && usr.NodeGroup != p.Limit.NodeGroupRequired {
		return ErrWrongNodeGroup
	}

	if p.Limit.NewUserRequired && priorOrders > 0 {
		return ErrNewUsersOnly
	}

	return nil
}
