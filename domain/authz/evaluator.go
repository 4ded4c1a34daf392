package authz

import (
	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/shop"
)

// RequireAuthenticated allows any signed-in actor.
func RequireAuthenticated(actor *account.Actor) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	return Allowed()
}

// CanEditProduct allows superusers, and otherwise only the creator of the
// product when they also hold change_product. Neither condition alone is
// enough.
func CanEditProduct(actor *account.Actor, product *shop.Product) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if actor.Superuser {
		return Allowed()
	}
	if !actor.HasPerm(account.PermChangeProduct) {
		return Denied(ReasonMissingPermission)
	}
	if product == nil || product.CreatedByID != actor.ID {
		return Denied(ReasonNotOwner)
	}
	return Allowed()
}

// CanViewOrder allows holders of view_order. Ownership of the order is not
// checked: any holder may view any order.
func CanViewOrder(actor *account.Actor, _ *shop.Order) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if !actor.HasPerm(account.PermViewOrder) {
		return Denied(ReasonMissingPermission)
	}
	return Allowed()
}

// CanManageUser allows staff, superusers and the user themselves.
func CanManageUser(actor *account.Actor, targetUserID uint) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if actor.Staff || actor.Superuser || actor.ID == targetUserID {
		return Allowed()
	}
	return Denied(ReasonNotOwner)
}

// CanExportOrders allows staff only.
func CanExportOrders(actor *account.Actor) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if !actor.Staff {
		return Denied(ReasonNotStaff)
	}
	return Allowed()
}

// CanCreateOrderFor allows placing an order on behalf of userID when the
// actor is that user, staff or a superuser.
func CanCreateOrderFor(actor *account.Actor, userID uint) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if actor.ID == userID || actor.Staff || actor.Superuser {
		return Allowed()
	}
	return Denied(ReasonNotOwner)
}

// CanPublishArticles allows staff and superusers.
func CanPublishArticles(actor *account.Actor) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if actor.Staff || actor.Superuser {
		return Allowed()
	}
	return Denied(ReasonNotStaff)
}

// RequireStaff allows staff and superusers.
func RequireStaff(actor *account.Actor) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if actor.Staff || actor.Superuser {
		return Allowed()
	}
	return Denied(ReasonNotStaff)
}

// RequireSuperuser allows superusers only.
func RequireSuperuser(actor *account.Actor) Decision {
	if !actor.IsAuthenticated() {
		return Denied(ReasonAnonymous)
	}
	if !actor.Superuser {
		return Denied(ReasonNotSuperuser)
	}
	return Allowed()
}

// CanManageAccounts allows granting permissions, deleting users and
// creating groups. Only superusers may.
func CanManageAccounts(actor *account.Actor) Decision {
	return RequireSuperuser(actor)
}
