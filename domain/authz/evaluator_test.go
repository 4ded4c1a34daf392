package authz

import (
	"testing"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/shop"
)

func actorWith(id uint, perms ...string) *account.Actor {
	return &account.Actor{ID: id, Username: "user", Permissions: perms}
}

func TestCanEditProduct(t *testing.T) {
	product := &shop.Product{ID: 1, Name: "Chair", CreatedByID: 7}

	tests := []struct {
		name   string
		actor  *account.Actor
		want   bool
		reason Reason
	}{
		{"anonymous", nil, false, ReasonAnonymous},
		{"zero actor is anonymous", &account.Actor{}, false, ReasonAnonymous},
		{"superuser without permission or ownership", &account.Actor{ID: 2, Superuser: true}, true, ""},
		{"owner with change_product", actorWith(7, account.PermChangeProduct), true, ""},
		{"owner without change_product", actorWith(7), false, ReasonMissingPermission},
		{"non-owner with change_product", actorWith(8, account.PermChangeProduct), false, ReasonNotOwner},
		{"non-owner without permission", actorWith(8, account.PermViewOrder), false, ReasonMissingPermission},
		{"staff non-owner with change_product", &account.Actor{ID: 9, Staff: true, Permissions: []string{account.PermChangeProduct}}, false, ReasonNotOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanEditProduct(tt.actor, product)
			if got.IsAllowed() != tt.want {
				t.Fatalf("CanEditProduct() = %v, want allowed=%v", got, tt.want)
			}
			if got.Reason() != tt.reason {
				t.Errorf("CanEditProduct() reason = %q, want %q", got.Reason(), tt.reason)
			}
		})
	}
}

func TestCanEditProduct_NilProduct(t *testing.T) {
	if CanEditProduct(actorWith(1, account.PermChangeProduct), nil).IsAllowed() {
		t.Error("CanEditProduct() with nil product should deny non-superusers")
	}
	if !CanEditProduct(&account.Actor{ID: 1, Superuser: true}, nil).IsAllowed() {
		t.Error("CanEditProduct() with nil product should allow superusers")
	}
}

func TestCanViewOrder(t *testing.T) {
	order := &shop.Order{ID: 3, UserID: 10}

	tests := []struct {
		name  string
		actor *account.Actor
		want  bool
	}{
		{"anonymous", nil, false},
		{"owner without view_order", actorWith(10), false},
		{"non-owner with view_order", actorWith(11, account.PermViewOrder), true},
		{"owner with view_order", actorWith(10, account.PermViewOrder), true},
		{"staff without view_order", &account.Actor{ID: 12, Staff: true}, false},
		{"superuser", &account.Actor{ID: 13, Superuser: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanViewOrder(tt.actor, order); got.IsAllowed() != tt.want {
				t.Errorf("CanViewOrder() = %v, want allowed=%v", got, tt.want)
			}
		})
	}
}

func TestCanManageUser(t *testing.T) {
	tests := []struct {
		name  string
		actor *account.Actor
		want  bool
	}{
		{"anonymous", nil, false},
		{"owner", actorWith(5), true},
		{"other user", actorWith(6), false},
		{"staff", &account.Actor{ID: 6, Staff: true}, true},
		{"superuser", &account.Actor{ID: 6, Superuser: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanManageUser(tt.actor, 5); got.IsAllowed() != tt.want {
				t.Errorf("CanManageUser() = %v, want allowed=%v", got, tt.want)
			}
		})
	}
}

func TestCanExportOrders(t *testing.T) {
	tests := []struct {
		name  string
		actor *account.Actor
		want  bool
	}{
		{"anonymous", nil, false},
		{"regular user with view_order", actorWith(1, account.PermViewOrder), false},
		{"superuser without staff flag", &account.Actor{ID: 1, Superuser: true}, false},
		{"staff", &account.Actor{ID: 1, Staff: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanExportOrders(tt.actor); got.IsAllowed() != tt.want {
				t.Errorf("CanExportOrders() = %v, want allowed=%v", got, tt.want)
			}
		})
	}
}

func TestAnonymousAlwaysDenied(t *testing.T) {
	decisions := map[string]Decision{
		"RequireAuthenticated": RequireAuthenticated(nil),
		"CanEditProduct":       CanEditProduct(nil, &shop.Product{}),
		"CanViewOrder":         CanViewOrder(nil, &shop.Order{}),
		"CanManageUser":        CanManageUser(nil, 0),
		"CanExportOrders":      CanExportOrders(nil),
		"CanCreateOrderFor":    CanCreateOrderFor(nil, 0),
		"CanPublishArticles":   CanPublishArticles(nil),
		"CanManageAccounts":    CanManageAccounts(nil),
		"RequireSuperuser":     RequireSuperuser(nil),
		"RequireStaff":         RequireStaff(nil),
	}

	for name, d := range decisions {
		if d.IsAllowed() {
			t.Errorf("%s(nil) allowed an anonymous actor", name)
		}
		if !d.Anonymous() {
			t.Errorf("%s(nil) reason = %q, want %q", name, d.Reason(), ReasonAnonymous)
		}
	}
}

func TestCanCreateOrderFor(t *testing.T) {
	if !CanCreateOrderFor(actorWith(4), 4).IsAllowed() {
		t.Error("user should be able to order for themselves")
	}
	if CanCreateOrderFor(actorWith(4), 5).IsAllowed() {
		t.Error("user should not be able to order for someone else")
	}
	if !CanCreateOrderFor(&account.Actor{ID: 4, Staff: true}, 5).IsAllowed() {
		t.Error("staff should be able to order for someone else")
	}
}

func TestRequireSuperuser(t *testing.T) {
	if !RequireSuperuser(&account.Actor{ID: 1, Superuser: true}).IsAllowed() {
		t.Error("superuser should be allowed")
	}
	d := RequireSuperuser(&account.Actor{ID: 2, Staff: true})
	if d.IsAllowed() {
		t.Fatal("staff should not be allowed")
	}
	if d.Reason() != ReasonNotSuperuser {
		t.Errorf("reason = %q, want %q", d.Reason(), ReasonNotSuperuser)
	}
}

func TestRequireStaff(t *testing.T) {
	for _, actor := range []*account.Actor{
		{ID: 1, Staff: true},
		{ID: 2, Superuser: true},
	} {
		if !RequireStaff(actor).IsAllowed() {
			t.Errorf("actor %+v should be allowed", *actor)
		}
	}
	d := RequireStaff(&account.Actor{ID: 3, Permissions: []string{account.PermViewOrder}})
	if d.Reason() != ReasonNotStaff {
		t.Errorf("reason = %q, want %q", d.Reason(), ReasonNotStaff)
	}
}
