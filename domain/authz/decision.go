// Package authz decides whether an actor may perform an operation on a
// resource. Every function is pure and total: a nil actor is anonymous and is
// always denied.
package authz

// Reason explains a denial.
type Reason string

const (
	ReasonAnonymous         Reason = "authentication required"
	ReasonMissingPermission Reason = "missing permission"
	ReasonNotOwner          Reason = "not the owner"
	ReasonNotStaff          Reason = "staff only"
	ReasonNotSuperuser      Reason = "superuser only"
)

// Decision is either Allowed or Denied with a reason.
type Decision struct {
	allowed bool
	reason  Reason
}

// Allowed is the permitting decision.
func Allowed() Decision {
	return Decision{allowed: true}
}

// Denied is a refusing decision carrying its reason.
func Denied(reason Reason) Decision {
	return Decision{reason: reason}
}

// IsAllowed reports whether the decision permits the operation.
func (d Decision) IsAllowed() bool {
	return d.allowed
}

// Reason returns the denial reason, empty when allowed.
func (d Decision) Reason() Reason {
	return d.reason
}

// Anonymous reports whether the denial is due to a missing sign-in.
func (d Decision) Anonymous() bool {
	return !d.allowed && d.reason == ReasonAnonymous
}

func (d Decision) String() string {
	if d.allowed {
		return "allowed"
	}
	return "denied: " + string(d.reason)
}

// Err returns nil when the decision allows, and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.allowed {
		return nil
	}
	return &DeniedError{Decision: d}
}

// DeniedError carries a refusing decision through error returns.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return e.Decision.String()
}
