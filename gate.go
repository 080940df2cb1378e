package authcore

// Gating predicates. Each portal composes exactly the checks it needs; a
// failed predicate maps to one taxonomy entry and nothing downstream runs.

// gate is one composable login/refresh precondition.
type gate func(acct Account) error

// roleGate fails with ErrWrongPortal unless the account role matches the
// portal. Super admins are accepted on the admin portal.
func roleGate(expected Role) gate {
	return func(acct Account) error {
		if acct.Role == expected {
			return nil
		}
		if expected == RoleAdmin && acct.Role == RoleSuperAdmin {
			return nil
		}
		return ErrWrongPortal
	}
}

// approvalGate fails pending accounts with ErrAccountNotApproved and
// rejected accounts with a RejectionError carrying the stored reason.
func approvalGate(acct Account) error {
	switch acct.ApprovalStatus {
	case ApprovalApproved:
		return nil
	case ApprovalRejected:
		return &RejectionError{Reason: acct.RejectionReason}
	default:
		return ErrAccountNotApproved
	}
}

// portalGates returns the predicate chain for a portal's login surface.
// Customer logins have no approval step; admin accounts are pre-approved by
// construction, so their chain is the role check alone.
func portalGates(portal Role) []gate {
	gates := []gate{roleGate(portal)}
	if portal.RequiresApproval() {
		gates = append(gates, approvalGate)
	}
	return gates
}

func runGates(acct Account, gates []gate) error {
	for _, g := range gates {
		if err := g(acct); err != nil {
			return err
		}
	}
	return nil
}
