// Package access holds the operator authorization gate used by surfaces that
// act on behalf of a human operator (the mirror transport, primarily). API
// key checks for the HTTP surface live in the middleware package.
package access

import (
	"fmt"
	"strings"

	dErrors "ndsregistry/pkg/domain-errors"
)

// Operator describes the acting principal as reported by the transport.
type Operator struct {
	ID      string
	Display string
	Admin   bool
	RoleIDs []string
}

// Author renders the audit attribution string for an operator.
func (o Operator) Author() string {
	display := strings.TrimSpace(o.Display)
	if display == "" {
		display = o.ID
	}
	return fmt.Sprintf("%s (%s)", display, o.ID)
}

// Gate grants mutating access to admins and holders of the configured
// operator role. An empty role configuration means role membership never
// grants access; admin still does.
type Gate struct {
	operatorRoleID string
}

func NewGate(operatorRoleID string) *Gate {
	return &Gate{operatorRoleID: strings.TrimSpace(operatorRoleID)}
}

// Allows reports whether the operator clears the gate.
func (g *Gate) Allows(op Operator) bool {
	if op.Admin {
		return true
	}
	if g.operatorRoleID == "" {
		return false
	}
	for _, role := range op.RoleIDs {
		if role == g.operatorRoleID {
			return true
		}
	}
	return false
}

// Require returns an unauthorized failure when the operator does not clear
// the gate.
func (g *Gate) Require(op Operator) error {
	if g.Allows(op) {
		return nil
	}
	return dErrors.New(dErrors.CodeUnauthorized, "operator lacks the required role")
}
