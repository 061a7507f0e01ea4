/*

Role-based access control for the engine's mutating entry points.

Rather than inheriting auth behavior from a base type, every entry point
performs an explicit permission check against a small access list: one vault
identity (the only caller allowed to push or pull capital) and a set of admin
identities. Rebalance is deliberately callable by anyone.

*/

package engine

import "fmt"

// AccessList maps the two privileged roles to authorized caller identities.
type AccessList struct {
	vault  string
	admins map[string]struct{}
}

// NewAccessList builds the engine's permission set. The vault identity is
// required; admins may be empty (administration is then impossible until a
// new engine is constructed, which is intentional).
func NewAccessList(vault string, admins []string) (*AccessList, error) {
	if vault == "" {
		return nil, fmt.Errorf("vault identity cannot be empty")
	}
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a == "" {
			continue
		}
		set[a] = struct{}{}
	}
	return &AccessList{vault: vault, admins: set}, nil
}

// IsVault reports whether caller is the registered vault.
func (a *AccessList) IsVault(caller string) bool {
	return caller != "" && caller == a.vault
}

// IsAdmin reports whether caller holds the admin role.
func (a *AccessList) IsAdmin(caller string) bool {
	_, ok := a.admins[caller]
	return ok
}

func (e *Engine) requireVault(caller string) error {
	if !e.acl.IsVault(caller) {
		return fmt.Errorf("%w: %q is not the vault", ErrUnauthorized, caller)
	}
	return nil
}

func (e *Engine) requireAdmin(caller string) error {
	if !e.acl.IsAdmin(caller) {
		return fmt.Errorf("%w: %q is not an admin", ErrUnauthorized, caller)
	}
	return nil
}
