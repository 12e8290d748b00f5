package core

// HasRole is the capability predicate behind every privileged route. It looks
// only at the identity passed in, so callers must hand it a fresh copy on each
// request.
func HasRole(identity *Identity, required Role) bool {
	if identity == nil || identity.Disabled() {
		return false
	}
	switch required {
	case RoleStandard:
		return identity.Role == RoleStandard || identity.Role == RoleAdmin
	case RoleAdmin:
		return identity.Role == RoleAdmin
	default:
		return false
	}
}

// ParseRole maps an empty role to RoleStandard and rejects unknown ones.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleStandard:
		return RoleStandard, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}
