package tokens

// ClaimSet is the payload bound into an access token. It is constructed by
// the caller per issuance request and treated as immutable once passed in;
// the service never mutates it and echoes a copy back in results.
//
// SubjectID identifies the owning principal. It may be empty for anonymous
// or service tokens, in which case no refresh token is issued.
type ClaimSet struct {
	SubjectID     string
	Username      string
	DisplayName   string
	Email         string
	EmailVerified bool
	Phone         string
	PhoneVerified bool
	TenantID      string
	EditionID     string
	ClientID      string
	SessionID     string
	Roles         []string
	Custom        map[string]string
}

// HasSubject reports whether the claim set is bound to a principal.
func (c ClaimSet) HasSubject() bool {
	return c.SubjectID != ""
}

// HasRole reports whether the claim set carries the given role.
// Role order is not significant.
func (c ClaimSet) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func cloneClaimSet(c ClaimSet) ClaimSet {
	out := c

	if c.Roles != nil {
		out.Roles = make([]string, len(c.Roles))
		copy(out.Roles, c.Roles)
	}
	if c.Custom != nil {
		out.Custom = make(map[string]string, len(c.Custom))
		for k, v := range c.Custom {
			out.Custom[k] = v
		}
	}

	return out
}
