// Package identity implements component H: a user-pool identity provider
// offering sign-up/sign-in, PBKDF2 password hashing, JWT access/refresh
// tokens, and a password-reset-code flow, plus a minimal IAM-style
// principal/policy store bootstrapped through the management surface's
// /_ldk/iam-auth endpoint.
package identity

import "time"

// PasswordPolicy constrains new passwords accepted by SignUp/ConfirmForgotPassword.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSymbol    bool
}

// Pool is a user pool's configuration.
type Pool struct {
	ID             string
	Name           string
	Policy         PasswordPolicy
	TokenTTL       time.Duration
	RefreshTTL     time.Duration
}

// User is one pool member.
type User struct {
	Username     string
	PasswordHash string
	Salt         []byte
	Attributes   map[string]string
	Confirmed    bool
	CreatedAt    time.Time
}

// RefreshToken tracks an issued refresh token, allowing token revocation and
// rotation without decoding the JWT itself.
type RefreshToken struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// ResetCode tracks an in-flight password reset request with a short,
// fixed expiry per spec.md's identity section.
type ResetCode struct {
	Code      string
	Username  string
	ExpiresAt time.Time
}

// Principal is an IAM-style identity the bootstrap endpoint can install,
// distinct from a pool User: principals carry policies evaluated by the
// middleware chain's IAM step, not pool credentials.
type Principal struct {
	ARN      string
	Policies []Policy
}

// Policy is one IAM-style policy document attached to a principal.
type Policy struct {
	Effect    string // "Allow" | "Deny"
	Actions   []string
	Resources []string
	Condition map[string]map[string]string // operator -> key -> expected value, e.g. StringEquals
}
