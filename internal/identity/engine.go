package identity

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

const resetCodeTTL = 5 * time.Minute

// Engine owns every user pool for one instance, plus the IAM-style
// principal store installed through the bootstrap endpoint.
type Engine struct {
	mu         sync.RWMutex
	signingKey []byte
	pools      map[string]*poolState
	principals map[string]Principal
}

type poolState struct {
	def           Pool
	users         map[string]*User
	refreshTokens map[string]RefreshToken
	resetCodes    map[string]ResetCode
}

// NewEngine constructs an identity engine. signingKey signs every issued
// JWT; a fresh random key is generated per process start if none is
// supplied, so tokens never validate across restarts of a different
// instance (acceptable for a development emulator).
func NewEngine(signingKey []byte) *Engine {
	if len(signingKey) == 0 {
		signingKey = make([]byte, 32)
		_, _ = rand.Read(signingKey)
	}
	return &Engine{
		signingKey: signingKey,
		pools:      make(map[string]*poolState),
		principals: make(map[string]Principal),
	}
}

// CreatePool registers a new user pool.
func (e *Engine) CreatePool(def Pool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.pools[def.ID]; exists {
		return ldkerr.Conflict("ResourceInUseException", "pool already exists: "+def.ID)
	}
	if def.TokenTTL == 0 {
		def.TokenTTL = time.Hour
	}
	if def.RefreshTTL == 0 {
		def.RefreshTTL = 30 * 24 * time.Hour
	}
	e.pools[def.ID] = &poolState{
		def:           def,
		users:         make(map[string]*User),
		refreshTokens: make(map[string]RefreshToken),
		resetCodes:    make(map[string]ResetCode),
	}
	return nil
}

func (e *Engine) pool(poolID string) (*poolState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[poolID]
	if !ok {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "pool not found: "+poolID)
	}
	return p, nil
}

// SignUp creates a new, unconfirmed user in poolID.
func (e *Engine) SignUp(poolID, username, password string, attrs map[string]string) error {
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	if err := validatePassword(p.def.Policy, password); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := p.users[username]; exists {
		return ldkerr.Conflict("UsernameExistsException", "user already exists: "+username)
	}
	salt, err := newSalt()
	if err != nil {
		return err
	}
	p.users[username] = &User{
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		Salt:         salt,
		Attributes:   attrs,
		CreatedAt:    time.Now(),
	}
	return nil
}

// ConfirmSignUp marks a user confirmed, skipping the real verification-code
// delivery step an emulator has no channel to perform.
func (e *Engine) ConfirmSignUp(poolID, username string) error {
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return ldkerr.NotFound("UserNotFoundException", "user not found: "+username)
	}
	u.Confirmed = true
	return nil
}

// AuthResult carries the tokens issued by a successful sign-in.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// SignIn authenticates a user and issues an access/refresh token pair.
func (e *Engine) SignIn(poolID, username, password string) (AuthResult, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return AuthResult{}, err
	}

	e.mu.Lock()
	u, ok := p.users[username]
	e.mu.Unlock()
	if !ok || !verifyPassword(password, u.Salt, u.PasswordHash) {
		return AuthResult{}, ldkerr.Client("NotAuthorizedException", "incorrect username or password")
	}
	if !u.Confirmed {
		return AuthResult{}, ldkerr.Client("UserNotConfirmedException", "user is not confirmed")
	}

	return e.issueTokens(p, username)
}

func (e *Engine) issueTokens(p *poolState, username string) (AuthResult, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   username,
		"iat":   now.Unix(),
		"exp":   now.Add(p.def.TokenTTL).Unix(),
		"scope": "ldk.identity",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(e.signingKey)
	if err != nil {
		return AuthResult{}, ldkerr.Fatal("InternalError", "sign access token: "+err.Error())
	}

	refresh := uuid.NewString()
	e.mu.Lock()
	p.refreshTokens[refresh] = RefreshToken{Token: refresh, Username: username, ExpiresAt: now.Add(p.def.RefreshTTL)}
	e.mu.Unlock()

	return AuthResult{AccessToken: signed, RefreshToken: refresh, ExpiresIn: int(p.def.TokenTTL.Seconds())}, nil
}

// RefreshTokens exchanges a valid, unexpired refresh token for a new access
// token, rotating neither the refresh token itself (matching a typical
// long-lived refresh token contract).
func (e *Engine) RefreshTokens(poolID, refreshToken string) (AuthResult, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return AuthResult{}, err
	}

	e.mu.RLock()
	rt, ok := p.refreshTokens[refreshToken]
	e.mu.RUnlock()
	if !ok || time.Now().After(rt.ExpiresAt) {
		return AuthResult{}, ldkerr.Client("NotAuthorizedException", "invalid or expired refresh token")
	}

	res, err := e.issueTokens(p, rt.Username)
	if err != nil {
		return AuthResult{}, err
	}
	res.RefreshToken = refreshToken
	return res, nil
}

// ParseAccessToken validates a signed access token and returns its username.
func (e *Engine) ParseAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return e.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", ldkerr.Client("NotAuthorizedException", "invalid access token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ldkerr.Client("NotAuthorizedException", "invalid access token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ldkerr.Client("NotAuthorizedException", "invalid access token subject")
	}
	return sub, nil
}

// ForgotPassword issues a short-lived reset code for username.
func (e *Engine) ForgotPassword(poolID, username string) (string, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := p.users[username]; !ok {
		return "", ldkerr.NotFound("UserNotFoundException", "user not found: "+username)
	}
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	code := hex.EncodeToString(buf)
	p.resetCodes[code] = ResetCode{Code: code, Username: username, ExpiresAt: time.Now().Add(resetCodeTTL)}
	return code, nil
}

// ConfirmForgotPassword consumes a reset code and sets a new password.
func (e *Engine) ConfirmForgotPassword(poolID, code, newPassword string) error {
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	rc, ok := p.resetCodes[code]
	if !ok || time.Now().After(rc.ExpiresAt) {
		return ldkerr.Client("ExpiredCodeException", "reset code is invalid or expired")
	}
	if err := validatePassword(p.def.Policy, newPassword); err != nil {
		return err
	}
	u, ok := p.users[rc.Username]
	if !ok {
		return ldkerr.NotFound("UserNotFoundException", "user not found: "+rc.Username)
	}
	salt, err := newSalt()
	if err != nil {
		return err
	}
	u.PasswordHash = hashPassword(newPassword, salt)
	u.Salt = salt
	delete(p.resetCodes, code)
	return nil
}

// InstallPrincipal registers a principal and its policies, called by the
// /_ldk/iam-auth bootstrap endpoint so the middleware chain's IAM evaluator
// has something to check requests against.
func (e *Engine) InstallPrincipal(principal Principal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.principals[principal.ARN] = principal
}

// Principal looks up an installed principal by ARN.
func (e *Engine) Principal(arn string) (Principal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.principals[arn]
	return p, ok
}

// Reset clears every pool's users/tokens and every installed principal.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range e.pools {
		e.pools[id] = &poolState{
			def:           p.def,
			users:         make(map[string]*User),
			refreshTokens: make(map[string]RefreshToken),
			resetCodes:    make(map[string]ResetCode),
		}
	}
	e.principals = make(map[string]Principal)
}
