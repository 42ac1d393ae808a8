package services

import (
	"net/http"
	"time"

	"github.com/local-web-services/ldk/internal/identity"
	"github.com/local-web-services/ldk/internal/wire"
)

// IdentityService exposes the identity engine's user-pool surface over the
// JSON target-header dialect.
type IdentityService struct {
	engine *identity.Engine
	table  wire.OperationTable
}

func NewIdentityService(engine *identity.Engine) *IdentityService {
	s := &IdentityService{engine: engine}
	s.table = wire.OperationTable{
		"CreateUserPool":       s.createPool,
		"SignUp":               s.signUp,
		"ConfirmSignUp":        s.confirmSignUp,
		"InitiateAuth":         s.initiateAuth,
		"AdminInitiateAuth":    s.initiateAuth,
		"ForgotPassword":       s.forgotPassword,
		"ConfirmForgotPassword": s.confirmForgotPassword,
	}
	return s
}

func (s *IdentityService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *IdentityService) createPool(r *http.Request) (interface{}, error) {
	var req struct {
		PoolId     string `json:"PoolId"`
		Name       string `json:"Name"`
		TokenTTL   int    `json:"TokenValidityMinutes,omitempty"`
		RefreshTTL int    `json:"RefreshTokenValidityDays,omitempty"`
		Policy     struct {
			MinLength        int  `json:"MinimumLength"`
			RequireUppercase bool `json:"RequireUppercase"`
			RequireLowercase bool `json:"RequireLowercase"`
			RequireNumber    bool `json:"RequireNumbers"`
			RequireSymbol    bool `json:"RequireSymbols"`
		} `json:"PasswordPolicy"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	def := identity.Pool{
		ID:   req.PoolId,
		Name: req.Name,
		Policy: identity.PasswordPolicy{
			MinLength:        req.Policy.MinLength,
			RequireUppercase: req.Policy.RequireUppercase,
			RequireLowercase: req.Policy.RequireLowercase,
			RequireNumber:    req.Policy.RequireNumber,
			RequireSymbol:    req.Policy.RequireSymbol,
		},
	}
	if req.TokenTTL > 0 {
		def.TokenTTL = time.Duration(req.TokenTTL) * time.Minute
	}
	if req.RefreshTTL > 0 {
		def.RefreshTTL = time.Duration(req.RefreshTTL) * 24 * time.Hour
	}
	if err := s.engine.CreatePool(def); err != nil {
		return nil, err
	}
	return map[string]interface{}{"UserPool": map[string]interface{}{"Id": def.ID, "Name": def.Name}}, nil
}

func (s *IdentityService) signUp(r *http.Request) (interface{}, error) {
	var req struct {
		PoolId         string            `json:"PoolId"`
		Username       string            `json:"Username"`
		Password       string            `json:"Password"`
		UserAttributes map[string]string `json:"UserAttributes,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.SignUp(req.PoolId, req.Username, req.Password, req.UserAttributes); err != nil {
		return nil, err
	}
	return map[string]interface{}{"UserConfirmed": false}, nil
}

func (s *IdentityService) confirmSignUp(r *http.Request) (interface{}, error) {
	var req struct {
		PoolId   string `json:"PoolId"`
		Username string `json:"Username"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.ConfirmSignUp(req.PoolId, req.Username); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *IdentityService) initiateAuth(r *http.Request) (interface{}, error) {
	var req struct {
		PoolId         string `json:"PoolId"`
		AuthFlow       string `json:"AuthFlow"`
		AuthParameters struct {
			Username     string `json:"USERNAME"`
			Password     string `json:"PASSWORD"`
			RefreshToken string `json:"REFRESH_TOKEN"`
		} `json:"AuthParameters"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}

	var (
		res AuthResultAlias
		err error
	)
	if req.AuthFlow == "REFRESH_TOKEN_AUTH" {
		res, err = s.engine.RefreshTokens(req.PoolId, req.AuthParameters.RefreshToken)
	} else {
		res, err = s.engine.SignIn(req.PoolId, req.AuthParameters.Username, req.AuthParameters.Password)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"AuthenticationResult": map[string]interface{}{
			"AccessToken":  res.AccessToken,
			"RefreshToken": res.RefreshToken,
			"ExpiresIn":    res.ExpiresIn,
		},
	}, nil
}

// AuthResultAlias avoids importing identity.AuthResult twice under two
// names in this file's local variable declarations.
type AuthResultAlias = identity.AuthResult

func (s *IdentityService) forgotPassword(r *http.Request) (interface{}, error) {
	var req struct {
		PoolId   string `json:"PoolId"`
		Username string `json:"Username"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	code, err := s.engine.ForgotPassword(req.PoolId, req.Username)
	if err != nil {
		return nil, err
	}
	// A managed provider would deliver this out-of-band (email/SMS); the
	// emulator has no such channel, so it is returned directly for local
	// development flows to consume.
	return map[string]interface{}{"CodeDeliveryDetails": map[string]interface{}{"DeliveryMedium": "NONE"}, "ResetCode": code}, nil
}

func (s *IdentityService) confirmForgotPassword(r *http.Request) (interface{}, error) {
	var req struct {
		PoolId      string `json:"PoolId"`
		Code        string `json:"ConfirmationCode"`
		NewPassword string `json:"Password"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.ConfirmForgotPassword(req.PoolId, req.Code, req.NewPassword); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}
