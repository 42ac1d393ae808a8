package services

import (
	"net/http"
	"strings"

	"github.com/local-web-services/ldk/internal/identity"
	"github.com/local-web-services/ldk/internal/wire"
)

// IAMService is the port +10 IAM stub spec.md §6 names: a small read-only
// surface over the principals installed through /_ldk/iam-auth, plus a
// SimulatePrincipalPolicy operation that evaluates a principal's policies
// with explicit deny winning over allow. Its matching is simpler than the
// enforce-mode middleware's: an action or resource matches only "*" or the
// exact string, "service:*" action wildcards and resource globs are not
// expanded, and policy Condition blocks are not evaluated.
type IAMService struct {
	engine *identity.Engine
	table  wire.OperationTable
}

func NewIAMService(engine *identity.Engine) *IAMService {
	s := &IAMService{engine: engine}
	s.table = wire.OperationTable{
		"GetUser":                  s.getUser,
		"ListAttachedUserPolicies": s.listPolicies,
		"SimulatePrincipalPolicy":  s.simulate,
	}
	return s
}

func (s *IAMService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func callerARN(r *http.Request, fallback string) string {
	if arn := r.Header.Get("X-Ldk-Principal"); arn != "" {
		return arn
	}
	return fallback
}

func (s *IAMService) getUser(r *http.Request) (interface{}, error) {
	var req struct {
		UserArn string `json:"UserArn,omitempty"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	arn := callerARN(r, req.UserArn)
	p, ok := s.engine.Principal(arn)
	if !ok {
		return map[string]interface{}{"User": map[string]interface{}{"Arn": arn, "UserName": userNameFromARN(arn)}}, nil
	}
	return map[string]interface{}{"User": map[string]interface{}{"Arn": p.ARN, "UserName": userNameFromARN(p.ARN)}}, nil
}

func (s *IAMService) listPolicies(r *http.Request) (interface{}, error) {
	var req struct {
		UserArn string `json:"UserArn,omitempty"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	arn := callerARN(r, req.UserArn)
	p, ok := s.engine.Principal(arn)
	if !ok {
		return map[string]interface{}{"PolicyNames": []string{}}, nil
	}
	names := make([]string, len(p.Policies))
	for i, pol := range p.Policies {
		names[i] = pol.Effect + ":" + strings.Join(pol.Actions, ",")
	}
	return map[string]interface{}{"PolicyNames": names}, nil
}

func (s *IAMService) simulate(r *http.Request) (interface{}, error) {
	var req struct {
		PolicySourceArn string `json:"PolicySourceArn"`
		ActionName      string `json:"ActionName"`
		ResourceArn     string `json:"ResourceArn,omitempty"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	p, ok := s.engine.Principal(req.PolicySourceArn)
	decision := "implicitDeny"
	if ok {
		allowed := false
		for _, pol := range p.Policies {
			if !matchesAny(pol.Actions, req.ActionName) {
				continue
			}
			if !matchesAny(pol.Resources, req.ResourceArn) {
				continue
			}
			if pol.Effect == "Deny" {
				decision = "explicitDeny"
				allowed = false
				break
			}
			allowed = true
		}
		if allowed {
			decision = "allowed"
		}
	}
	return map[string]interface{}{
		"EvaluationResults": []map[string]interface{}{{
			"EvalActionName":   req.ActionName,
			"EvalResourceName": req.ResourceArn,
			"EvalDecision":     decision,
		}},
	}, nil
}

func matchesAny(patterns []string, candidate string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if p == "*" || p == candidate {
			return true
		}
	}
	return false
}

func userNameFromARN(arn string) string {
	if idx := strings.LastIndex(arn, "/"); idx >= 0 {
		return arn[idx+1:]
	}
	return arn
}
