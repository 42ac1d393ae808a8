package middleware

import (
	"net/http"
	"strings"

	"github.com/local-web-services/ldk/internal/identity"
	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/wire"
)

// IAMMode selects how policy denials are enforced.
type IAMMode string

const (
	IAMDisabled IAMMode = "disabled"
	IAMAudit    IAMMode = "audit"
	IAMEnforce  IAMMode = "enforce"
)

// PrincipalStore resolves an ARN to its installed principal, implemented by
// identity.Engine.
type PrincipalStore interface {
	Principal(arn string) (identity.Principal, bool)
}

// IAM evaluates the request's principal against its bound policies before
// invoking next. The principal ARN is read from X-Ldk-Principal (installed
// via the /_ldk/iam-auth bootstrap endpoint); requests carrying no header
// are treated as an anonymous principal with no policies, which only an
// Allow-by-default evaluator would accept — here that means implicit deny.
func IAM(mode IAMMode, serviceName string, store PrincipalStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode == IAMDisabled || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			arn := r.Header.Get("X-Ldk-Principal")
			operation := operationHint(r)
			resource := serviceName + ":" + operation

			decision := evaluate(store, arn, serviceName, operation, resource, r)
			if decision {
				next.ServeHTTP(w, r)
				return
			}

			if mode == IAMAudit {
				next.ServeHTTP(w, r)
				return
			}

			dialect := wire.DetectDialect(r)
			wire.WriteError(w, dialect, ldkerr.PolicyDenied("principal "+arn+" is not authorized to perform "+operation+" on "+resource))
		})
	}
}

// evaluate applies explicit-deny-wins semantics: any matching Deny
// statement denies outright; otherwise an allow requires at least one
// matching Allow statement.
func evaluate(store PrincipalStore, arn, service, operation, resource string, r *http.Request) bool {
	principal, ok := store.Principal(arn)
	if !ok {
		return false
	}
	allowed := false
	for _, policy := range principal.Policies {
		if !matchesAction(policy.Actions, service, operation) {
			continue
		}
		if !matchesResource(policy.Resources, resource) {
			continue
		}
		if !matchesCondition(policy.Condition, r) {
			continue
		}
		if strings.EqualFold(policy.Effect, "Deny") {
			return false
		}
		if strings.EqualFold(policy.Effect, "Allow") {
			allowed = true
		}
	}
	return allowed
}

func matchesAction(actions []string, service, operation string) bool {
	full := service + ":" + operation
	for _, a := range actions {
		if a == "*" || strings.EqualFold(a, full) {
			return true
		}
		if strings.HasSuffix(a, ":*") && strings.EqualFold(strings.TrimSuffix(a, "*"), service+":") {
			return true
		}
	}
	return false
}

func matchesResource(resources []string, resource string) bool {
	for _, res := range resources {
		if res == "*" || arnLike(res, resource) {
			return true
		}
	}
	return false
}

// arnLike implements the ArnLike condition operator's glob semantics: "*"
// matches any run of characters.
func arnLike(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	parts := strings.Split(pattern, "*")
	idx := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		pos := strings.Index(value[idx:], part)
		if pos < 0 {
			return false
		}
		if i == 0 && pos != 0 {
			return false
		}
		idx += pos + len(part)
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(value, last) {
		return false
	}
	return true
}

func matchesCondition(condition map[string]map[string]string, r *http.Request) bool {
	for operator, kv := range condition {
		for key, expected := range kv {
			actual := r.Header.Get(key)
			switch operator {
			case "StringEquals":
				if actual != expected {
					return false
				}
			case "ArnLike":
				if !arnLike(expected, actual) {
					return false
				}
			}
		}
	}
	return true
}
