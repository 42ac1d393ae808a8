// Package management implements component N: the cross-service admin
// surface every LDK process exposes on its baseline port under /_ldk/,
// built on chi in the same style as the teacher's HTTP applications.
package management

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/local-web-services/ldk/internal/compute"
	"github.com/local-web-services/ldk/internal/identity"
	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/logging"
	"github.com/local-web-services/ldk/internal/orchestrator"
)

// ResourceLister reports service-keyed resource metadata for
// /_ldk/resources; the orchestrator's owner (cmd/ldk) supplies this since
// it is the only place that knows every engine's live resource set.
type ResourceLister func() map[string]interface{}

// Surface wires every /_ldk/ admin endpoint.
type Surface struct {
	registry  *orchestrator.Registry
	ring      *logging.RingBuffer
	compute   *compute.Engine
	identity  *identity.Engine
	resources ResourceLister
	resetters map[string]func() error
	ports     map[string]int // service name -> colocated port; stored only

	router *chi.Mux
}

// New builds the management surface. resetters maps a service name to a
// function clearing that service's ephemeral state, called by
// /_ldk/reset; ports maps a service name to its dedicated port and is
// stored only: /_ldk/service-proxy does not consult it and forwards to the
// target URL carried in the request instead.
func New(registry *orchestrator.Registry, ring *logging.RingBuffer, computeEngine *compute.Engine, identityEngine *identity.Engine, resources ResourceLister, resetters map[string]func() error, ports map[string]int) *Surface {
	s := &Surface{
		registry:  registry,
		ring:      ring,
		compute:   computeEngine,
		identity:  identityEngine,
		resources: resources,
		resetters: resetters,
		ports:     ports,
	}
	r := chi.NewRouter()
	r.Get("/_ldk/status", s.status)
	r.Get("/_ldk/resources", s.listResources)
	r.Post("/_ldk/invoke", s.invoke)
	r.Post("/_ldk/reset", s.reset)
	r.Post("/_ldk/service-proxy", s.serviceProxy)
	r.Get("/_ldk/ws/logs", s.wsLogs)
	r.Post("/_ldk/iam-auth", s.iamAuth)
	r.Handle("/_ldk/metrics", Handler())
	s.router = r
	return s
}

func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Surface) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.registry.HealthSnapshot(),
	})
}

func (s *Surface) listResources(w http.ResponseWriter, r *http.Request) {
	var out map[string]interface{}
	if s.resources != nil {
		out = s.resources()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Surface) invoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FunctionName string      `json:"function_name"`
		Event        interface{} `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, ldkerr.Client("InvalidRequest", "malformed invoke request"))
		return
	}
	if s.compute == nil {
		writeJSONError(w, ldkerr.NotFound("NoComputeProvider", "no function compute provider is configured"))
		return
	}
	result, err := s.compute.Invoke(r.Context(), req.FunctionName, req.Event)
	if err != nil {
		ObserveInvocation(req.FunctionName, "error")
		writeJSONError(w, err)
		return
	}
	ObserveInvocation(req.FunctionName, "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Surface) reset(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, fn := range s.resetters {
		if fn == nil {
			continue
		}
		if err := fn(); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true})
}

// serviceProxy forwards one request to a colocated service's port, used by
// the dashboard to avoid CORS hops across the many per-service ports.
func (s *Surface) serviceProxy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers,omitempty"`
		Body    string            `json:"body,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, ldkerr.Client("InvalidRequest", "malformed service-proxy request"))
		return
	}
	target, err := url.Parse(req.URL)
	if err != nil {
		writeJSONError(w, ldkerr.Client("InvalidRequest", "malformed proxy target url"))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(&url.URL{Scheme: target.Scheme, Host: target.Host})
	proxyReq := r.Clone(r.Context())
	proxyReq.Method = req.Method
	proxyReq.URL = target
	proxyReq.Host = target.Host
	for k, v := range req.Headers {
		proxyReq.Header.Set(k, v)
	}
	proxy.ServeHTTP(w, proxyReq)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsLogs streams the ring buffer's current snapshot followed by live
// appended records, matching the teacher's WSHub register/unregister
// pattern but scoped to one connection at a time (no broadcast fan-out
// needed: RingBuffer.Subscribe already multiplexes to many readers).
func (s *Surface) wsLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, rec := range s.ring.Snapshot() {
		if err := conn.WriteJSON(rec); err != nil {
			return
		}
	}

	ch, unsubscribe := s.ring.Subscribe(64)
	defer unsubscribe()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Surface) iamAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ARN      string `json:"arn"`
		Policies []struct {
			Effect    string                       `json:"effect"`
			Actions   []string                     `json:"actions"`
			Resources []string                     `json:"resources"`
			Condition map[string]map[string]string `json:"condition,omitempty"`
		} `json:"policies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, ldkerr.Client("InvalidRequest", "malformed iam-auth request"))
		return
	}
	if s.identity == nil {
		writeJSONError(w, ldkerr.NotFound("NoIdentityProvider", "no identity provider is configured"))
		return
	}
	policies := make([]identity.Policy, len(req.Policies))
	for i, p := range req.Policies {
		policies[i] = identity.Policy{Effect: p.Effect, Actions: p.Actions, Resources: p.Resources, Condition: p.Condition}
	}
	s.identity.InstallPrincipal(identity.Principal{ARN: req.ARN, Policies: policies})
	writeJSON(w, http.StatusOK, map[string]interface{}{"installed": req.ARN})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, err error) {
	e, ok := ldkerr.As(err)
	if !ok {
		e = ldkerr.New(ldkerr.KindInternal, "InternalFailure", err.Error())
	}
	status := http.StatusInternalServerError
	switch e.Kind {
	case ldkerr.KindClient:
		status = http.StatusBadRequest
	case ldkerr.KindNotFound:
		status = http.StatusNotFound
	case ldkerr.KindPolicyDenial:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]interface{}{"__type": e.Code, "message": e.Message})
}
