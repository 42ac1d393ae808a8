package management

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/local-web-services/ldk/internal/compute"
	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/wire"
)

// restResource is one REST-API-dialect resource/method/integration triple:
// a path template with embedded {param} segments, a method, and a proxy
// integration target function.
type restResource struct {
	ID          string
	Path        string
	Method      string
	Integration string // target function name
}

// httpRoute is one HTTP-API-lite route: "METHOD /path" keyed directly to a
// target function, with no separate resource/method/integration modeling.
type httpRoute struct {
	RouteKey string
	Target   string
}

// Gateway implements component N's function/API-gateway management
// protocol: both dialects (HTTP-API-lite routes, and REST-API
// resources/methods/integrations) live behind this one port-8 provider,
// matched in that order (routes first), selected per-resource by which
// table an operator populated
// rather than by a process-wide mode.
type Gateway struct {
	compute *compute.Engine

	mu        sync.RWMutex
	resources map[string]*restResource
	routes    map[string]*httpRoute

	router *chi.Mux
}

// NewGateway builds a gateway control plane. The control-plane operations
// (create/list resource or route) are reached through wire.OperationTable
// via adminTable below; Gateway itself also exposes ServeHTTP for the proxy
// surface matched requests are dispatched through.
func NewGateway(computeEngine *compute.Engine) *Gateway {
	g := &Gateway{
		compute:   computeEngine,
		resources: make(map[string]*restResource),
		routes:    make(map[string]*httpRoute),
	}
	r := chi.NewRouter()
	r.NotFound(g.proxy)
	r.MethodNotAllowed(g.proxy)
	r.HandleFunc("/*", g.proxy)
	g.router = r
	return g
}

// ServeHTTP serves both dialects this one provider hosts: JSON-targeted
// requests (X-Amz-Target set) are control-plane operations against the
// resource/route table; everything else is a proxied invocation matched
// against that table.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Amz-Target") != "" {
		wire.Dispatch(w, r, g.adminTable())
		return
	}
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) adminTable() wire.OperationTable {
	return wire.OperationTable{
		"CreateResource": g.opCreateResource,
		"DeleteResource": g.opDeleteResource,
		"ListResources":  g.opListResources,
		"CreateRoute":    g.opCreateRoute,
		"DeleteRoute":    g.opDeleteRoute,
		"ListRoutes":     g.opListRoutes,
	}
}

func (g *Gateway) opCreateResource(r *http.Request) (interface{}, error) {
	var req struct{ ID, Path, Method, Integration string }
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	g.CreateResource(req.ID, req.Path, req.Method, req.Integration)
	return map[string]interface{}{"id": req.ID}, nil
}

func (g *Gateway) opDeleteResource(r *http.Request) (interface{}, error) {
	var req struct{ ID string }
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	g.DeleteResource(req.ID)
	return map[string]interface{}{}, nil
}

func (g *Gateway) opListResources(r *http.Request) (interface{}, error) {
	return map[string]interface{}{"resources": g.ListResources()}, nil
}

func (g *Gateway) opCreateRoute(r *http.Request) (interface{}, error) {
	var req struct{ RouteKey, Target string }
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	g.CreateRoute(req.RouteKey, req.Target)
	return map[string]interface{}{"route_key": req.RouteKey}, nil
}

func (g *Gateway) opDeleteRoute(r *http.Request) (interface{}, error) {
	var req struct{ RouteKey string }
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	g.DeleteRoute(req.RouteKey)
	return map[string]interface{}{}, nil
}

func (g *Gateway) opListRoutes(r *http.Request) (interface{}, error) {
	return map[string]interface{}{"routes": g.ListRoutes()}, nil
}

// CreateResource registers a REST-dialect resource/method/integration.
func (g *Gateway) CreateResource(id, path, method, integration string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources[id] = &restResource{ID: id, Path: path, Method: strings.ToUpper(method), Integration: integration}
}

func (g *Gateway) DeleteResource(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.resources, id)
}

func (g *Gateway) ListResources() []restResource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]restResource, 0, len(g.resources))
	for _, r := range g.resources {
		out = append(out, *r)
	}
	return out
}

// CreateRoute registers an HTTP-API-lite route, keyed "METHOD /path".
func (g *Gateway) CreateRoute(routeKey, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes[routeKey] = &httpRoute{RouteKey: routeKey, Target: target}
}

func (g *Gateway) DeleteRoute(routeKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.routes, routeKey)
}

func (g *Gateway) ListRoutes() []httpRoute {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]httpRoute, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, *r)
	}
	return out
}

// proxy matches the incoming request against whichever dialect's table is
// populated and forwards to the integration function, wrapping the request
// the way the corresponding managed gateway does (a proxy-integration event
// envelope), then relays the function's declared status/body back out.
func (g *Gateway) proxy(w http.ResponseWriter, r *http.Request) {
	target, pathParams := g.match(r)
	if target == "" {
		writeJSONError(w, ldkerr.NotFound("NotFoundException", "no matching resource or route"))
		return
	}

	body, _ := io.ReadAll(r.Body)
	headers := map[string]string{}
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	event := map[string]interface{}{
		"httpMethod":            r.Method,
		"path":                  r.URL.Path,
		"headers":               headers,
		"queryStringParameters": flattenQuery(r),
		"pathParameters":        pathParams,
		"body":                  string(body),
		"isBase64Encoded":       false,
	}

	result, err := g.compute.Invoke(r.Context(), target, event)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeProxyResponse(w, result)
}

func (g *Gateway) match(r *http.Request) (target string, pathParams map[string]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if route, ok := g.routes[r.Method+" "+r.URL.Path]; ok {
		return route.Target, nil
	}
	for _, res := range g.resources {
		if res.Method != r.Method {
			continue
		}
		if params, ok := matchPathTemplate(res.Path, r.URL.Path); ok {
			return res.Integration, params
		}
	}
	return "", nil
}

// matchPathTemplate matches a "{param}"-templated resource path against a
// concrete request path, the same segment-by-segment scheme the REST-API
// dialect's resource tree uses.
func matchPathTemplate(template, actual string) (map[string]string, bool) {
	tParts := strings.Split(strings.Trim(template, "/"), "/")
	aParts := strings.Split(strings.Trim(actual, "/"), "/")
	if len(tParts) != len(aParts) {
		return nil, false
	}
	params := map[string]string{}
	for i, tp := range tParts {
		if strings.HasPrefix(tp, "{") && strings.HasSuffix(tp, "}") {
			params[strings.Trim(tp, "{}")] = aParts[i]
			continue
		}
		if tp != aParts[i] {
			return nil, false
		}
	}
	return params, true
}

func flattenQuery(r *http.Request) map[string]string {
	out := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// writeProxyResponse relays a Lambda-proxy-style {statusCode, headers,
// body} result; a result that doesn't match the shape is rendered as a
// plain 200 JSON body instead of failing the request.
func writeProxyResponse(w http.ResponseWriter, result interface{}) {
	m, ok := result.(map[string]interface{})
	if !ok {
		writeJSON(w, http.StatusOK, result)
		return
	}
	status := http.StatusOK
	if sc, ok := m["statusCode"].(float64); ok {
		status = int(sc)
	}
	if hdrs, ok := m["headers"].(map[string]interface{}); ok {
		for k, v := range hdrs {
			if s, ok := v.(string); ok {
				w.Header().Set(k, s)
			}
		}
	}
	w.WriteHeader(status)
	switch body := m["body"].(type) {
	case string:
		_, _ = w.Write([]byte(body))
	default:
		_ = json.NewEncoder(w).Encode(body)
	}
}
