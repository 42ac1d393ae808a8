package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/local-web-services/ldk/internal/logging"
)

// ServiceConfig bundles one service's middleware settings, consumed by the
// orchestrator when it wires each provider's HTTP handler.
type ServiceConfig struct {
	Name       string
	Log        *logging.Logger
	Ring       *logging.RingBuffer
	IAMMode    IAMMode
	Principals PrincipalStore
	Chaos      ChaosConfig
	ChaosLog   zerolog.Logger
	VHostBases []string // non-empty only for the object service
}

// Chain composes the fixed-order middleware stack specified for every
// service, inside-out: request logging sits closest to the handler, then
// IAM evaluation, then chaos injection, then (object service only) the
// virtual-hosted-style rewrite as the outermost layer.
func Chain(cfg ServiceConfig, next http.Handler) http.Handler {
	h := Logging(cfg.Name, cfg.Log, cfg.Ring)(next)
	h = IAM(cfg.IAMMode, cfg.Name, cfg.Principals)(h)
	h = Chaos(cfg.Name, cfg.Chaos, cfg.ChaosLog)(h)
	if len(cfg.VHostBases) > 0 {
		h = VHostRewrite(cfg.VHostBases)(h)
	}
	return h
}
