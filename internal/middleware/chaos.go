package middleware

import (
	"hash/fnv"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/wire"
)

// ChaosConfig configures one service's fault-injection probabilities. Each
// is independent and checked in the order: drop, timeout, error, latency.
type ChaosConfig struct {
	LatencyProbability float64
	LatencyMin         time.Duration
	LatencyMax         time.Duration
	ErrorProbability   float64
	DropProbability    float64
	TimeoutProbability float64
	TimeoutAfter       time.Duration
}

// Chaos injects configured faults using a PRNG seeded deterministically per
// service name, so repeated runs against the same config reproduce the same
// fault sequence — the teacher's services favor reproducible test fixtures
// over true randomness, and chaos injection here follows the same instinct.
func Chaos(serviceName string, cfg ChaosConfig, decisionLog zerolog.Logger) func(http.Handler) http.Handler {
	seed := fnvSeed(serviceName)
	rng := rand.New(rand.NewSource(seed))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.DropProbability > 0 && rng.Float64() < cfg.DropProbability {
				decisionLog.Info().Str("service", serviceName).Str("fault", "drop").Str("path", r.URL.Path).Send()
				hijackOrClose(w)
				return
			}
			if cfg.TimeoutProbability > 0 && rng.Float64() < cfg.TimeoutProbability {
				decisionLog.Info().Str("service", serviceName).Str("fault", "timeout").Str("path", r.URL.Path).Send()
				wait := cfg.TimeoutAfter
				if wait <= 0 {
					wait = 30 * time.Second
				}
				select {
				case <-r.Context().Done():
				case <-time.After(wait):
				}
				return
			}
			if cfg.ErrorProbability > 0 && rng.Float64() < cfg.ErrorProbability {
				decisionLog.Info().Str("service", serviceName).Str("fault", "error").Str("path", r.URL.Path).Send()
				dialect := wire.DetectDialect(r)
				wire.WriteError(w, dialect, ldkerr.New(ldkerr.KindChaos, "ChaosInjectedException", "synthetic failure injected by chaos configuration"))
				return
			}
			if cfg.LatencyProbability > 0 && rng.Float64() < cfg.LatencyProbability {
				lo, hi := cfg.LatencyMin, cfg.LatencyMax
				if hi <= lo {
					hi = lo + time.Millisecond
				}
				delay := lo + time.Duration(rng.Int63n(int64(hi-lo)))
				decisionLog.Info().Str("service", serviceName).Str("fault", "latency").Dur("delay", delay).Send()
				select {
				case <-r.Context().Done():
					return
				case <-time.After(delay):
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fnvSeed(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

// hijackOrClose simulates a dropped connection: it hijacks the underlying
// TCP connection and closes it without writing a response, when the
// transport supports hijacking; otherwise it falls back to an abrupt empty
// response.
func hijackOrClose(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	_ = conn.Close()
}
