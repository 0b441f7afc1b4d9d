package web

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"marksync/internal/application/service"
	"marksync/internal/domain/model"
)

// IdentityResolver reports the authenticated user id for a request, if
// any. Authentication itself is an external concern; the default
// resolver trusts the X-User-ID header set by the upstream auth layer.
type IdentityResolver func(r *http.Request) (string, bool)

func HeaderIdentityResolver(header string) IdentityResolver {
	return func(r *http.Request) (string, bool) {
		id := r.Header.Get(header)
		return id, id != ""
	}
}

type denyBody struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Limit      int    `json:"limit"`
	Window     int    `json:"window"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimit admits or rejects every request through gate, keyed by
// authenticated user when available and network origin otherwise.
func RateLimit(gate *service.AdmissionGate, resolve IdentityResolver, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := requestIdentity(r, resolve)
			decision := gate.Evaluate(r.Context(), identity)
			setRateHeaders(w, decision)

			if !decision.Allowed {
				writeDeny(w, gate, decision, message, "RATE_LIMIT_EXCEEDED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPRateLimit throttles unauthenticated traffic only, keyed by network
// origin. Authenticated requests pass straight through to the
// per-identity gate behind it.
func IPRateLimit(gate *service.AdmissionGate, resolve IdentityResolver, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := resolve(r); ok {
				next.ServeHTTP(w, r)
				return
			}

			decision := gate.Evaluate(r.Context(), ipIdentity(r))
			setRateHeaders(w, decision)

			if !decision.Allowed {
				writeDeny(w, gate, decision, message, "IP_RATE_LIMIT_EXCEEDED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestIdentity(r *http.Request, resolve IdentityResolver) string {
	if resolve != nil {
		if user, ok := resolve(r); ok {
			return "user:" + user
		}
	}
	return ipIdentity(r)
}

func ipIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr != "" {
			return "ip:" + r.RemoteAddr
		}
		return "ip:unknown"
	}
	return "ip:" + host
}

func setRateHeaders(w http.ResponseWriter, d model.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
}

func writeDeny(w http.ResponseWriter, gate *service.AdmissionGate, d model.Decision, message, code string) {
	retryAfter := int(d.RetryAfter(time.Now()) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(denyBody{
		Success:    false,
		Message:    message,
		Error:      code,
		Limit:      gate.Limit(),
		Window:     int(gate.Window() / time.Second),
		RetryAfter: retryAfter,
	})
}
