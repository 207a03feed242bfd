package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/libraryhub-backend/pkg/redis"
)

// maxRateLimitBody caps how much of an auth body is buffered to find the
// matric number.
const maxRateLimitBody = 64 << 10

// AuthRateLimitPolicy throttles one auth endpoint per client IP and per
// matric number. A zero limit turns that dimension off.
type AuthRateLimitPolicy struct {
	name        string
	window      time.Duration
	ipLimit     int64
	matricLimit int64
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, matricLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: int64(ipLimit), matricLimit: int64(matricLimit)}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.matricLimit > 0)
}

type limitCheck struct {
	kind  string
	value string
	limit int64
}

// AuthRateLimit answers 429 with Retry-After once either counter is over its
// limit. Matric numbers are hashed before they become Redis keys.
func AuthRateLimit(policy AuthRateLimitPolicy, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var checks []limitCheck
			if ip := clientIP(r); ip != "" && policy.ipLimit > 0 {
				checks = append(checks, limitCheck{kind: "ip", value: ip, limit: policy.ipLimit})
			}
			if policy.matricLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if matric := strings.ToUpper(strings.TrimSpace(matricFromBody(r.Header.Get("Content-Type"), body))); matric != "" {
					sum := sha256.Sum256([]byte(matric))
					checks = append(checks, limitCheck{kind: "matric", value: hex.EncodeToString(sum[:]), limit: policy.matricLimit})
				}
			}

			for _, check := range checks {
				win, err := limiter.FixedWindowAllow(ctx, policy.name+":"+check.kind+":"+check.value, check.limit, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if win.Allowed {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":    policy.name,
						"dimension": check.kind,
						"attempts":  win.Count,
						"limit":     check.limit,
					}), "auth.rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(win.ResetIn.Seconds()))))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// matricFromBody reads matric_no from a JSON body, or matric_no/username
// from a form-encoded login.
func matricFromBody(contentType string, payload []byte) string {
	if strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(payload))
		if err != nil {
			return ""
		}
		if v := values.Get("matric_no"); v != "" {
			return v
		}
		return values.Get("username")
	}
	var body struct {
		MatricNo string `json:"matric_no"`
	}
	_ = json.Unmarshal(payload, &body)
	return body.MatricNo
}
