package provider

import (
	"net/http"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

type payloadContextKey struct{}

type authTransport struct {
	token     string
	transport http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCopy := req.Clone(req.Context())
	if t.token != "" {
		reqCopy.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.transport.RoundTrip(reqCopy)
}

// WithAuthToken sends token as a bearer credential. An empty token sends no
// Authorization header and lets the provider reject the call.
func WithAuthToken(token string) HttpOpts {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		return &authTransport{token: token, transport: rt}
	})
}

type logTransport struct {
	transport http.RoundTripper
}

// RoundTrip logs through the logger carried by the request context.
// Headers are left out so the credential never reaches the log.
func (t *logTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	}
	if payload, ok := ctx.Value(payloadContextKey{}).([]byte); ok {
		fields = append(fields, zap.Int("payload_bytes", len(payload)))
	}

	start := time.Now()
	resp, err := t.transport.RoundTrip(req)
	fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		ctxzap.Debug(ctx, "HTTP outbound request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	ctxzap.Debug(ctx, "HTTP outbound request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}

func WithRequestLogging() HttpOpts {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		return &logTransport{transport: rt}
	})
}
