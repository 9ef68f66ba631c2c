// Package auth assembles the Authorization header for resolver requests.
// Providers never fail the request: when credentials cannot be produced the
// request goes out unauthenticated and the condition is logged.
package auth

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
)

// HeaderProvider applies an Authorization header to an outbound request.
type HeaderProvider interface {
	Apply(req *http.Request) error
}

// None returns a provider that sends no Authorization header.
func None() HeaderProvider { return noneProvider{} }

type noneProvider struct{}

func (noneProvider) Apply(*http.Request) error { return nil }

// JWT returns a provider resolving a bearer token with the precedence
// explicit token > environment variable > token file. The resolved token is
// cached for the provider's lifetime.
func JWT(token, envVar, file string) HeaderProvider {
	return &jwtProvider{token: token, envVar: envVar, file: file}
}

type jwtProvider struct {
	token  string
	envVar string
	file   string

	once     sync.Once
	resolved string
}

func (p *jwtProvider) Apply(req *http.Request) error {
	p.once.Do(p.resolve)
	if p.resolved == "" {
		slog.Debug("no JWT token available; sending unauthenticated request")
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+p.resolved)
	return nil
}

func (p *jwtProvider) resolve() {
	if p.token != "" {
		p.resolved = p.token
		return
	}
	if p.envVar != "" {
		if v := strings.TrimSpace(os.Getenv(p.envVar)); v != "" {
			p.resolved = v
			return
		}
	}
	if p.file != "" {
		b, err := os.ReadFile(p.file)
		if err != nil {
			slog.Warn("failed to read JWT token file",
				slog.String("file", p.file),
				slog.Any("error", err))
			return
		}
		p.resolved = strings.TrimSpace(string(b))
	}
}
