package server

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "wildcard allows anything", allowed: []string{"*"}, origin: "http://evil.example", want: true},
		{name: "wildcard allows missing origin", allowed: []string{"*"}, origin: "", want: true},
		{name: "exact match", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3000", want: true},
		{name: "case insensitive", allowed: []string{"HTTP://LocalHost:3000"}, origin: "http://localhost:3000", want: true},
		{name: "path ignored", allowed: []string{"http://localhost:3000/app"}, origin: "http://localhost:3000", want: true},
		{name: "other port", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:4000", want: false},
		{name: "missing origin", allowed: []string{"http://localhost:3000"}, origin: "", want: false},
		{name: "invalid entries skipped", allowed: []string{"not a url", " "}, origin: "http://localhost:3000", want: false},
		{name: "nothing configured", allowed: nil, origin: "http://localhost:3000", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, log)
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			require.Equal(t, tt.want, policy.check(r))
		})
	}
}
