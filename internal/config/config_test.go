package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerURL(t *testing.T) {
	tt := []struct {
		name   string
		server ServerConfig
		want   string
	}{
		{"Default http port", ServerConfig{Scheme: "http", Host: "localhost", Port: "80"}, "http://localhost"},
		{"Custom http port", ServerConfig{Scheme: "http", Host: "localhost", Port: "8000"}, "http://localhost:8000"},
		{"Default https port", ServerConfig{Scheme: "https", Host: "tasks.example.com", Port: "443"}, "https://tasks.example.com"},
		{"Custom https port", ServerConfig{Scheme: "https", Host: "tasks.example.com", Port: "8443"}, "https://tasks.example.com:8443"},
		{"No port", ServerConfig{Scheme: "http", Host: "localhost"}, "http://localhost"},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, test.server.URL())
		})
	}
}

func TestOAuthEnabled(t *testing.T) {
	assert.False(t, (&OAuthConfig{}).Enabled())
	assert.True(t, (&OAuthConfig{ClientID: "client"}).Enabled())
}
