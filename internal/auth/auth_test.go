package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func basicAuthRequest(user, password string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if user != "" || password != "" {
		r.SetBasicAuth(user, password)
	}
	return r
}

func TestGateDisabledWhenUserEmpty(t *testing.T) {
	g := NewGate("", "")
	assert.False(t, g.Enabled())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	principal, ok := g.Authenticate(r)
	assert.True(t, ok)
	assert.Equal(t, "", principal)
}

func TestGateAcceptsCorrectCredentials(t *testing.T) {
	g := NewGate("u", "p")
	principal, ok := g.Authenticate(basicAuthRequest("u", "p"))
	assert.True(t, ok)
	assert.Equal(t, "u", principal)
}

func TestGateRejectsWrongPassword(t *testing.T) {
	g := NewGate("u", "p")
	_, ok := g.Authenticate(basicAuthRequest("u", "wrong"))
	assert.False(t, ok)
}

func TestGateRejectsMissingHeader(t *testing.T) {
	g := NewGate("u", "p")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := g.Authenticate(r)
	assert.False(t, ok)
}

func TestGateRejectsMalformedHeader(t *testing.T) {
	g := NewGate("u", "p")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+base64.StdEncoding.EncodeToString([]byte("u:p")))
	_, ok := g.Authenticate(r)
	assert.False(t, ok)
}

func TestChallengeContainsRealm(t *testing.T) {
	g := NewGate("u", "p")
	assert.Contains(t, g.Challenge(), Realm)
	assert.Contains(t, g.Challenge(), "Basic")
}
