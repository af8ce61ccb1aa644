// Package auth implements the inbound HTTP Basic-auth gate for the
// WebDAV front-end (spec §4.D, §6, §7).
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Realm is sent in WWW-Authenticate challenges, per spec §4.D.
const Realm = "quarkdrive-webdav"

// Gate validates incoming Basic-auth credentials against a configured
// user/password pair. A Gate with an empty user is disabled: every
// request passes through unauthenticated (spec §6, "auth_user,
// auth_password: If both set, require Basic auth").
type Gate struct {
	user     string
	password string
}

// NewGate creates a Gate. If user is empty, the gate is disabled.
func NewGate(user, password string) *Gate {
	return &Gate{user: user, password: password}
}

// Enabled reports whether Basic auth is required.
func (g *Gate) Enabled() bool {
	return g.user != ""
}

// Authenticate checks the Authorization header of r. It returns the
// authenticated principal name and true on success. On failure it
// returns ("", false); the caller is expected to respond 401 with
// Challenge() as the WWW-Authenticate header value.
func (g *Gate) Authenticate(r *http.Request) (string, bool) {
	if !g.Enabled() {
		return "", true
	}

	user, password, ok := parseBasicAuth(r.Header.Get("Authorization"))
	if !ok {
		return "", false
	}

	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(g.user)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	if !userMatch || !passMatch {
		return "", false
	}

	return user, true
}

// Challenge returns the value for the WWW-Authenticate response header.
func (g *Gate) Challenge() string {
	return fmt.Sprintf(`Basic realm=%q`, Realm)
}

// parseBasicAuth decodes the value of an Authorization header of the
// form "Basic <base64(user:pass)>".
func parseBasicAuth(header string) (user, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	return parts[0], parts[1], true
}
