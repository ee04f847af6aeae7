package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is an in-process OpenID Connect provider serving discovery, JWKS,
// token and revocation endpoints from an httptest server.
type Issuer struct {
	Server   *httptest.Server
	ClientID string

	keys *KeyPair

	mu           sync.Mutex
	accessTTL    time.Duration
	idTTL        time.Duration
	codes        map[string]string // authorization code -> nonce
	refresh      map[string]bool
	revoked      []string
	refreshError string
	grants       map[string]int
}

// NewIssuer starts an issuer for clientID; it is closed when the test ends.
func NewIssuer(t *testing.T, clientID string) *Issuer {
	t.Helper()

	keys, err := GenerateRSAKeyPair("test-key-1", 2048)
	if err != nil {
		t.Fatalf("could not generate issuer keys: %v", err)
	}

	i := &Issuer{
		ClientID:  clientID,
		keys:      keys,
		accessTTL: time.Hour,
		idTTL:     time.Hour,
		codes:     make(map[string]string),
		refresh:   make(map[string]bool),
		grants:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", i.discovery)
	mux.HandleFunc("GET /keys", i.jwks)
	mux.HandleFunc("POST /token", i.token)
	mux.HandleFunc("POST /revoke", i.revoke)
	i.Server = httptest.NewServer(mux)
	t.Cleanup(i.Server.Close)
	return i
}

// URL is the issuer identifier
func (i *Issuer) URL() string {
	return i.Server.URL
}

// Authorize plays the part of the user agent: it accepts an authorization
// URL, remembers the nonce and returns a code together with the echoed state.
func (i *Issuer) Authorize(authURL string) (code, state string, err error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	if q.Get("client_id") != i.ClientID {
		return "", "", fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("code_challenge") == "" {
		return "", "", fmt.Errorf("missing PKCE challenge")
	}

	code = uuid.NewString()
	i.mu.Lock()
	i.codes[code] = q.Get("nonce")
	i.mu.Unlock()
	return code, q.Get("state"), nil
}

// SetAccessTTL changes the lifetime of access tokens issued from now on
func (i *Issuer) SetAccessTTL(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.accessTTL = d
}

// FailRefresh makes every subsequent refresh_token grant fail with the OAuth2 error code
func (i *Issuer) FailRefresh(code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.refreshError = code
}

// Revoked returns the tokens posted to the revocation endpoint
func (i *Issuer) Revoked() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.revoked...)
}

// Grants returns how many times a grant type was served
func (i *Issuer) Grants(grantType string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.grants[grantType]
}

// Sign signs arbitrary claims with the issuer key
func (i *Issuer) Sign(claims jwt.MapClaims) (string, error) {
	return i.keys.Sign(claims)
}

func (i *Issuer) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                i.URL(),
		"authorization_endpoint":                i.URL() + "/authorize",
		"token_endpoint":                        i.URL() + "/token",
		"jwks_uri":                              i.URL() + "/keys",
		"revocation_endpoint":                   i.URL() + "/revoke",
		"id_token_signing_alg_values_supported": []string{RS256},
	})
}

func (i *Issuer) jwks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, i.keys.ToJWKS())
}

func (i *Issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request", err.Error())
		return
	}

	grantType := r.PostForm.Get("grant_type")
	i.mu.Lock()
	i.grants[grantType]++
	i.mu.Unlock()

	var nonce string
	switch grantType {
	case "authorization_code":
		code := r.PostForm.Get("code")
		if r.PostForm.Get("code_verifier") == "" {
			oauthError(w, "invalid_grant", "missing code_verifier")
			return
		}
		i.mu.Lock()
		n, ok := i.codes[code]
		delete(i.codes, code)
		i.mu.Unlock()
		if !ok {
			oauthError(w, "invalid_grant", "unknown code")
			return
		}
		nonce = n
	case "refresh_token":
		i.mu.Lock()
		failure := i.refreshError
		known := i.refresh[r.PostForm.Get("refresh_token")]
		i.mu.Unlock()
		if failure != "" {
			oauthError(w, failure, "refresh rejected")
			return
		}
		if !known {
			oauthError(w, "invalid_grant", "unknown refresh token")
			return
		}
	default:
		oauthError(w, "unsupported_grant_type", grantType)
		return
	}

	resp, err := i.issue(nonce)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (i *Issuer) issue(nonce string) (map[string]any, error) {
	i.mu.Lock()
	accessTTL, idTTL := i.accessTTL, i.idTTL
	i.mu.Unlock()

	now := time.Now()
	access, err := i.keys.Sign(jwt.MapClaims{
		"iss": i.URL(),
		"sub": "user-1",
		"aud": i.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(accessTTL).Unix(),
		"jti": uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	idClaims := jwt.MapClaims{
		"iss":   i.URL(),
		"sub":   "user-1",
		"aud":   i.ClientID,
		"email": "john.doe@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(idTTL).Unix(),
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	idToken, err := i.keys.Sign(idClaims)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	i.mu.Lock()
	i.refresh[refresh] = true
	i.mu.Unlock()

	return map[string]any{
		"access_token":  access,
		"id_token":      idToken,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(accessTTL.Seconds()),
	}, nil
}

func (i *Issuer) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request", err.Error())
		return
	}
	tok := r.PostForm.Get("token")
	i.mu.Lock()
	i.revoked = append(i.revoked, tok)
	delete(i.refresh, tok)
	i.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func oauthError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
