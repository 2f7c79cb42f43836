package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"lendledger/crypto"
	"lendledger/native/lending"
)

func TestAuthenticateAcceptsSignedSubject(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "lendingd", Audience: "api"}, nil)
	require.NoError(t, err)

	tok, err := SignToken(testSecret, "lendingd", "api", " alice ", time.Minute, time.Now())
	require.NoError(t, err)
	caller, err := auth.Authenticate(tok)
	require.NoError(t, err)
	require.Equal(t, lending.AccountID("alice"), caller)
}

func TestAuthenticateRejects(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "lendingd", ClockSkew: time.Second}, nil)
	require.NoError(t, err)
	now := time.Now()

	wrongSecret, err := SignToken("ffffffffffffffffffffffffffffffff", "lendingd", "", "alice", time.Minute, now)
	require.NoError(t, err)
	expired, err := SignToken(testSecret, "lendingd", "", "alice", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongIssuer, err := SignToken(testSecret, "other", "", "alice", time.Minute, now)
	require.NoError(t, err)
	noSubject, err := SignToken(testSecret, "lendingd", "", "", time.Minute, now)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice", Issuer: "lendingd"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "lendingd",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"wrong secret": wrongSecret,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"alg none":     unsigned,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(tok)
			require.Error(t, err)
		})
	}
}

func TestAuthenticateBech32Subjects(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Bech32Accounts: true}, nil)
	require.NoError(t, err)

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address().String()

	tok, err := SignToken(testSecret, "", "", addr, time.Minute, time.Now())
	require.NoError(t, err)
	caller, err := auth.Authenticate(tok)
	require.NoError(t, err)
	require.Equal(t, lending.AccountID(addr), caller)

	tok, err = SignToken(testSecret, "", "", "alice", time.Minute, time.Now())
	require.NoError(t, err)
	_, err = auth.Authenticate(tok)
	require.Error(t, err)
}

func TestMiddlewareStoresCaller(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, nil)
	require.NoError(t, err)
	var seen lending.AccountID
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "bearer "+token(t, "bob"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, lending.AccountID("bob"), seen)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Basic Ym9iOnB3")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{HMACSecret: "  "}, nil)
	require.Error(t, err)
}
