package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/records-engine/config"
	"github.com/warp/records-engine/generic"
)

// Identity resolves the acting user of a request. Writes tolerate an
// unknown actor, so implementations return "" instead of failing.
type Identity interface {
	Actor(r *http.Request) generic.ActorID
}

// IdentityFor picks bearer tokens when a JWT secret is configured and the
// actor header otherwise.
func IdentityFor(sc config.ServerConfig) Identity {
	if sc.JWTSecret != "" {
		return JWTIdentity{Secret: []byte(sc.JWTSecret)}
	}
	return HeaderIdentity{}
}

// HeaderIdentity trusts an upstream proxy to set the actor header.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) Actor(r *http.Request) generic.ActorID {
	name := h.Header
	if name == "" {
		name = "X-Actor-ID"
	}
	return generic.ActorID(strings.TrimSpace(r.Header.Get(name)))
}

// JWTIdentity reads the subject of an HMAC-signed bearer token.
type JWTIdentity struct {
	Secret []byte
}

func (j JWTIdentity) Actor(r *http.Request) generic.ActorID {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return ""
	}

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return j.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return ""
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return generic.ActorID(sub)
}

// SignActor issues a token for actor. Used by the CLI and tests.
func SignActor(secret []byte, actor generic.ActorID, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = string(actor)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
