package socialauth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"veris/apperr"
)

const googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleVerifier validates Google ID tokens against Google's published keys.
type GoogleVerifier struct {
	clientID string
	jwks     *jwksCache
}

// NewGoogleVerifier builds a verifier for the given OAuth client ID.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		jwks:     newJWKSCache(googleCertsURL),
	}
}

func (v *GoogleVerifier) Provider() string { return "google" }

// Verify checks the token signature, issuer and audience, then extracts the
// asserted subject.
func (v *GoogleVerifier) Verify(ctx context.Context, tokenStr string) (*UserInfo, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token missing kid header")
		}
		return v.jwks.key(ctx, kid)
	}, jwt.WithAudience(v.clientID), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}

	issuer, _ := claims.GetIssuer()
	if issuer != googleIssuers[0] && issuer != googleIssuers[1] {
		return nil, apperr.Wrap(apperr.ErrUnauthorized,
			fmt.Errorf("unexpected issuer %q", issuer))
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return &UserInfo{SubjectID: sub, Email: email, Name: name}, nil
}
