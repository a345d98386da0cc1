package socialauth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"veris/apperr"
)

const appleKeysURL = "https://appleid.apple.com/auth/keys"

// AppleVerifier validates Sign in with Apple identity tokens.
type AppleVerifier struct {
	clientID string
	jwks     *jwksCache
}

// NewAppleVerifier builds a verifier for the given app bundle ID.
func NewAppleVerifier(clientID string) *AppleVerifier {
	return &AppleVerifier{
		clientID: clientID,
		jwks:     newJWKSCache(appleKeysURL),
	}
}

func (v *AppleVerifier) Provider() string { return "apple" }

func (v *AppleVerifier) Verify(ctx context.Context, tokenStr string) (*UserInfo, error) {
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
	}, jwt.WithAudience(v.clientID),
		jwt.WithIssuer("https://appleid.apple.com"),
		jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}
	email, _ := claims["email"].(string)
	// Apple does not carry a display name in the identity token.
	return &UserInfo{SubjectID: sub, Email: email}, nil
}
