// Package identity mints bearer credentials for members, for use by
// clients that talk to the store or other services on a member's behalf.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	fbase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kperson/fire-sync/internal/crypto"
)

var ErrInvalidToken = errors.New("invalid token")

// Issuer mints an opaque credential for a member of a namespace.
type Issuer interface {
	IssueToken(ctx context.Context, namespace, memberID string) (string, error)
}

// Verifier checks a credential minted for a namespace.
type Verifier interface {
	Verify(namespace, token string) (*Claims, error)
}

// Claims are the claims carried by a JWTIssuer credential.
type Claims struct {
	Namespace string `json:"ns"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 tokens with a key derived per namespace.
type JWTIssuer struct {
	master []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer creates an issuer from a base64 master signing key.
func NewJWTIssuer(signingKeyB64, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	master, err := crypto.DecodeSigningKey(signingKeyB64)
	if err != nil {
		return nil, err
	}
	return &JWTIssuer{master: master, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// IssueToken signs a credential whose subject is memberID.
func (i *JWTIssuer) IssueToken(ctx context.Context, namespace, memberID string) (string, error) {
	key, err := crypto.DeriveKey(i.master, namespace)
	if err != nil {
		return "", err
	}

	now := i.now()
	claims := Claims{
		Namespace: namespace,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        crypto.NewUUIDv7().String(),
			Issuer:    i.issuer,
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verify checks a credential minted for namespace and returns its claims.
func (i *JWTIssuer) Verify(namespace, token string) (*Claims, error) {
	key, err := crypto.DeriveKey(i.master, namespace)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Namespace != namespace {
		return nil, fmt.Errorf("%w: namespace mismatch", ErrInvalidToken)
	}
	return claims, nil
}

// FirebaseIssuer mints Firebase custom tokens, which clients exchange for
// a Firebase ID token to read their inbox straight from the database.
type FirebaseIssuer struct {
	client *auth.Client
}

// NewFirebaseIssuer creates an issuer on the Firebase app's auth client.
func NewFirebaseIssuer(ctx context.Context, app *fbase.App) (*FirebaseIssuer, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseIssuer{client: client}, nil
}

// IssueToken mints a custom token for memberID carrying the namespace as a claim.
func (i *FirebaseIssuer) IssueToken(ctx context.Context, namespace, memberID string) (string, error) {
	return i.client.CustomTokenWithClaims(ctx, memberID, map[string]interface{}{
		"ns": namespace,
	})
}
