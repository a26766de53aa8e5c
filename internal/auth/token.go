package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kolosafo/bookflow/internal/model"
)

// Token lifetimes.
const (
	AccessTTL  = 24 * time.Hour
	RefreshTTL = 30 * 24 * time.Hour
)

// Subject kinds carried in tokens.
const (
	SubjectUser   = "user"
	SubjectVendor = "vendor"
)

// Claims are the JWT claims issued to mobile clients and vendor accounts.
// The subscription reflects the effective plan (an active free trial reads
// as premium).
type Claims struct {
	SubjectType  string `json:"subject_type"`
	Email        string `json:"email"`
	Status       string `json:"status"`
	Subscription string `json:"subscription,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	FreeTrial    bool   `json:"free_trial,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the refresh/access pair returned on login and registration.
type TokenPair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

// Issuer signs and parses tokens with an HMAC secret.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// IssueUserPair mints the access and refresh tokens for a user.
func (i *Issuer) IssueUserPair(u *model.User) (*TokenPair, error) {
	claims := Claims{
		SubjectType:  SubjectUser,
		Email:        u.Email,
		Status:       u.Status,
		Subscription: u.EffectiveSubscription(),
		FreeTrial:    u.FreeTrial,
	}
	if u.DeviceID != nil {
		claims.DeviceID = *u.DeviceID
	}
	return i.issuePair(u.ID, claims)
}

// IssueVendorPair mints the pair for a vendor account.
func (i *Issuer) IssueVendorPair(a *model.VendorAccount) (*TokenPair, error) {
	claims := Claims{
		SubjectType: SubjectVendor,
		Email:       a.Email,
		Status:      a.Status,
	}
	return i.issuePair(a.ID, claims)
}

func (i *Issuer) issuePair(subjectID string, claims Claims) (*TokenPair, error) {
	now := time.Now()

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AccessTTL)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(RefreshTTL))
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{Refresh: refresh, Access: access}, nil
}

// Parse validates a token and returns its claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
