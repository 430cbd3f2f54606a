// Package token signs and verifies the JWT pair used for sessions.
// Access and refresh tokens are both HS256 with {sub, role, exp, iat}
// claims but are signed with distinct secrets, so one can never be
// presented in place of the other.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired reports a structurally valid token past its exp
// claim.  Callers treat it differently from ErrTokenInvalid: an
// expired refresh token means the client must sign in again.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid covers every other verification failure: bad
// signature, wrong algorithm, malformed payload, missing claims.
var ErrTokenInvalid = errors.New("token invalid")

// Claims is the identity carried by a verified token.  Role is
// embedded at issue time so authorization checks do not have to
// re-query the store on every request.
type Claims struct {
	UserID uint64
	Role   string
}

// Issued bundles a signed token string with its expiry.
type Issued struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires"`
}

// Codec issues and verifies both token kinds.  Construction fails when
// either signing secret is empty; an unsigned deployment is a fatal
// startup condition, not a per-request error.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewCodec validates the secrets and TTLs and returns a ready codec.
func NewCodec(accessSecret, refreshSecret string, accessTTLMin, refreshTTLDays int) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token: signing secrets must not be empty")
	}
	if accessTTLMin <= 0 || refreshTTLDays <= 0 {
		return nil, errors.New("token: TTLs must be positive")
	}
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     time.Duration(accessTTLMin) * time.Minute,
		refreshTTL:    time.Duration(refreshTTLDays) * 24 * time.Hour,
	}, nil
}

// IssueAccess signs a short-lived access token for the given identity.
func (c *Codec) IssueAccess(userID uint64, role string) (Issued, error) {
	return sign(c.accessSecret, userID, role, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the given identity.
func (c *Codec) IssueRefresh(userID uint64, role string) (Issued, error) {
	return sign(c.refreshSecret, userID, role, c.refreshTTL)
}

// VerifyAccess checks an access token and returns its claims.
func (c *Codec) VerifyAccess(raw string) (Claims, error) {
	return verify(c.accessSecret, raw)
}

// VerifyRefresh checks a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(raw string) (Claims, error) {
	return verify(c.refreshSecret, raw)
}

func sign(secret []byte, userID uint64, role string, ttl time.Duration) (Issued, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, Exp: exp}, nil
}

func verify(secret []byte, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Pin the algorithm; a token signed with anything but HMAC is rejected.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}
	out := Claims{}
	switch sub := mc["sub"].(type) {
	case float64:
		// JSON numbers decode as float64.
		out.UserID = uint64(sub)
	case string:
		n, perr := strconv.ParseUint(sub, 10, 64)
		if perr != nil {
			return Claims{}, ErrTokenInvalid
		}
		out.UserID = n
	default:
		return Claims{}, ErrTokenInvalid
	}
	role, ok := mc["role"].(string)
	if !ok || out.UserID == 0 {
		return Claims{}, ErrTokenInvalid
	}
	out.Role = role
	return out, nil
}
