package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
)

var log = logging.GetLogger("api/auth")

const (
	AuthorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	issuer              = "rebuild-mock"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrMissingToken = errors.New("missing bearer token")
)

// Claims are the claims of a mock access token. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the id of the user the token was issued for.
func (c *Claims) UserID() (int, error) {
	id, err := strconv.Atoi(c.Subject)
	if err != nil {
		return 0, fmt.Errorf("%w: subject is no user id: %v", ErrInvalidToken, err)
	}
	return id, nil
}

// Issuer signs and verifies mock access tokens with a shared secret.
// Tokens are not used to guard any route; they only let the frontend run its login flow.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. A non-positive ttl creates tokens without expiry.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a signed token for the user.
func (i *Issuer) Issue(userID int, email string) (string, error) {
	now := i.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   issuer,
			Subject:  strconv.Itoa(userID),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("error signing access token: %w", err)
	}
	return token, nil
}

// Parse verifies the token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// UserIDFromRequest returns the user id of the bearer token of the request.
func (i *Issuer) UserIDFromRequest(r *http.Request) (int, error) {
	header := r.Header.Get(AuthorizationHeader)
	if !strings.HasPrefix(header, bearerPrefix) {
		return 0, ErrMissingToken
	}
	claims, err := i.Parse(strings.TrimPrefix(header, bearerPrefix))
	if err != nil {
		log.WithContext(r.Context()).WithError(err).Debug("Ignoring invalid bearer token")
		return 0, err
	}
	return claims.UserID()
}
