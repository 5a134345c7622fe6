package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/domain"
)

// DefaultTokenTTL is the lifetime of every flow token.
const DefaultTokenTTL = 15 * time.Minute

// ErrTokenInvalid is the only error Verify returns to callers. Bad
// signatures, expiry and purpose mismatches are not told apart.
var ErrTokenInvalid = errors.New("token could not be verified")

// TokenManager issues and verifies purpose-scoped HS256 tokens. Tokens are
// not tracked server side: a token stays valid until it expires, even after
// it has been used.
type TokenManager struct {
	secret []byte
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, logger *zap.Logger, now func() time.Time) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{secret: []byte(secret), logger: logger, now: now}
}

// Claims describes JWT payload.
type Claims struct {
	Purpose   domain.TokenPurpose `json:"pur"`
	Auxiliary string              `json:"aux,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a token for subjectID. aux is only meaningful for email-change
// tokens.
func (tm *TokenManager) Issue(subjectID string, purpose domain.TokenPurpose, ttl time.Duration, aux string) (string, error) {
	now := tm.now()
	claims := &Claims{
		Purpose:   purpose,
		Auxiliary: aux,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify checks signature and expiry and, when expected is not empty, the
// purpose of the token.
func (tm *TokenManager) Verify(tokenStr string, expected domain.TokenPurpose) (*domain.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		tm.logger.Debug("token rejected", zap.String("reason", rejectReason(err)))
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		tm.logger.Debug("token rejected", zap.String("reason", "malformed claims"))
		return nil, ErrTokenInvalid
	}
	if expected != "" && claims.Purpose != expected {
		tm.logger.Debug("token rejected",
			zap.String("reason", "purpose mismatch"),
			zap.String("expected", string(expected)),
			zap.String("got", string(claims.Purpose)))
		return nil, ErrTokenInvalid
	}

	return &domain.TokenClaims{
		SubjectID: claims.Subject,
		Purpose:   claims.Purpose,
		Auxiliary: claims.Auxiliary,
	}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
