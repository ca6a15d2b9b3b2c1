package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
)

// Roles carried in access tokens
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

const (
	wsTicketUsage    = "websocket_auth"
	wsTicketAudience = "exam-ws"
	defaultWSExpiry  = 60 * time.Second
)

// JWTCustomClaims are issued by the auth service. StudentID is the
// identifier results are stored under.
type JWTCustomClaims struct {
	StudentID string `json:"student_id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	Usage     string `json:"usage,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants admin access
func (c *JWTCustomClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// JWTService verifies HS256 access tokens and issues short-lived
// websocket tickets.
type JWTService struct {
	secret         []byte
	issuer         string
	wsTicketExpiry time.Duration
	now            func() time.Time
}

// NewJWTService creates a verifier. An empty issuer disables the issuer check.
func NewJWTService(secret, issuer string, wsTicketExpiry time.Duration) (*JWTService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if wsTicketExpiry <= 0 {
		wsTicketExpiry = defaultWSExpiry
	}
	return &JWTService{
		secret:         []byte(secret),
		issuer:         issuer,
		wsTicketExpiry: wsTicketExpiry,
		now:            time.Now,
	}, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *JWTService) parse(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", apperrors.ErrUnauthorized)
	}
	if claims.StudentID == "" {
		claims.StudentID = claims.Subject
	}
	if claims.StudentID == "" {
		return nil, fmt.Errorf("%w: token has no student id", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// ParseToken verifies an access token. Websocket tickets are rejected.
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Usage == wsTicketUsage {
		return nil, fmt.Errorf("%w: websocket ticket used as access token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// ParseWSTicket verifies a ticket issued by GenerateWSTicket
func (s *JWTService) ParseWSTicket(ticket string) (*JWTCustomClaims, error) {
	claims, err := s.parse(ticket)
	if err != nil {
		return nil, err
	}
	if claims.Usage != wsTicketUsage {
		return nil, fmt.Errorf("%w: invalid ticket usage", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// GenerateWSTicket issues a short-lived ticket for the websocket upgrade,
// which cannot carry an Authorization header from browsers.
func (s *JWTService) GenerateWSTicket(studentID, role string) (string, error) {
	now := s.now()
	claims := &JWTCustomClaims{
		StudentID: studentID,
		Role:      role,
		Usage:     wsTicketUsage,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.wsTicketExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   studentID,
			Audience:  jwt.ClaimStrings{wsTicketAudience},
		},
	}
	return s.sign(claims)
}

// GenerateToken signs arbitrary claims with the shared secret. The auth
// service owns token issuing; this is used by tests and local tooling.
func (s *JWTService) GenerateToken(claims *JWTCustomClaims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = s.issuer
	}
	return s.sign(claims)
}

func (s *JWTService) sign(claims *JWTCustomClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
