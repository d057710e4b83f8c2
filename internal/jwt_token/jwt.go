package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
)

const staffAudience = "esfe-admin"

// Claims represents the JWT claims carried by staff access tokens.
type Claims struct {
	StaffID string `json:"staff_id"`
	jwt.RegisteredClaims
}

// JWTService issues and validates staff access tokens. Login itself lives
// outside this service; tokens are minted by the staff directory.
type JWTService struct {
	signingKey []byte
	issuer     string
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

func (s *JWTService) GenerateStaffToken(staffID id.StaffID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		StaffID: staffID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{staffAudience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(staffAudience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateStaffToken satisfies middleware.StaffValidator.
func (s *JWTService) ValidateStaffToken(tokenString string) (id.StaffID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.StaffID{}, err
	}
	staffID, err := id.ParseStaffID(claims.StaffID)
	if err != nil {
		return id.StaffID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid staff id in token")
	}
	return staffID, nil
}
