package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/signing"
)

// TokenService verifies access tokens minted by the identity service and
// issues calendar subscription tokens.
type TokenService struct {
	accessSecret []byte
	feed         *signing.FeedSigner
}

// NewTokenService constructs the token service.
func NewTokenService(accessSecret string, feed *signing.FeedSigner) *TokenService {
	return &TokenService{accessSecret: []byte(accessSecret), feed: feed}
}

// ValidateToken parses and verifies an HS256 access token.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.accessSecret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// IssueFeedToken mints a subscription token for the viewer.
func (s *TokenService) IssueFeedToken(viewer models.Viewer) (string, time.Time, error) {
	if s.feed == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrUnavailable, "calendar feeds are disabled")
	}
	token, expiresAt, err := s.feed.Issue(viewer.UserID, string(viewer.Role))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue feed token")
	}
	return token, expiresAt, nil
}

// ValidateFeedToken verifies a subscription token and returns the claims it
// stands for.
func (s *TokenService) ValidateFeedToken(token string) (*models.JWTClaims, error) {
	if s.feed == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "calendar feeds are disabled")
	}
	claims, err := s.feed.Verify(token)
	if err != nil {
		message := "invalid feed token"
		if errors.Is(err, signing.ErrExpiredToken) {
			message = "feed token expired"
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, message)
	}
	return &models.JWTClaims{
		UserID: claims.UserID,
		Role:   models.UserRole(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}, nil
}
