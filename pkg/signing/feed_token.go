package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token validation failures.
var (
	ErrMalformedToken = errors.New("malformed feed token")
	ErrBadSignature   = errors.New("invalid feed token signature")
	ErrExpiredToken   = errors.New("feed token expired")
)

// FeedClaims are the identity embedded in a calendar subscription link.
type FeedClaims struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// FeedSigner issues and verifies HMAC-signed calendar subscription tokens.
// Calendar applications poll feeds without an Authorization header, so the
// token itself carries the viewer.
type FeedSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFeedSigner constructs a signer with the provided secret and TTL.
func NewFeedSigner(secret string, ttl time.Duration) *FeedSigner {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &FeedSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token for the viewer and its expiry.
func (s *FeedSigner) Issue(userID, role string) (string, time.Time, error) {
	if userID == "" || role == "" {
		return "", time.Time{}, fmt.Errorf("user id and role required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedUser := base64.RawURLEncoding.EncodeToString([]byte(userID))
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(encodedUser, role, exp)
	return strings.Join([]string{encodedUser, role, exp, signature}, "."), expiresAt, nil
}

// Verify validates a token and returns its claims.
func (s *FeedSigner) Verify(token string) (FeedClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return FeedClaims{}, ErrMalformedToken
	}
	encodedUser, role, exp, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(encodedUser, role, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return FeedClaims{}, ErrBadSignature
	}

	rawUser, err := base64.RawURLEncoding.DecodeString(encodedUser)
	if err != nil {
		return FeedClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return FeedClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return FeedClaims{}, ErrExpiredToken
	}
	return FeedClaims{UserID: string(rawUser), Role: role, ExpiresAt: expiresAt}, nil
}

func (s *FeedSigner) sign(encodedUser, role, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encodedUser + "|" + role + "|" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}
