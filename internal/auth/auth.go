// Package auth implements phone-number registration with one-time codes,
// API token issuance, and per-user daily search quotas.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/cache"
	"github.com/kiranshivaraju/pulseboard/internal/store"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidCode     = errors.New("invalid or expired verification code")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrOTPDelivery     = errors.New("verification code could not be delivered")
)

const (
	// TokenPrefix starts every issued API token.
	TokenPrefix = "pb_"
	// TokenPrefixLen is how many leading token characters are stored in
	// clear for lookup.
	TokenPrefixLen = 8

	// MaxOTPAttempts bounds verification tries per issued code.
	MaxOTPAttempts = 5

	otpDigits      = 6
	tokenRandBytes = 24
)

var rePhone = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// NormalizePhone strips common separators and validates the result.
func NormalizePhone(phone string) (string, error) {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	if !rePhone.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return p, nil
}

// OTPSender delivers a verification code to a phone number.
type OTPSender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log. It is meant for development only.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone, code string) error {
	slog.Info("verification code issued", "phone", maskPhone(phone), "code", code)
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// Issued is the result of a successful verification. Token is shown once.
type Issued struct {
	Token string
	User  *models.User
}

// Service handles registration and login.
type Service struct {
	store  store.Store
	cache  cache.Cache
	sender OTPSender
	otpTTL time.Duration
	random io.Reader
}

// NewService creates a new auth Service. A nil sender logs codes.
func NewService(st store.Store, ca cache.Cache, sender OTPSender, otpTTL time.Duration) *Service {
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{
		store:  st,
		cache:  ca,
		sender: sender,
		otpTTL: otpTTL,
		random: rand.Reader,
	}
}

// RequestOTP issues a fresh code for phone, replacing any earlier one.
func (s *Service) RequestOTP(ctx context.Context, phone string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	n, err := rand.Int(s.random, big.NewInt(1_000_000))
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}
	code := fmt.Sprintf("%0*d", otpDigits, n.Int64())

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing code: %w", err)
	}
	if err := s.cache.Set(ctx, cache.OTPKey(phone), hash, s.otpTTL); err != nil {
		return fmt.Errorf("storing code: %w", err)
	}
	_ = s.cache.Delete(ctx, cache.OTPAttemptsKey(phone))

	if err := s.sender.Send(ctx, phone, code); err != nil {
		_ = s.cache.Delete(ctx, cache.OTPKey(phone))
		return fmt.Errorf("%w: %v", ErrOTPDelivery, err)
	}
	return nil
}

// Verify checks code for phone. On success the code is consumed, the user
// is created or updated with interests, and a new API token is issued.
func (s *Service) Verify(ctx context.Context, phone, code string, interests []string) (*Issued, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	hash, found, err := s.cache.Get(ctx, cache.OTPKey(phone))
	if err != nil {
		return nil, fmt.Errorf("loading code: %w", err)
	}
	if !found {
		return nil, ErrInvalidCode
	}

	attempts, err := s.cache.IncrWithExpiry(ctx, cache.OTPAttemptsKey(phone), s.otpTTL)
	if err != nil {
		return nil, fmt.Errorf("counting attempts: %w", err)
	}
	if attempts > MaxOTPAttempts {
		_ = s.cache.Delete(ctx, cache.OTPKey(phone))
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(strings.TrimSpace(code))) != nil {
		return nil, ErrInvalidCode
	}
	_ = s.cache.Delete(ctx, cache.OTPKey(phone))
	_ = s.cache.Delete(ctx, cache.OTPAttemptsKey(phone))

	user, err := s.store.UpsertUser(ctx, phone, cleanInterests(interests))
	if err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	raw, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Issued{Token: raw, User: user}, nil
}

func (s *Service) issueToken(ctx context.Context, userID uuid.UUID) (string, error) {
	b := make([]byte, tokenRandBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	raw := TokenPrefix + hex.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}

	token := &models.APIToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHash:   string(hash),
		TokenPrefix: raw[:TokenPrefixLen],
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAPIToken(ctx, token); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}
	return raw, nil
}

// cleanInterests trims, lowercases and de-duplicates interests, keeping
// their order.
func cleanInterests(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, i := range in {
		i = strings.ToLower(strings.TrimSpace(i))
		if i == "" || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}
