package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/config"
)

// OTPChallenge is the opaque verification handle handed to a signer.
type OTPChallenge struct {
	Handle    string    `json:"handle"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OTPResult is the outcome of a verification attempt. OTPHash is kept for
// the audit trail; the raw code is never stored or returned.
type OTPResult struct {
	Matched bool
	OTPHash string
}

// OTPSender delivers a verification code to the signer.
type OTPSender interface {
	SendCode(ctx context.Context, email, code, contractLabel string) error
}

// LoggingSender is the development delivery backend: it logs instead of
// sending mail.
type LoggingSender struct {
	Logger *zap.Logger
}

// SendCode logs the code delivery.
func (s *LoggingSender) SendCode(ctx context.Context, email, code, contractLabel string) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Sugar().Infow("otp delivery", "email", email, "contract", contractLabel)
	return nil
}

// OTPService issues and verifies signing codes. Codes live in redis under
// their handle with a TTL; an expired or unknown handle verifies as a plain
// mismatch rather than a distinct error.
type OTPService struct {
	redis  *redis.Client
	sender OTPSender
	cfg    config.OTPConfig
	logger *zap.Logger
}

// NewOTPService constructs OTPService.
func NewOTPService(client *redis.Client, sender OTPSender, cfg config.OTPConfig, logger *zap.Logger) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	return &OTPService{redis: client, sender: sender, cfg: cfg, logger: logger}
}

func (s *OTPService) key(handle string) string {
	return "otp:" + handle
}

// Generate creates a challenge, stores the hashed code under a fresh handle
// and delivers the raw code to the recipient.
func (s *OTPService) Generate(ctx context.Context, contractID, email, contractLabel string) (*OTPChallenge, error) {
	code, err := randomCode(s.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash otp code: %w", err)
	}

	handle := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.cfg.TTL)
	if err := s.redis.Set(ctx, s.key(handle), string(hashed), s.cfg.TTL).Err(); err != nil {
		return nil, fmt.Errorf("store otp challenge: %w", err)
	}

	if err := s.sender.SendCode(ctx, email, code, contractLabel); err != nil {
		// The challenge stays valid; delivery is at-least-once via resend.
		s.logger.Sugar().Warnw("otp delivery failed", "contract_id", contractID, "error", err)
	}

	return &OTPChallenge{Handle: handle, ExpiresAt: expiresAt}, nil
}

// Verify checks a code against its handle. The handle is consumed on a
// match; a miss leaves it in place for retries until the TTL lapses.
func (s *OTPService) Verify(ctx context.Context, handle, code string) (*OTPResult, error) {
	result := &OTPResult{OTPHash: hashForAudit(handle, code)}

	stored, err := s.redis.Get(ctx, s.key(handle)).Result()
	if err != nil {
		if err == redis.Nil {
			return result, nil
		}
		return nil, fmt.Errorf("load otp challenge: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(code)) != nil {
		return result, nil
	}

	if err := s.redis.Del(ctx, s.key(handle)).Err(); err != nil {
		s.logger.Sugar().Warnw("otp handle cleanup failed", "error", err)
	}
	result.Matched = true
	return result, nil
}

// hashForAudit derives the hash stored in the signature audit trail.
func hashForAudit(handle, code string) string {
	sum := sha256.Sum256([]byte(handle + ":" + code))
	return hex.EncodeToString(sum[:])
}

func randomCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
