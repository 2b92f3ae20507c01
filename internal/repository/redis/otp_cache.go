package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"saferental-service/internal/client"
	"saferental-service/internal/util"
)

const (
	otpSendPrefix    = "otp_sends:"
	otpAttemptPrefix = "otp_attempts:"
)

// OTPCache tracks send and wrong-code attempt counters in Redis. Counters
// expire on their own; the cache holds no codes.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

// IncrementSends bumps the per-contact send counter, starting a fresh window
// on first use.
func (c *OTPCache) IncrementSends(contactInfo string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := otpSendPrefix + contactInfo
	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment OTP send counter",
			zap.String("contact_info", contactInfo),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment OTP send counter: %w", err)
	}

	return int(count), nil
}

// IncrementAttempts bumps the wrong-code counter for one OTP record.
func (c *OTPCache) IncrementAttempts(otpID string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := otpAttemptPrefix + otpID
	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment OTP attempt counter",
			zap.String("otp_id", otpID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment OTP attempt counter: %w", err)
	}

	return int(count), nil
}

// ResetAttempts clears the wrong-code counter after a successful verify.
func (c *OTPCache) ResetAttempts(otpID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, otpAttemptPrefix+otpID); err != nil {
		util.Error("Failed to reset OTP attempt counter",
			zap.String("otp_id", otpID),
			zap.Error(err))
		return fmt.Errorf("failed to reset OTP attempt counter: %w", err)
	}
	return nil
}
