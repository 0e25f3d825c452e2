package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func RunProgressKey(runID uuid.UUID) string {
	return fmt.Sprintf("run:%s:progress", runID)
}

func RunResultKey(runID uuid.UUID) string {
	return fmt.Sprintf("run:%s:result", runID)
}

func OTPKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

func RateLimitKey(tokenPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", tokenPrefix)
}

// QuotaKey is the per-user search counter for the UTC day containing t.
func QuotaKey(userID uuid.UUID, t time.Time) string {
	return fmt.Sprintf("quota:%s:%s", userID, t.UTC().Format("2006-01-02"))
}

func OTPAttemptsKey(phone string) string {
	return fmt.Sprintf("otp:%s:attempts", phone)
}
