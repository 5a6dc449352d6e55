/**
 * @description
 * The authorization gate in front of settlement. A transfer is only
 * submitted after the sender's 4-digit PIN verifies against the auth
 * service. The gate is fail-closed: any error reaching or reading the
 * verifier is treated as a denial, never as a pass.
 *
 * Attempt counting runs through an AttemptLimiter so the lockout holds
 * across instances. A malformed code is rejected locally without touching
 * the verifier or consuming an attempt.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
)

const pinAttemptScope = "pin_attempts"

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// PINVerifier checks a PIN code against the auth service.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, subject, code string) (bool, error)
}

// AuthorizationResult is the outcome of one gate check.
type AuthorizationResult struct {
	Authorized        bool
	Locked            bool
	AttemptsRemaining int
	RetryAfterSeconds int
}

// AuthorizationGate verifies PINs with a bounded number of attempts.
type AuthorizationGate struct {
	verifier    PINVerifier
	limiter     AttemptLimiter
	maxAttempts int
	window      time.Duration
}

func NewAuthorizationGate(verifier PINVerifier, limiter AttemptLimiter, maxAttempts int, window time.Duration) *AuthorizationGate {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &AuthorizationGate{
		verifier:    verifier,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// Verify checks the code for the user. It returns a ValidationError for a
// malformed code, a Locked result once the attempt budget is exhausted, and
// otherwise the verifier's verdict with the remaining attempt count.
func (g *AuthorizationGate) Verify(ctx context.Context, userID uuid.UUID, code string) (*AuthorizationResult, error) {
	if !pinPattern.MatchString(code) {
		return nil, domain.NewValidationError(domain.ValidationMalformedPIN, "PIN must be exactly 4 digits")
	}

	count, retryAfter, err := g.limiter.Consume(ctx, pinAttemptScope, userID.String(), g.maxAttempts, g.window)
	if err != nil {
		// Fail closed: without a working limiter the attempt bound cannot
		// be enforced, so the transfer is not authorized.
		log.Printf("level=error component=auth_gate msg=\"attempt limiter unavailable\" user_id=%s err=%v", userID, err)
		return nil, fmt.Errorf("failed to record authorization attempt: %w", err)
	}
	if count > g.maxAttempts {
		log.Printf("level=warn component=auth_gate msg=\"pin attempts exhausted\" user_id=%s retry_after_seconds=%d", userID, retryAfter)
		return &AuthorizationResult{Locked: true, RetryAfterSeconds: retryAfter}, nil
	}

	verified, err := g.verifier.VerifyPIN(ctx, userID.String(), code)
	if err != nil {
		log.Printf("level=error component=auth_gate msg=\"pin verification unavailable; denying\" user_id=%s err=%v", userID, err)
		verified = false
	}

	remaining := g.maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	if !verified {
		return &AuthorizationResult{
			Authorized:        false,
			AttemptsRemaining: remaining,
			RetryAfterSeconds: retryAfter,
		}, nil
	}

	if err := g.limiter.Reset(ctx, pinAttemptScope, userID.String()); err != nil {
		log.Printf("level=warn component=auth_gate msg=\"failed to reset attempt window\" user_id=%s err=%v", userID, err)
	}
	return &AuthorizationResult{Authorized: true, AttemptsRemaining: g.maxAttempts}, nil
}
