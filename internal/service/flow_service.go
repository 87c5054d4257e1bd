package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stagepass/identity-service/internal/autherr"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/repository"
	"github.com/stagepass/identity-service/internal/utils"
	"go.uber.org/zap"
)

// CodeFlowService orchestrates the one-time-code flows (email verification
// and password reset): generation, cooldown, expiry and exactly-once
// consumption. Cooldown and expiry are evaluated lazily against stored
// timestamps; nothing here runs in the background.
type CodeFlowService struct {
	userRepo repository.UserRepository
	mailer   Mailer
	logger   *zap.Logger

	codeTTL    time.Duration
	cooldown   time.Duration
	codeLength int
	codeCost   int
}

// NewCodeFlowService creates a new code flow service
func NewCodeFlowService(
	userRepo repository.UserRepository,
	mailer Mailer,
	logger *zap.Logger,
	codeTTL, cooldown time.Duration,
	codeLength, codeCost int,
) *CodeFlowService {
	return &CodeFlowService{
		userRepo:   userRepo,
		mailer:     mailer,
		logger:     logger,
		codeTTL:    codeTTL,
		cooldown:   cooldown,
		codeLength: codeLength,
		codeCost:   codeCost,
	}
}

// IssueCode generates a code for the given flow, persists its hash and
// expiry, then dispatches the email. The store-level conditional update is
// the authoritative cooldown guard; the in-memory check only computes the
// remaining wait for the error. The code is persisted before the send, so a
// failed send leaves a consumable code behind and the user can retry via
// resend.
func (s *CodeFlowService) IssueCode(ctx context.Context, user *domain.User, flow domain.FlowKind) error {
	now := time.Now()

	if remaining := s.remainingCooldown(user.LastCodeRequestAt, now); remaining > 0 {
		return autherr.Cooldown(remaining)
	}

	code, err := utils.GenerateNumericCode(s.codeLength)
	if err != nil {
		return autherr.System("failed to generate code", err)
	}

	codeHash, err := utils.HashSecret(code, s.codeCost)
	if err != nil {
		return autherr.System("failed to hash code", err)
	}

	cutoff := now.Add(-s.cooldown)
	err = s.userRepo.ClaimCode(ctx, user.ID, flow, codeHash, now.Add(s.codeTTL), cutoff)
	if err != nil {
		if errors.Is(err, repository.ErrCooldownActive) {
			// Lost the claim to a concurrent request; re-read to report an
			// accurate remaining wait.
			fresh, ferr := s.userRepo.GetByID(ctx, user.ID)
			if ferr == nil {
				return autherr.Cooldown(s.remainingCooldown(fresh.LastCodeRequestAt, time.Now()))
			}
			return autherr.Cooldown(s.cooldown)
		}
		return autherr.System("failed to persist code", err)
	}

	if err := s.send(ctx, user.Email, code, flow); err != nil {
		s.logger.Error("code email dispatch failed",
			zap.String("user_id", user.ID),
			zap.String("flow", string(flow)),
			zap.Error(err),
		)
		return autherr.Wrap(autherr.KindNotificationFailed, "failed to send code email", err)
	}

	return nil
}

// ConsumeCode validates a supplied code against the stored hash for the
// given flow and clears it exactly once. For the verification flow a
// successful consumption also marks the email verified.
func (s *CodeFlowService) ConsumeCode(ctx context.Context, user *domain.User, flow domain.FlowKind, suppliedCode string) error {
	codeHash, expiresAt := s.codeFields(user, flow)

	switch s.codeState(codeHash, expiresAt, time.Now()) {
	case domain.CodeStateNone:
		return autherr.New(autherr.KindNoActiveCode, "no active code on record")
	case domain.CodeStateExpired:
		return autherr.New(autherr.KindCodeExpired, "code has expired, request a new one")
	}

	if !utils.CheckSecretHash(suppliedCode, codeHash) {
		return autherr.New(autherr.KindInvalidCode, "invalid code")
	}

	var err error
	switch flow {
	case domain.FlowVerification:
		err = s.userRepo.ClearVerificationCode(ctx, user.ID, true)
	case domain.FlowReset:
		err = s.userRepo.ClearResetCode(ctx, user.ID)
	default:
		return autherr.System(fmt.Sprintf("unknown flow kind %q", flow), nil)
	}

	if err != nil {
		if errors.Is(err, repository.ErrNoActiveCode) {
			// A concurrent consumption already cleared the fields.
			return autherr.New(autherr.KindNoActiveCode, "no active code on record")
		}
		return autherr.System("failed to consume code", err)
	}

	return nil
}

func (s *CodeFlowService) remainingCooldown(lastRequestAt *time.Time, now time.Time) time.Duration {
	if lastRequestAt == nil {
		return 0
	}
	return s.cooldown - now.Sub(*lastRequestAt)
}

func (s *CodeFlowService) codeFields(user *domain.User, flow domain.FlowKind) (string, *time.Time) {
	if flow == domain.FlowReset {
		return user.ResetCodeHash, user.ResetCodeExpiresAt
	}
	return user.VerificationCodeHash, user.VerificationCodeExpiresAt
}

func (s *CodeFlowService) codeState(codeHash string, expiresAt *time.Time, now time.Time) domain.CodeState {
	if codeHash == "" || expiresAt == nil {
		return domain.CodeStateNone
	}
	if now.After(*expiresAt) {
		return domain.CodeStateExpired
	}
	return domain.CodeStateActive
}

func (s *CodeFlowService) send(ctx context.Context, email, code string, flow domain.FlowKind) error {
	if flow == domain.FlowReset {
		return s.mailer.SendPasswordResetCode(ctx, email, code)
	}
	return s.mailer.SendVerificationCode(ctx, email, code)
}
