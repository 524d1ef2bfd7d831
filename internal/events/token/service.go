package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/config"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/eligibility"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/identity"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/s2s"
)

// Service implements the Events token operations: request, status, reset.
type Service struct {
	store      *Store
	elections  *s2s.Client
	audit      *audit.Writer
	cfg        *config.Shared
	log        *slog.Logger
}

func NewService(store *Store, elections *s2s.Client, auditWriter *audit.Writer, cfg *config.Shared, log *slog.Logger) *Service {
	return &Service{store: store, elections: elections, audit: auditWriter, cfg: cfg, log: log}
}

// StatusResult answers "Read own status".
type StatusResult struct {
	HasToken  bool
	Used      bool
	ExpiresAt time.Time
}

// Grant is the one-shot result of a successful token request. Plaintext is
// returned to the member exactly once and never logged.
type Grant struct {
	Plaintext string
	ExpiresAt time.Time
}

// RequestToken implements "Request token".
func (s *Service) RequestToken(ctx context.Context, correlationID string, claims *identity.Claims, electionID string) (grant *Grant, err error) {
	defer func() {
		s.auditToken(ctx, correlationID, claims, "request_token", err)
	}()

	elig, err := s.elections.FetchElectionEligibility(ctx, electionID)
	if err != nil {
		return nil, err
	}

	caller := eligibility.Caller{MemberUID: claims.SubjectID, IsMember: claims.IsMember, Roles: claims.Roles}
	if err := eligibility.Check(eligibility.Info{
		Status:              elig.Status,
		Hidden:              elig.Hidden,
		Eligibility:         elig.Eligibility,
		CommitteeMemberUIDs: elig.CommitteeMemberUIDs,
	}, caller); err != nil {
		return nil, err
	}

	plaintext, expiresAt, err := s.store.Register(ctx, claims.SubjectID, claims.KennitalaNormalized, electionID, s.cfg.TokenTTL,
		func(ctx context.Context, tokenHash string) error {
			return s.elections.RegisterTokenHash(ctx, electionID, tokenHash)
		})
	if err != nil {
		return nil, err
	}
	return &Grant{Plaintext: plaintext, ExpiresAt: expiresAt}, nil
}

// Status implements "Read own status".
func (s *Service) Status(ctx context.Context, claims *identity.Claims, electionID string) (*StatusResult, error) {
	hasToken, used, expiresAt, err := s.store.Status(ctx, claims.SubjectID, electionID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{HasToken: hasToken, Used: used, ExpiresAt: expiresAt}, nil
}

// TokenOutstanding answers Elections' S2S orphan-sweep probe: whether a
// given token hash still has a live, unused record in Events' schema.
func (s *Service) TokenOutstanding(ctx context.Context, electionID, tokenHash string) (bool, error) {
	return s.store.IsOutstanding(ctx, electionID, tokenHash)
}

// ResetMine implements the "mine" reset scope.
func (s *Service) ResetMine(ctx context.Context, correlationID string, claims *identity.Claims, electionID string) (deleted int64, err error) {
	defer func() {
		s.auditReset(ctx, correlationID, claims, "reset_mine", "mine", err == nil, err)
	}()
	deleted, err = s.store.DeleteMine(ctx, claims.SubjectID, electionID)
	return deleted, err
}

// ResetAll implements the "all" reset scope, refused outside the
// production opt-in.
func (s *Service) ResetAll(ctx context.Context, correlationID string, claims *identity.Claims) (deleted int64, err error) {
	allowed := s.cfg.ResetAllAllowed()
	defer func() {
		reason := ""
		if !allowed {
			reason = "production_guardrail"
		}
		s.auditResetAll(ctx, correlationID, claims, allowed, reason, err)
	}()

	if !allowed {
		return 0, apperrors.New(apperrors.KindForbidden, "token.ResetAll", "scope=all reset is disabled in production without PRODUCTION_RESET_ALLOWED")
	}

	deleted, err = s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	if _, err := s.elections.ResetAll(ctx); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (s *Service) auditToken(ctx context.Context, correlationID string, claims *identity.Claims, action string, err error) {
	rec := audit.Record{
		Action:        action,
		Success:       err == nil,
		PerformedBy:   audit.MaskKennitala(claims.KennitalaNormalized),
		CorrelationID: correlationID,
	}
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			rec.ReasonCode = string(appErr.Kind)
		}
	}
	_ = s.audit.Write(ctx, rec)
}

func (s *Service) auditReset(ctx context.Context, correlationID string, claims *identity.Claims, action, scope string, success bool, err error) {
	rec := audit.Record{
		Action:        action,
		Success:       success,
		PerformedBy:   audit.MaskKennitala(claims.KennitalaNormalized),
		CorrelationID: correlationID,
		Details:       map[string]any{"scope": scope},
	}
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			rec.ReasonCode = string(appErr.Kind)
		}
	}
	_ = s.audit.Write(ctx, rec)
}

func (s *Service) auditResetAll(ctx context.Context, correlationID string, claims *identity.Claims, allowed bool, reason string, err error) {
	outcome := "blocked"
	if allowed {
		if err == nil {
			outcome = "allowed"
		} else {
			outcome = "failed"
		}
	}
	rec := audit.Record{
		Action:        "reset_all",
		Success:       allowed && err == nil,
		PerformedBy:   audit.MaskKennitala(claims.KennitalaNormalized),
		CorrelationID: correlationID,
		ReasonCode:    reason,
		Details:       map[string]any{"outcome": outcome},
	}
	_ = s.audit.Write(ctx, rec)
}
