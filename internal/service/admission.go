package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wiki-engagement/internal/clock"
	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/metrics"
	"github.com/wiki-engagement/internal/models"
)

// RejectionKind identifies why a comment was not admitted
type RejectionKind string

const (
	// RejectionUnauthorized means the author is unknown or blocked
	RejectionUnauthorized RejectionKind = "unauthorized"
	// RejectionAccountFrozen means the author is under an abuse freeze
	RejectionAccountFrozen RejectionKind = "account_frozen"
	// RejectionTooManyRequests means the author commented within the throttle interval
	RejectionTooManyRequests RejectionKind = "too_many_requests"
)

// Rejection is an expected, user-facing admission outcome
type Rejection struct {
	Kind             RejectionKind `json:"kind"`
	FrozenUntil      time.Time     `json:"frozenUntil,omitempty"`
	RemainingSeconds int           `json:"remainingSeconds,omitempty"`
	WaitSeconds      int           `json:"waitSeconds,omitempty"`
}

// AsError converts the rejection to the categorized error the API layer renders
func (r *Rejection) AsError() error {
	switch r.Kind {
	case RejectionAccountFrozen:
		return apperrors.NewAccountFrozenError(r.FrozenUntil, r.RemainingSeconds)
	case RejectionTooManyRequests:
		return apperrors.NewRateLimitError(r.WaitSeconds)
	default:
		return apperrors.NewUnauthorizedError("account is not allowed to comment")
	}
}

// AdmitRequest describes a comment submission
type AdmitRequest struct {
	AuthorID string
	Content  string
	Target   models.CommentTarget
	OriginIP string
}

// Admission is the result of TryAdmit: either a stored comment or a rejection
type Admission struct {
	Comment   *models.Comment
	Author    *models.Account
	Rejection *Rejection
}

// Admitted reports whether the comment was stored
func (a *Admission) Admitted() bool {
	return a != nil && a.Rejection == nil && a.Comment != nil
}

// GuardConfig contains configuration for the admission guard
type GuardConfig struct {
	Accounts        AccountRepository
	Comments        CommentRepository
	Clock           clock.Clock
	CommentInterval time.Duration
	Logger          *logging.Logger
}

// Guard decides whether a comment may be created and persists admitted comments
type Guard struct {
	accounts AccountRepository
	comments CommentRepository
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger
}

// NewGuard creates a new admission guard
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if cfg.Comments == nil {
		return nil, fmt.Errorf("comment repository is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.CommentInterval <= 0 {
		cfg.CommentInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	return &Guard{
		accounts: cfg.Accounts,
		comments: cfg.Comments,
		clock:    cfg.Clock,
		interval: cfg.CommentInterval,
		logger:   cfg.Logger.WithField("component", "admission"),
	}, nil
}

// EvaluateAdmission applies the freeze and throttle rules to an account at now.
// Editors and admins are never rejected. Returns nil when the comment may be admitted.
func EvaluateAdmission(account *models.Account, now time.Time, interval time.Duration) *Rejection {
	if account.IsPrivileged() {
		return nil
	}

	if account.IsFrozenAt(now) {
		return &Rejection{
			Kind:             RejectionAccountFrozen,
			FrozenUntil:      *account.FrozenUntil,
			RemainingSeconds: apperrors.CeilSeconds(account.FrozenUntil.Sub(now)),
		}
	}

	if account.LastCommentAt != nil {
		elapsed := now.Sub(*account.LastCommentAt)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed < interval {
			return &Rejection{
				Kind:        RejectionTooManyRequests,
				WaitSeconds: apperrors.CeilSeconds(interval - elapsed),
			}
		}
	}

	return nil
}

// TryAdmit loads the author, applies the admission rules and stores the comment on success.
// Rejections are returned in the Admission, errors only for invalid input or store failures.
func (g *Guard) TryAdmit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	if err := validateAdmitRequest(req); err != nil {
		return nil, err
	}

	now := g.clock.Now()
	logger := g.logger.WithField("authorId", req.AuthorID)

	account, err := g.accounts.GetByID(ctx, req.AuthorID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			metrics.RecordAdmission("unauthorized")
			logger.Debug("Comment rejected: unknown account")
			return &Admission{Rejection: &Rejection{Kind: RejectionUnauthorized}}, nil
		}
		return nil, apperrors.NewDatabaseError("load account", err)
	}
	if account.IsBlocked {
		metrics.RecordAdmission("unauthorized")
		logger.Debug("Comment rejected: blocked account")
		return &Admission{Author: account, Rejection: &Rejection{Kind: RejectionUnauthorized}}, nil
	}

	if rejection := EvaluateAdmission(account, now, g.interval); rejection != nil {
		outcome := "throttled"
		if rejection.Kind == RejectionAccountFrozen {
			outcome = "frozen"
		}
		metrics.RecordAdmission(outcome)
		logger.WithFields(map[string]interface{}{
			"reason":           rejection.Kind,
			"waitSeconds":      rejection.WaitSeconds,
			"remainingSeconds": rejection.RemainingSeconds,
		}).Debug("Comment rejected")
		return &Admission{Author: account, Rejection: rejection}, nil
	}

	comment := &models.Comment{
		ID:          uuid.New().String(),
		AuthorID:    account.ID,
		PageID:      req.Target.PageID,
		ParagraphID: req.Target.ParagraphID,
		ParentID:    req.Target.ParentID,
		Content:     req.Content,
		CreatedAt:   now,
	}
	if req.OriginIP != "" {
		ip := req.OriginIP
		comment.OriginIP = &ip
	}

	if err := g.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.NewDatabaseError("create comment", err)
	}
	metrics.RecordAdmission("admitted")

	if !account.IsPrivileged() {
		if err := g.accounts.UpdateLastCommentAt(ctx, account.ID, now); err != nil {
			// the comment is stored, the throttle window is lost for this one comment
			logger.WithError(err).Error("Failed to update last comment time")
		} else {
			account.LastCommentAt = &now
		}
	}

	return &Admission{Comment: comment, Author: account}, nil
}

func validateAdmitRequest(req AdmitRequest) error {
	if req.AuthorID == "" {
		return apperrors.NewUnauthorizedError("missing author")
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.NewInvalidParameterError("content", "must not be empty")
	}
	hasPage := req.Target.PageID != nil && *req.Target.PageID != ""
	if hasPage == req.Target.IsParagraph() {
		return apperrors.NewInvalidParameterError("target", "exactly one of pageId or paragraphId is required")
	}
	return nil
}
