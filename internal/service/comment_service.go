package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/wiki-engagement/internal/clock"
	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/metrics"
)

// CommentServiceConfig contains configuration for the comment service
type CommentServiceConfig struct {
	Guard    *Guard
	Detector *AbuseDetector
	Fanout   *Fanout
	Accounts AccountRepository
	Comments CommentRepository
	Counter  ParagraphCounter
	Clock    clock.Clock
	Logger   *logging.Logger
}

// CommentService runs the comment pipeline: admission, abuse detection and fan-out
type CommentService struct {
	guard    *Guard
	detector *AbuseDetector
	fanout   *Fanout
	accounts AccountRepository
	comments CommentRepository
	counter  ParagraphCounter
	clock    clock.Clock
	logger   *logging.Logger
}

// NewCommentService creates a new comment service
func NewCommentService(cfg CommentServiceConfig) (*CommentService, error) {
	if cfg.Guard == nil {
		return nil, fmt.Errorf("admission guard is required")
	}
	if cfg.Accounts == nil || cfg.Comments == nil {
		return nil, fmt.Errorf("account and comment repositories are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	return &CommentService{
		guard:    cfg.Guard,
		detector: cfg.Detector,
		fanout:   cfg.Fanout,
		accounts: cfg.Accounts,
		comments: cfg.Comments,
		counter:  cfg.Counter,
		clock:    cfg.Clock,
		logger:   cfg.Logger.WithField("component", "comment_service"),
	}, nil
}

// Create admits and stores a comment, then runs abuse detection and fan-out.
// Abuse detection and fan-out failures never fail an admitted comment.
func (s *CommentService) Create(ctx context.Context, req AdmitRequest) (*Admission, error) {
	admission, err := s.guard.TryAdmit(ctx, req)
	if err != nil || !admission.Admitted() {
		return admission, err
	}
	comment := admission.Comment
	logger := s.logger.WithFields(map[string]interface{}{
		"commentId": comment.ID,
		"authorId":  comment.AuthorID,
	})

	if s.detector != nil && req.OriginIP != "" && !admission.Author.IsPrivileged() {
		if _, err := s.detector.CheckAndFreeze(ctx, req.OriginIP, comment.CreatedAt); err != nil {
			logger.WithError(err).Error("Abuse detection failed")
		}
	}

	if s.fanout != nil {
		count, err := s.fanout.OnCommentCreated(ctx, comment)
		if err != nil {
			metrics.RecordFanoutFailure("comment")
			logger.WithError(err).Error("Comment notification fan-out failed")
		} else if count > 0 {
			logger.WithField("notifications", count).Debug("Comment notifications created")
		}
	}

	return admission, nil
}

// Delete soft-deletes a comment. Only its author or an editor/admin may delete it.
func (s *CommentService) Delete(ctx context.Context, actorID, commentID string) error {
	actor, err := s.accounts.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewUnauthorizedError("unknown account")
		}
		return apperrors.NewDatabaseError("load account", err)
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewNotFoundError("comment", commentID)
		}
		return apperrors.NewDatabaseError("load comment", err)
	}
	if comment.AuthorID != actor.ID && !actor.IsPrivileged() {
		return apperrors.NewForbiddenError("only the author or an editor may delete this comment")
	}
	if comment.IsDeleted {
		return nil
	}

	if err := s.comments.SoftDelete(ctx, commentID, s.clock.Now()); err != nil {
		return apperrors.NewDatabaseError("delete comment", err)
	}
	s.logger.WithFields(map[string]interface{}{
		"commentId": commentID,
		"actorId":   actorID,
	}).Info("Comment deleted")
	return nil
}

// RecalculateParagraphCounts repairs every paragraph comment counter from the stored comments
func (s *CommentService) RecalculateParagraphCounts(ctx context.Context) (int64, error) {
	if s.counter == nil {
		return 0, apperrors.NewServiceUnavailableError("paragraph counter")
	}
	changed, err := s.counter.RecalculateCommentCounts(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError("recalculate comment counts", err)
	}
	s.logger.WithField("changed", changed).Info("Paragraph comment counts recalculated")
	return changed, nil
}
