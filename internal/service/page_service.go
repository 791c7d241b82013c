package service

import (
	"context"

	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/metrics"
)

// PageService reacts to page edits made by the page subsystem
type PageService struct {
	fanout *Fanout
	logger *logging.Logger
}

// NewPageService creates a new page service
func NewPageService(fanout *Fanout, logger *logging.Logger) *PageService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PageService{fanout: fanout, logger: logger.WithField("component", "page_service")}
}

// NotifyUpdated fans out a page update. Failures are logged and swallowed since the edit already succeeded.
func (s *PageService) NotifyUpdated(ctx context.Context, pageID, editorID string) int {
	count, err := s.fanout.OnPageUpdated(ctx, pageID, editorID)
	if err != nil {
		metrics.RecordFanoutFailure("page_update")
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"pageId":   pageID,
			"editorId": editorID,
		}).Error("Page update notification fan-out failed")
	}
	return count
}
