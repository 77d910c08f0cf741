package application

import (
	"context"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// ListActivity returns the caller's own audit trail, newest first.
func (s *Service) ListActivity(ctx context.Context, claims ports.AuthClaims, q ActivityQuery) ([]ActivityItem, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	var since *time.Time
	if q.Days > 0 {
		t := s.nowFn().Add(-time.Duration(q.Days) * 24 * time.Hour)
		since = &t
	}

	uid := claims.UserID
	entries, err := s.recorder.Query(ctx, ports.AuditQuery{
		UserID: &uid,
		Action: strings.ToUpper(strings.TrimSpace(q.Action)),
		Since:  since,
	}, q.Limit, offset)
	if err != nil {
		return nil, err
	}

	result := make([]ActivityItem, 0, len(entries))
	for _, entry := range entries {
		result = append(result, ActivityItem{
			ID:        entry.ID,
			Action:    entry.Action,
			Resource:  entry.Resource,
			Details:   entry.Details,
			IPAddress: entry.IPAddress,
			Success:   entry.Success,
			Timestamp: entry.Timestamp,
		})
	}
	return result, nil
}
