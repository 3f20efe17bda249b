package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/sse"
)

const (
	ActivityGrantIssued    = "grant.issued"
	ActivityGrantValidated = "grant.validated"
	ActivityGrantRevoked   = "grant.revoked"
	ActivityGrantDeleted   = "grant.deleted"
)

// ActivityPublisher fans grant lifecycle events out to live admin dashboards.
type ActivityPublisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

// GrantActivity is the payload of every grant.* event.
type GrantActivity struct {
	GrantID    string                `json:"grantId"`
	TargetPage model.TargetPage      `json:"targetPage,omitempty"`
	State      model.ValidationState `json:"state,omitempty"`
	At         time.Time             `json:"at"`
}

// WithActivity makes s publish grant lifecycle events to p.
func (s *AccessService) WithActivity(p ActivityPublisher) *AccessService {
	s.activity = p
	return s
}

// publish is best effort: a dropped dashboard event never fails the operation.
func (s *AccessService) publish(ctx context.Context, eventType string, activity GrantActivity) {
	if s.activity == nil {
		return
	}
	activity.At = s.now()

	data, err := json.Marshal(activity)
	if err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("failed to encode grant activity")
		return
	}
	if err := s.activity.Publish(ctx, sse.TopicAdmin, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).Str("type", eventType).Str("grantId", activity.GrantID).Msg("failed to publish grant activity")
	}
}
