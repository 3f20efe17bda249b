package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/sse"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic != sse.TopicAdmin {
		return errors.New("unexpected topic " + topic)
	}
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func TestAccessService_PublishesActivity(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestAccessService(newMemGrantStore())
	svc.WithActivity(pub)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueParams{TargetPage: model.TargetPageVIP, Permanent: true})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, issued.Grant.Token)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "unknown-token")
	require.NoError(t, err)
	_, err = svc.Revoke(ctx, issued.Grant.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, issued.Grant.ID))

	assert.Equal(t, []string{
		ActivityGrantIssued,
		ActivityGrantValidated,
		ActivityGrantRevoked,
		ActivityGrantDeleted,
	}, pub.types())

	var validated GrantActivity
	require.NoError(t, json.Unmarshal(pub.events[1].Data, &validated))
	assert.Equal(t, issued.Grant.ID, validated.GrantID)
	assert.Equal(t, model.ValidationValid, validated.State)
	assert.True(t, testNow.Equal(validated.At))
}

func TestAccessService_ActivityFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc, _ := newTestAccessService(newMemGrantStore())
	svc.WithActivity(pub)

	_, err := svc.Issue(context.Background(), IssueParams{TargetPage: model.TargetPageMember, Permanent: true})
	assert.NoError(t, err)
	assert.Len(t, pub.types(), 1)
}
