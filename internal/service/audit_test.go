package service

import (
	"context"
	"errors"
	"testing"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogEvent(t *testing.T) {
	h := newHarness(testConfig(), alice)
	ctx := context.Background()
	admin := alice

	h.services.Audit.LogEvent(ctx, &admin, domain.ActorRoleAdmin, domain.EventTypeSystemBroadcastQueued, map[string]interface{}{"title": "Exam week"})
	h.services.Audit.LogEvent(ctx, nil, domain.ActorRoleSystem, domain.EventTypeUnreadRepaired, nil)

	recent, err := h.services.Audit.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.EventTypeUnreadRepaired, recent[0].EventType)
	assert.NotNil(t, recent[0].Payload)
	assert.False(t, recent[0].EventTime.IsZero())

	queued, err := h.services.Audit.Recent(ctx, domain.EventTypeSystemBroadcastQueued, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, &admin, queued[0].ActorUserID)
}

func TestAuditFailureIsSwallowed(t *testing.T) {
	repo := &fakeAuditRepo{err: errors.New("disk full")}
	svc := NewAuditService(repo, logger.Nop())

	assert.NotPanics(t, func() {
		svc.LogEvent(context.Background(), nil, domain.ActorRoleSystem, domain.EventTypeUnreadRepaired, nil)
	})
}
