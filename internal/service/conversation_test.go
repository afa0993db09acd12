package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"campus_social/internal/domain"
	apperrors "campus_social/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsSymmetric(t *testing.T) {
	h := newHarness(testConfig(), 1, 2)
	ctx := context.Background()

	ab, err := h.services.Conversation.GetOrCreate(ctx, 1, 2)
	require.NoError(t, err)
	ba, err := h.services.Conversation.GetOrCreate(ctx, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, int64(1), ab.ParticipantLow)
	assert.Equal(t, int64(2), ab.ParticipantHigh)
	assert.Zero(t, ab.UnreadLow)
	assert.Zero(t, ab.UnreadHigh)
}

func TestGetOrCreateConcurrentCallersShareOneRow(t *testing.T) {
	h := newHarness(testConfig(), 7, 9)
	ctx := context.Background()

	const workers = 32
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(7), int64(9)
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := h.services.Conversation.GetOrCreate(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	h.store.mu.Lock()
	assert.Len(t, h.store.conversations, 1)
	h.store.mu.Unlock()
}

func TestGetOrCreateRefetchesAfterLosingInsertRace(t *testing.T) {
	h := newHarness(testConfig(), 1, 2)
	ctx := context.Background()

	winner, err := h.services.Conversation.GetOrCreate(ctx, 2, 1)
	require.NoError(t, err)

	h.store.mu.Lock()
	h.store.staleLookups = 1
	h.store.mu.Unlock()

	conv, err := h.services.Conversation.GetOrCreate(ctx, 1, 2)
	require.NoError(t, err, "conflict must be resolved internally")
	assert.Equal(t, winner.ID, conv.ID)
}

func TestGetOrCreateRejectsSelf(t *testing.T) {
	h := newHarness(testConfig(), 1)

	_, err := h.services.Conversation.GetOrCreate(context.Background(), 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSelfTarget)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestOpenUnknownUser(t *testing.T) {
	h := newHarness(testConfig(), 1)

	_, err := h.services.Conversation.Open(context.Background(), 1, 99)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOpenReturnsOtherUserProfile(t *testing.T) {
	h := newHarness(testConfig(), 1, 2)

	summary, err := h.services.Conversation.Open(context.Background(), 1, 2)
	require.NoError(t, err)
	require.NotNil(t, summary.OtherUser)
	assert.Equal(t, "bob", summary.OtherUser.Nickname)
	assert.Zero(t, summary.UnreadCount)
}

func TestListOrdersByLastMessageAndReportsOwnUnread(t *testing.T) {
	h := newHarness(testConfig(), 1, 2, 3)
	ctx := context.Background()

	_, err := h.services.Message.Send(ctx, 2, 1, "from bob", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = h.services.Message.Send(ctx, 3, 1, "from carol", "")
	require.NoError(t, err)
	_, err = h.services.Message.Send(ctx, 3, 1, "again", "")
	require.NoError(t, err)
	h.services.Dispatcher.Wait()

	page, err := h.services.Conversation.List(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Conversations, 2)

	assert.Equal(t, "carol", page.Conversations[0].OtherUser.Nickname)
	assert.Equal(t, 2, page.Conversations[0].UnreadCount)
	assert.Equal(t, "bob", page.Conversations[1].OtherUser.Nickname)
	assert.Equal(t, 1, page.Conversations[1].UnreadCount)
	assert.Equal(t, domain.Pagination{Page: 1, PageSize: 10, Total: 2, HasMore: false}, page.Pagination)

	carolSide, err := h.services.Conversation.List(ctx, 3, 1, 10)
	require.NoError(t, err)
	require.Len(t, carolSide.Conversations, 1)
	assert.Zero(t, carolSide.Conversations[0].UnreadCount, "the sender's own counter is untouched")
}
