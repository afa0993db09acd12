package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/repository"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"
)

// memStore backs every fake repository. One mutex stands in for the
// conversation row lock, so each fake write is atomic like its SQL version.
type memStore struct {
	mu sync.Mutex

	users         map[int64]*domain.UserProfile
	conversations map[int64]*domain.Conversation
	messages      map[int64]*domain.Message
	notifications map[int64]*domain.Notification

	nextConversationID int64
	nextMessageID      int64
	nextNotificationID int64

	// staleLookups makes the next GetByPair calls miss, to simulate a
	// concurrent creator winning between lookup and insert.
	staleLookups int
}

func newMemStore(userIDs ...int64) *memStore {
	s := &memStore{
		users:         make(map[int64]*domain.UserProfile),
		conversations: make(map[int64]*domain.Conversation),
		messages:      make(map[int64]*domain.Message),
		notifications: make(map[int64]*domain.Notification),
	}
	for _, id := range userIDs {
		s.users[id] = &domain.UserProfile{ID: id, Nickname: nickname(id), IsActive: true}
	}
	return s
}

func nickname(id int64) string {
	names := map[int64]string{1: "alice", 2: "bob", 3: "carol"}
	if n, ok := names[id]; ok {
		return n
	}
	return "user"
}

func (s *memStore) conversation(id int64) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conversations[id]
}

func (s *memStore) notificationsFor(userID int64) []*domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Notification
	for _, n := range s.notifications {
		if n.RecipientUserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeConversationRepo struct{ s *memStore }

func (r *fakeConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.conversations {
		if c.ParticipantLow == conv.ParticipantLow && c.ParticipantHigh == conv.ParticipantHigh {
			return apperrors.Conflict("conversation already exists", nil)
		}
	}
	r.s.nextConversationID++
	now := time.Now().UTC()
	stored := &domain.Conversation{
		ID: r.s.nextConversationID, ParticipantLow: conv.ParticipantLow, ParticipantHigh: conv.ParticipantHigh,
		CreatedAt: now, UpdatedAt: now,
	}
	r.s.conversations[stored.ID] = stored
	*conv = *stored
	return nil
}

func (r *fakeConversationRepo) GetByPair(_ context.Context, low, high int64) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.staleLookups > 0 {
		r.s.staleLookups--
		return nil, apperrors.NotFound("conversation not found")
	}
	for _, c := range r.s.conversations {
		if c.ParticipantLow == low && c.ParticipantHigh == high {
			copied := *c
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("conversation not found")
}

func (r *fakeConversationRepo) GetByID(_ context.Context, id int64) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	copied := *c
	return &copied, nil
}

func (r *fakeConversationRepo) ListForUser(_ context.Context, userID int64, limit, offset int) ([]*domain.Conversation, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*domain.Conversation
	for _, c := range r.s.conversations {
		if c.HasParticipant(userID) {
			copied := *c
			all = append(all, &copied)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch {
		case a.LastMessageAt == nil && b.LastMessageAt == nil:
			return a.ID > b.ID
		case a.LastMessageAt == nil:
			return false
		case b.LastMessageAt == nil:
			return true
		case !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		default:
			return a.ID > b.ID
		}
	})
	total := len(all)
	if offset >= total {
		return []*domain.Conversation{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *fakeConversationRepo) SumUnreadForUser(_ context.Context, userID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := 0
	for _, c := range r.s.conversations {
		total += c.UnreadFor(userID)
	}
	return total, nil
}

func (r *fakeConversationRepo) RecomputeUnread(_ context.Context, id int64) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	c.UnreadLow, c.UnreadHigh = 0, 0
	for _, m := range r.s.messages {
		if m.ConversationID != id || m.IsRead || m.IsDeleted {
			continue
		}
		if m.ReceiverID == c.ParticipantLow {
			c.UnreadLow++
		} else {
			c.UnreadHigh++
		}
	}
	copied := *c
	return &copied, nil
}

func (r *fakeConversationRepo) ListIDsAfter(_ context.Context, afterID int64, limit int) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id := range r.s.conversations {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// setUnread mirrors unreadCounter: decrements clamp at zero.
func setUnread(c *domain.Conversation, participantID int64, delta int) {
	if participantID == c.ParticipantLow {
		c.UnreadLow = max(0, c.UnreadLow+delta)
	} else {
		c.UnreadHigh = max(0, c.UnreadHigh+delta)
	}
}

type fakeMessageRepo struct {
	s *memStore
	// afterMark runs inside MarkAllReadForParticipant after its select, with the
	// store unlocked, to interleave a concurrent writer.
	afterMark func()
}

func (r *fakeMessageRepo) Append(_ context.Context, message *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[message.ConversationID]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	if !c.HasParticipant(message.SenderID) {
		return apperrors.Forbidden("sender is not a participant of this conversation")
	}
	if c.OtherParticipant(message.SenderID) != message.ReceiverID {
		return apperrors.Validation("receiver is not the other participant of this conversation")
	}
	setUnread(c, message.ReceiverID, 1)
	now := time.Now().UTC()
	summary := message.Summary()
	c.LastMessageSummary = &summary
	c.LastMessageAt = &now

	r.s.nextMessageID++
	message.ID = r.s.nextMessageID
	message.CreatedAt = now
	message.IsRead = false
	stored := *message
	r.s.messages[stored.ID] = &stored
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, apperrors.NotFound("message not found")
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMessageRepo) ListPage(_ context.Context, conversationID int64, limit, offset int) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*domain.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && !m.IsDeleted {
			copied := *m
			all = append(all, &copied)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []*domain.Message{}, nil
	}
	end := min(offset+limit, len(all))
	page := all[offset:end]
	sort.Slice(page, func(i, j int) bool { return page[i].ID < page[j].ID })
	return page, nil
}

func (r *fakeMessageRepo) MarkAllReadForParticipant(_ context.Context, conversationID, participantID int64) (int, error) {
	r.s.mu.Lock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		r.s.mu.Unlock()
		return 0, apperrors.NotFound("conversation not found")
	}
	if !c.HasParticipant(participantID) {
		r.s.mu.Unlock()
		return 0, apperrors.Forbidden("not a participant of this conversation")
	}
	var selected []*domain.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && m.ReceiverID == participantID && !m.IsRead && !m.IsDeleted {
			selected = append(selected, m)
		}
	}
	r.s.mu.Unlock()

	if r.afterMark != nil {
		r.afterMark()
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	for _, m := range selected {
		m.IsRead = true
		m.ReadAt = &now
	}
	setUnread(c, participantID, -len(selected))
	return len(selected), nil
}

func (r *fakeMessageRepo) SoftDelete(_ context.Context, messageID, requesterID int64) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok || m.IsDeleted {
		return nil, apperrors.NotFound("message not found")
	}
	if m.SenderID != requesterID {
		return nil, apperrors.Forbidden("only the sender can delete a message")
	}
	m.IsDeleted = true
	if !m.IsRead {
		setUnread(r.s.conversations[m.ConversationID], m.ReceiverID, -1)
	}
	copied := *m
	return &copied, nil
}

type fakeNotificationRepo struct {
	s         *memStore
	createErr error
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) (bool, error) {
	if r.createErr != nil {
		return false, r.createErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if domain.IsDeduplicated(n.Type) {
		for _, existing := range r.s.notifications {
			if !existing.IsRead && existing.RecipientUserID == n.RecipientUserID && existing.Type == n.Type &&
				sameActor(existing.ActorUserID, n.ActorUserID) &&
				existing.TargetType == n.TargetType && existing.TargetID == n.TargetID {
				existing.Title, existing.Content = n.Title, n.Content
				*n = *existing
				return false, nil
			}
		}
	}
	r.s.nextNotificationID++
	n.ID = r.s.nextNotificationID
	n.CreatedAt = time.Now().UTC()
	stored := *n
	r.s.notifications[n.ID] = &stored
	return true, nil
}

func sameActor(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *fakeNotificationRepo) CreateSystemBatch(_ context.Context, recipientIDs []int64, broadcast domain.SystemBroadcast) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range recipientIDs {
		r.s.nextNotificationID++
		r.s.notifications[r.s.nextNotificationID] = &domain.Notification{
			ID: r.s.nextNotificationID, RecipientUserID: id, Type: domain.NotificationTypeSystem,
			Title: broadcast.Title, Content: broadcast.Content, TargetType: domain.TargetTypeSystem, TargetID: id,
			Link: broadcast.Link, CreatedAt: time.Now().UTC(),
		}
	}
	return int64(len(recipientIDs)), nil
}

func (r *fakeNotificationRepo) GetForUser(_ context.Context, id, userID int64) (*domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.RecipientUserID != userID {
		return nil, apperrors.NotFound("notification not found")
	}
	copied := *n
	return &copied, nil
}

func (r *fakeNotificationRepo) List(_ context.Context, userID int64, filter domain.NotificationListFilter) ([]*domain.Notification, int, error) {
	var matched []*domain.Notification
	for _, n := range r.s.notificationsFor(userID) {
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	offset := (filter.Page - 1) * filter.Limit
	if offset >= total {
		return []*domain.Notification{}, total, nil
	}
	return matched[offset:min(offset+filter.Limit, total)], total, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, userID int64) (int, error) {
	count := 0
	for _, n := range r.s.notificationsFor(userID) {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, id, userID int64) (*domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.RecipientUserID != userID {
		return nil, apperrors.NotFound("notification not found")
	}
	if !n.IsRead {
		now := time.Now().UTC()
		n.IsRead, n.ReadAt = true, &now
	}
	copied := *n
	return &copied, nil
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	now := time.Now().UTC()
	for _, n := range r.s.notifications {
		if n.RecipientUserID == userID && !n.IsRead {
			n.IsRead, n.ReadAt = true, &now
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) DeleteMany(_ context.Context, ids []int64, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, id := range ids {
		if n, ok := r.s.notifications[id]; ok && n.RecipientUserID == userID {
			delete(r.s.notifications, id)
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) ClearRead(_ context.Context, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for id, n := range r.s.notifications {
		if n.RecipientUserID == userID && n.IsRead {
			delete(r.s.notifications, id)
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct{ s *memStore }

func (r *fakeUserRepo) IsActive(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	return ok && u.IsActive, nil
}

func (r *fakeUserRepo) GetProfiles(_ context.Context, ids []int64) (map[int64]*domain.UserProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]*domain.UserProfile, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			copied := *u
			out[id] = &copied
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ListActiveIDsAfter(_ context.Context, afterID int64, limit int) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, u := range r.s.users {
		if id > afterID && u.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type fakeUnreadCache struct {
	mu          sync.Mutex
	totals      map[int64]int
	invalidated map[int64]int
}

func newFakeUnreadCache() *fakeUnreadCache {
	return &fakeUnreadCache{totals: make(map[int64]int), invalidated: make(map[int64]int)}
}

// Version uses the invalidation count, which moves exactly when the real
// cache bumps its version key.
func (c *fakeUnreadCache) Version(_ context.Context, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.invalidated[userID]), nil
}

func (c *fakeUnreadCache) SetIfVersion(_ context.Context, userID int64, total int, version int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int64(c.invalidated[userID]) != version {
		return false, nil
	}
	c.totals[userID] = total
	return true, nil
}

func (c *fakeUnreadCache) Get(_ context.Context, userID int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, ok := c.totals[userID]
	return total, ok, nil
}

func (c *fakeUnreadCache) Invalidate(_ context.Context, userIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.totals, id)
		c.invalidated[id]++
	}
	return nil
}

func (c *fakeUnreadCache) invalidations(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated[userID]
}

type fakeRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (r *fakeRateLimitRepo) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int64)
	}
	r.counts[key]++
	return r.counts[key], nil
}

type fakeAuditRepo struct {
	mu   sync.Mutex
	logs []*domain.AuditLog
	err  error
}

func (r *fakeAuditRepo) CreateLog(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	entry.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, entry)
	return nil
}

func (r *fakeAuditRepo) ListRecent(_ context.Context, eventType string, limit int) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if eventType == "" || r.logs[i].EventType == eventType {
			out = append(out, r.logs[i])
		}
	}
	return out, nil
}

type pushed struct {
	UserID int64
	Env    domain.Envelope
}

type recordingPublisher struct {
	mu         sync.Mutex
	pushes     []pushed
	broadcasts []domain.Envelope
	panics     bool
}

func (p *recordingPublisher) Push(_ context.Context, userID int64, env domain.Envelope) {
	if p.panics {
		panic("socket exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{UserID: userID, Env: env})
}

func (p *recordingPublisher) Broadcast(_ context.Context, env domain.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, env)
}

func (p *recordingPublisher) pushesOf(eventType string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, push := range p.pushes {
		if push.Env.Type == eventType {
			out = append(out, push)
		}
	}
	return out
}

type recordingQueue struct {
	mu         sync.Mutex
	broadcasts []domain.SystemBroadcast
}

func (q *recordingQueue) EnqueueSystemBroadcast(_ context.Context, broadcast domain.SystemBroadcast) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.broadcasts = append(q.broadcasts, broadcast)
	return nil
}

// harness wires real services over the fakes.
type harness struct {
	store         *memStore
	messages      *fakeMessageRepo
	notifications *fakeNotificationRepo
	cache         *fakeUnreadCache
	publisher     *recordingPublisher
	queue         *recordingQueue
	audit         *fakeAuditRepo
	services      *Services
}

func testConfig() *config.Config {
	return &config.Config{
		Messaging: config.MessagingConfig{
			MaxContentLength: 2000,
			SendLimit:        1000,
			SendWindow:       time.Minute,
			MaxPageSize:      100,
		},
		Notification: config.NotificationConfig{
			BroadcastBatchSize: 1000,
			SideEffectTimeout:  time.Second,
			MaxPageSize:        50,
		},
	}
}

func newHarness(cfg *config.Config, userIDs ...int64) *harness {
	store := newMemStore(userIDs...)
	h := &harness{
		store:         store,
		messages:      &fakeMessageRepo{s: store},
		notifications: &fakeNotificationRepo{s: store},
		cache:         newFakeUnreadCache(),
		publisher:     &recordingPublisher{},
		queue:         &recordingQueue{},
		audit:         &fakeAuditRepo{},
	}
	repos := &repository.Repositories{
		Conversation: &fakeConversationRepo{s: store},
		Message:      h.messages,
		Notification: h.notifications,
		User:         &fakeUserRepo{s: store},
		UnreadCache:  h.cache,
		RateLimit:    &fakeRateLimitRepo{},
		Audit:        h.audit,
	}
	h.services = NewServices(repos, h.publisher, nil, h.queue, cfg, logger.Nop())
	return h
}
