package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"voicelink-backend/internal/domain"
)

// MockMessageStore is a mock implementation of MessageStore
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) CreateDirect(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.DirectMessage, error) {
	args := m.Called(ctx, senderID, receiverID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DirectMessage), args.Error(1)
}

func (m *MockMessageStore) CreateGroup(ctx context.Context, senderID, groupID uuid.UUID, content string) (*domain.GroupMessage, error) {
	args := m.Called(ctx, senderID, groupID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroupMessage), args.Error(1)
}

func (m *MockMessageStore) MarkDirectRead(ctx context.Context, messageID, receiverID uuid.UUID) error {
	args := m.Called(ctx, messageID, receiverID)
	return args.Error(0)
}

// MockGroupMembership is a mock implementation of GroupMembership
type MockGroupMembership struct {
	mock.Mock
}

func (m *MockGroupMembership) IsApprovedMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, groupID)
	return args.Bool(0), args.Error(1)
}

func TestDirectMessage_PersistThenBroadcastIncludesSender(t *testing.T) {
	hub := newTestHub()
	store := new(MockMessageStore)
	relay := NewConversationRelay(hub, store, nil, nil)

	sender := newTestClient(hub, "alice")
	peer := newTestClient(hub, "bob")
	room := DirectRoom(sender.UserID(), peer.UserID())
	hub.Join(room, sender)
	hub.Join(room, peer)

	stored := &domain.DirectMessage{
		MessageID:  uuid.New(),
		SenderID:   sender.UserID(),
		ReceiverID: peer.UserID(),
		Content:    "hello",
		CreatedAt:  time.Now().UTC(),
	}
	store.On("CreateDirect", mock.Anything, sender.UserID(), peer.UserID(), "hello").Return(stored, nil)

	handle := relay.DirectHandler(room, peer.UserID())
	handle(context.Background(), sender, []byte(`{"type":"message","content":"hello"}`))

	// both members see the persisted record, generated id included
	for _, member := range []*Client{sender, peer} {
		var event directMessageEvent
		assert.NoError(t, json.Unmarshal(recv(t, member), &event))
		assert.Equal(t, FrameMessage, event.Type)
		assert.Equal(t, stored.MessageID, event.MessageID)
		assert.Equal(t, "alice", event.SenderName)
		assert.Equal(t, "hello", event.Content)
	}

	store.AssertExpectations(t)
}

func TestDirectMessage_EmptyContentNotPersisted(t *testing.T) {
	hub := newTestHub()
	store := new(MockMessageStore)
	relay := NewConversationRelay(hub, store, nil, nil)

	sender := newTestClient(hub, "alice")
	peer := newTestClient(hub, "bob")
	room := DirectRoom(sender.UserID(), peer.UserID())
	hub.Join(room, sender)
	hub.Join(room, peer)

	handle := relay.DirectHandler(room, peer.UserID())
	handle(context.Background(), sender, []byte(`{"type":"message","content":"   "}`))

	var reply errorFrame
	assert.NoError(t, json.Unmarshal(recv(t, sender), &reply))
	assert.NotEmpty(t, reply.Error)
	assert.Nil(t, recv(t, peer))
	store.AssertNotCalled(t, "CreateDirect", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDirectMessage_ReadReceipt(t *testing.T) {
	hub := newTestHub()
	store := new(MockMessageStore)
	relay := NewConversationRelay(hub, store, nil, nil)

	reader := newTestClient(hub, "bob")
	peer := newTestClient(hub, "alice")
	room := DirectRoom(reader.UserID(), peer.UserID())
	hub.Join(room, reader)
	hub.Join(room, peer)

	messageID := uuid.New()
	store.On("MarkDirectRead", mock.Anything, messageID, reader.UserID()).Return(nil)

	handle := relay.DirectHandler(room, peer.UserID())
	handle(context.Background(), reader, []byte(`{"type":"read","message_id":"`+messageID.String()+`"}`))

	var event readEvent
	assert.NoError(t, json.Unmarshal(recv(t, peer), &event))
	assert.Equal(t, FrameRead, event.Type)
	assert.Equal(t, messageID, event.MessageID)
	assert.Equal(t, reader.UserID(), event.ReaderID)
	assert.Nil(t, recv(t, reader), "receipt is not echoed to the reader")

	store.AssertExpectations(t)
}

func TestGroupMessage_NonMemberRejectedWithoutPersistOrBroadcast(t *testing.T) {
	hub := newTestHub()
	store := new(MockMessageStore)
	groups := new(MockGroupMembership)
	relay := NewConversationRelay(hub, store, groups, nil)

	sender := newTestClient(hub, "mallory")
	member := newTestClient(hub, "bob")
	groupID := uuid.New()
	room := GroupRoom(groupID)
	hub.Join(room, sender)
	hub.Join(room, member)

	groups.On("IsApprovedMember", mock.Anything, sender.UserID(), groupID).Return(false, nil)

	handle := relay.GroupHandler(room, groupID)
	handle(context.Background(), sender, []byte(`{"type":"message","content":"hi"}`))

	var reply errorFrame
	assert.NoError(t, json.Unmarshal(recv(t, sender), &reply))
	assert.Contains(t, reply.Error, "not a member")
	assert.Nil(t, recv(t, member))
	store.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	groups.AssertExpectations(t)
}

func TestGroupMessage_MemberMessageBroadcast(t *testing.T) {
	hub := newTestHub()
	store := new(MockMessageStore)
	groups := new(MockGroupMembership)
	relay := NewConversationRelay(hub, store, groups, nil)

	sender := newTestClient(hub, "alice")
	member := newTestClient(hub, "bob")
	groupID := uuid.New()
	room := GroupRoom(groupID)
	hub.Join(room, sender)
	hub.Join(room, member)

	stored := &domain.GroupMessage{
		MessageID: uuid.New(),
		SenderID:  sender.UserID(),
		GroupID:   groupID,
		Content:   "hi all",
		CreatedAt: time.Now().UTC(),
	}
	groups.On("IsApprovedMember", mock.Anything, sender.UserID(), groupID).Return(true, nil)
	store.On("CreateGroup", mock.Anything, sender.UserID(), groupID, "hi all").Return(stored, nil)

	handle := relay.GroupHandler(room, groupID)
	handle(context.Background(), sender, []byte(`{"type":"message","content":"hi all"}`))

	var event groupMessageEvent
	assert.NoError(t, json.Unmarshal(recv(t, member), &event))
	assert.Equal(t, stored.MessageID, event.MessageID)
	assert.Equal(t, groupID, event.GroupID)
	assert.Equal(t, "hi all", event.Content)

	store.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestConversation_MalformedFrame(t *testing.T) {
	hub := newTestHub()
	relay := NewConversationRelay(hub, new(MockMessageStore), nil, nil)

	sender := newTestClient(hub, "alice")
	hub.Join("dm", sender)

	handle := relay.DirectHandler("dm", uuid.New())
	handle(context.Background(), sender, []byte(`hello`))

	assert.JSONEq(t, `{"error":"Invalid JSON"}`, string(recv(t, sender)))
}
