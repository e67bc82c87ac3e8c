package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"tg-tires-server/models"
)

// fakeSender returns a scripted DeliveryResult and records what it was asked
// to send.
type fakeSender struct {
	mu     sync.Mutex
	result DeliveryResult
	sent   []models.Message
}

func (f *fakeSender) Send(ctx context.Context, msg *models.Message) DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *msg)
	return f.result
}

func newTestRouter(smsResult DeliveryResult) (*MessageRouter, *MemoryConversationRepository, *MemoryNotificationSink, *fakeSender) {
	repo := NewMemoryConversationRepository()
	sink := &MemoryNotificationSink{}
	sms := &fakeSender{result: smsResult}
	router := NewMessageRouter(repo, sink, map[string]ChannelSender{
		models.ChannelSMS:   sms,
		models.ChannelEmail: &fakeSender{result: Delivered()},
	})
	return router, repo, sink, sms
}

func TestConversationIDDeterministic(t *testing.T) {
	a := ConversationID(models.ChannelSMS, "+15551234567", 42)
	b := ConversationID(models.ChannelSMS, "+15551234567", 42)
	if a != b {
		t.Fatalf("same triple produced different ids: %s vs %s", a, b)
	}

	if c := ConversationID(models.ChannelEmail, "+15551234567", 42); c == a {
		t.Fatal("different channels must map to different conversations")
	}
	if c := ConversationID(models.ChannelSMS, "+15551234567", 43); c == a {
		t.Fatal("different businesses must map to different conversations")
	}
}

func TestHandleIncomingReusesConversation(t *testing.T) {
	router, repo, sink, _ := newTestRouter(Delivered())

	first, err := router.HandleIncoming(context.Background(), "+15551234567",
		"Hi, is this tire still available?", models.ChannelSMS, 1, nil)
	if err != nil {
		t.Fatalf("first inquiry failed: %v", err)
	}

	second, err := router.HandleIncoming(context.Background(), "+15551234567",
		"Still interested!", models.ChannelSMS, 1, nil)
	if err != nil {
		t.Fatalf("second inquiry failed: %v", err)
	}

	if first.ConversationID != second.ConversationID {
		t.Fatalf("expected one conversation, got %s and %s",
			first.ConversationID, second.ConversationID)
	}

	msgs, _ := repo.Messages(first.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "Hi, is this tire still available?" {
		t.Fatalf("unexpected first message: %q", msgs[0].Content)
	}

	conv, _ := repo.Get(first.ConversationID)
	if !conv.LastMessageAt.Equal(msgs[1].CreatedAt) {
		t.Fatal("LastMessageAt must track the newest message")
	}

	if len(sink.Notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sink.Notifications))
	}
	if sink.Notifications[0].Type != "new_inquiry" {
		t.Fatalf("unexpected notification type %q", sink.Notifications[0].Type)
	}
}

func TestHandleIncomingRejectsBadInput(t *testing.T) {
	router, _, _, _ := newTestRouter(Delivered())

	if _, err := router.HandleIncoming(context.Background(), "+15551234567",
		"hello", "CARRIER_PIGEON", 1, nil); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}

	if _, err := router.HandleIncoming(context.Background(), "+15551234567",
		"   ", models.ChannelSMS, 1, nil); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestHandleIncomingTruncatesLongContent(t *testing.T) {
	router, repo, _, _ := newTestRouter(Delivered())

	long := strings.Repeat("a", 3000)
	msg, err := router.HandleIncoming(context.Background(), "+15551234567",
		long, models.ChannelSMS, 1, nil)
	if err != nil {
		t.Fatalf("inquiry failed: %v", err)
	}
	if got := len([]rune(msg.Content)); got != 2000 {
		t.Fatalf("expected content capped at 2000 runes, got %d", got)
	}

	msgs, _ := repo.Messages(msg.ConversationID)
	if got := len([]rune(msgs[0].Content)); got != 2000 {
		t.Fatalf("stored content not capped, got %d runes", got)
	}
}

func TestSendReplySMSScenario(t *testing.T) {
	router, repo, _, sms := newTestRouter(Delivered())

	inbound, err := router.HandleIncoming(context.Background(), "+15551234567",
		"Hi, is this tire still available?", models.ChannelSMS, 1, nil)
	if err != nil {
		t.Fatalf("inquiry failed: %v", err)
	}

	reply, err := router.SendReply(context.Background(), inbound.ConversationID,
		"Yes it is!", 1, &inbound.ID)
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if reply.Direction != models.MessageOutbound {
		t.Fatalf("expected outbound direction, got %q", reply.Direction)
	}
	if reply.To != "+15551234567" {
		t.Fatalf("reply addressed to %q, want customer number", reply.To)
	}
	if reply.InReplyTo == nil || *reply.InReplyTo != inbound.ID {
		t.Fatal("reply should reference the inbound message")
	}

	if len(sms.sent) != 1 {
		t.Fatalf("expected 1 SMS send, got %d", len(sms.sent))
	}

	msgs, _ := repo.Messages(inbound.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages in history, got %d", len(msgs))
	}
	if msgs[0].Direction != models.MessageInbound || msgs[1].Direction != models.MessageOutbound {
		t.Fatal("history out of order")
	}
}

func TestSendReplyFailureLeavesNoMessage(t *testing.T) {
	router, repo, _, sms := newTestRouter(RetryableFailure(errors.New("carrier timeout")))

	inbound, err := router.HandleIncoming(context.Background(), "+15551234567",
		"Hi there", models.ChannelSMS, 1, nil)
	if err != nil {
		t.Fatalf("inquiry failed: %v", err)
	}

	_, err = router.SendReply(context.Background(), inbound.ConversationID, "reply", 1, nil)
	var delErr *DeliveryError
	if !errors.As(err, &delErr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if delErr.Result.Status != DeliveryRetryable {
		t.Fatalf("expected retryable failure, got %v", delErr.Result.Status)
	}

	msgs, _ := repo.Messages(inbound.ConversationID)
	if len(msgs) != 1 {
		t.Fatalf("failed reply must not be persisted; history has %d messages", len(msgs))
	}

	// Permanent failures surface the same way.
	sms.result = PermanentFailure(errors.New("number unreachable"))
	_, err = router.SendReply(context.Background(), inbound.ConversationID, "reply", 1, nil)
	if !errors.As(err, &delErr) || delErr.Result.Status != DeliveryPermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestSendReplyUnknownConversation(t *testing.T) {
	router, repo, _, _ := newTestRouter(Delivered())

	_, err := router.SendReply(context.Background(), "does-not-exist", "hello", 1, nil)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	convs, _ := repo.ListByBusiness(1)
	if len(convs) != 0 {
		t.Fatal("failed reply must not create a conversation")
	}
}

func TestStatusTransitionsAreOneWay(t *testing.T) {
	router, repo, _, _ := newTestRouter(Delivered())

	inbound, _ := router.HandleIncoming(context.Background(), "customer@example.com",
		"hello", models.ChannelEmail, 7, nil)

	if err := router.CloseConversation(inbound.ConversationID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := router.ArchiveConversation(inbound.ConversationID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after close, got %v", err)
	}
	if err := router.CloseConversation(inbound.ConversationID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("closing twice must fail, got %v", err)
	}

	// A new message from the same customer lands in the same closed
	// conversation rather than opening a duplicate.
	again, err := router.HandleIncoming(context.Background(), "customer@example.com",
		"are you still there?", models.ChannelEmail, 7, nil)
	if err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}
	if again.ConversationID != inbound.ConversationID {
		t.Fatal("follow-up opened a duplicate conversation")
	}

	conv, _ := repo.Get(inbound.ConversationID)
	if conv.Status != models.ConversationClosed {
		t.Fatalf("conversation resurrected to %q", conv.Status)
	}
}

func TestConcurrentIncomingSameConversation(t *testing.T) {
	router, repo, _, _ := newTestRouter(Delivered())

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := router.HandleIncoming(context.Background(), "+15551234567",
				"ping", models.ChannelSMS, 1, nil)
			if err != nil {
				t.Errorf("concurrent inquiry failed: %v", err)
			}
		}()
	}
	wg.Wait()

	id := ConversationID(models.ChannelSMS, "+15551234567", 1)
	msgs, _ := repo.Messages(id)
	if len(msgs) != n {
		t.Fatalf("expected %d messages, got %d", n, len(msgs))
	}

	convs, _ := repo.ListByBusiness(1)
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
}
