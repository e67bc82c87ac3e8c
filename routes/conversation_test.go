package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"tg-tires-server/models"
	"tg-tires-server/services"
	"tg-tires-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

type scriptedSender struct {
	result services.DeliveryResult
}

func (s *scriptedSender) Send(ctx context.Context, msg *models.Message) services.DeliveryResult {
	return s.result
}

func buildConversationApp(t *testing.T, sms *scriptedSender) (*iris.Application, *services.MemoryConversationRepository) {
	t.Helper()
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")

	repo := services.NewMemoryConversationRepository()
	Messaging = services.NewMessageRouter(repo, nullSink{}, map[string]services.ChannelSender{
		models.ChannelSMS: sms,
	})

	verifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	verifierMiddleware := verifier.Verify(func() interface{} { return new(utils.AccessToken) })

	app := iris.New()
	app.Validator = validator.New()
	conversation := app.Party("/api/conversation", verifierMiddleware)
	{
		conversation.Get("/{id}", GetConversation)
		conversation.Post("/{id}/reply", SendReply)
		conversation.Patch("/{id}/close", CloseConversation)
		conversation.Patch("/{id}/archive", ArchiveConversation)
	}
	if err := app.Build(); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return app, repo
}

func signAccessToken(t *testing.T, userID uint) string {
	t.Helper()
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), 0)
	token, err := signer.Sign(utils.AccessToken{ID: userID, Role: "seller"})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return string(token)
}

func doAuthed(app *iris.Application, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func seedConversation(t *testing.T, businessID uint) string {
	t.Helper()
	msg, err := Messaging.HandleIncoming(context.Background(), "+15551234567",
		"Hi, is this tire still available?", models.ChannelSMS, businessID, nil)
	if err != nil {
		t.Fatalf("seed inquiry failed: %v", err)
	}
	return msg.ConversationID
}

func TestSendReplyDelivered(t *testing.T) {
	app, repo := buildConversationApp(t, &scriptedSender{result: services.Delivered()})
	convID := seedConversation(t, 1)
	token := signAccessToken(t, 1)

	resp := doAuthed(app, http.MethodPost, "/api/conversation/"+convID+"/reply",
		`{"content": "Yes it is!"}`, token)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	msgs, _ := repo.Messages(convID)
	if len(msgs) != 2 {
		t.Fatalf("expected history of 2, got %d", len(msgs))
	}
	if msgs[1].Content != "Yes it is!" || msgs[1].Direction != models.MessageOutbound {
		t.Fatalf("unexpected stored reply: %+v", msgs[1])
	}
}

func TestSendReplyRetryableFailureIs502(t *testing.T) {
	app, repo := buildConversationApp(t,
		&scriptedSender{result: services.RetryableFailure(errors.New("carrier timeout"))})
	convID := seedConversation(t, 1)
	token := signAccessToken(t, 1)

	resp := doAuthed(app, http.MethodPost, "/api/conversation/"+convID+"/reply",
		`{"content": "Yes it is!"}`, token)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for retryable failure, got %d", resp.Code)
	}

	msgs, _ := repo.Messages(convID)
	if len(msgs) != 1 {
		t.Fatalf("failed reply persisted; history has %d messages", len(msgs))
	}
}

func TestSendReplyPermanentFailureIs422(t *testing.T) {
	app, _ := buildConversationApp(t,
		&scriptedSender{result: services.PermanentFailure(errors.New("number unreachable"))})
	convID := seedConversation(t, 1)
	token := signAccessToken(t, 1)

	resp := doAuthed(app, http.MethodPost, "/api/conversation/"+convID+"/reply",
		`{"content": "Yes it is!"}`, token)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for permanent failure, got %d", resp.Code)
	}
}

func TestConversationOwnership(t *testing.T) {
	app, _ := buildConversationApp(t, &scriptedSender{result: services.Delivered()})
	convID := seedConversation(t, 1)
	otherToken := signAccessToken(t, 99)

	resp := doAuthed(app, http.MethodGet, "/api/conversation/"+convID, "", otherToken)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign business, got %d", resp.Code)
	}

	resp = doAuthed(app, http.MethodPost, "/api/conversation/"+convID+"/reply",
		`{"content": "hi"}`, otherToken)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 replying to foreign conversation, got %d", resp.Code)
	}
}

func TestCloseThenArchiveConflicts(t *testing.T) {
	app, _ := buildConversationApp(t, &scriptedSender{result: services.Delivered()})
	convID := seedConversation(t, 1)
	token := signAccessToken(t, 1)

	resp := doAuthed(app, http.MethodPatch, "/api/conversation/"+convID+"/close", "", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("close failed with %d", resp.Code)
	}

	resp = doAuthed(app, http.MethodPatch, "/api/conversation/"+convID+"/archive", "", token)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 archiving a closed conversation, got %d", resp.Code)
	}
}

func TestGetConversationHistory(t *testing.T) {
	app, _ := buildConversationApp(t, &scriptedSender{result: services.Delivered()})
	convID := seedConversation(t, 1)
	token := signAccessToken(t, 1)

	resp := doAuthed(app, http.MethodGet, "/api/conversation/"+convID, "", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload struct {
		Conversation    models.Conversation `json:"conversation"`
		CustomerDisplay string              `json:"customerDisplay"`
		Messages        []models.Message    `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if payload.Conversation.Channel != models.ChannelSMS {
		t.Fatalf("unexpected channel %q", payload.Conversation.Channel)
	}
	if payload.CustomerDisplay != "+1 (555) 123-4567" {
		t.Fatalf("customerDisplay = %q, want formatted number", payload.CustomerDisplay)
	}
	if len(payload.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(payload.Messages))
	}
}
