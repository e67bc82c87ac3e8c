package routes

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	stripe "github.com/stripe/stripe-go/v76"
)

type fakePaymentUpdater struct {
	succeeded []string
	failed    []string
	canceled  []string
	checkouts []string
}

func (f *fakePaymentUpdater) PaymentSucceeded(id string) error {
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakePaymentUpdater) PaymentFailed(id string) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakePaymentUpdater) PaymentCanceled(id string) error {
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakePaymentUpdater) CheckoutCompleted(id string) error {
	f.checkouts = append(f.checkouts, id)
	return nil
}

const webhookTestSecret = "whsec_testsecret"

func buildWebhookApp(t *testing.T) (*iris.Application, *fakePaymentUpdater) {
	t.Helper()
	os.Setenv("STRIPE_WEBHOOK_SECRET", webhookTestSecret)

	updater := &fakePaymentUpdater{}
	Payments = updater

	app := iris.New()
	app.Post("/api/webhook/stripe", StripeWebhook)
	if err := app.Build(); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return app, updater
}

// signStripePayload reproduces Stripe's v1 signature scheme:
// HMAC-SHA256(secret, "<timestamp>.<payload>").
func signStripePayload(payload, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(app *iris.Application, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func eventPayload(eventType, objectID string) string {
	return fmt.Sprintf(`{
		"id": "evt_test",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q}}
	}`, stripe.APIVersion, eventType, objectID)
}

func TestStripeWebhookSucceededEvent(t *testing.T) {
	app, updater := buildWebhookApp(t)

	payload := eventPayload("payment_intent.succeeded", "pi_123")
	resp := postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, time.Now()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(updater.succeeded) != 1 || updater.succeeded[0] != "pi_123" {
		t.Fatalf("success handler not invoked correctly: %+v", updater.succeeded)
	}
}

func TestStripeWebhookFailureAndCancelEvents(t *testing.T) {
	app, updater := buildWebhookApp(t)

	payload := eventPayload("payment_intent.payment_failed", "pi_f")
	postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, time.Now()))

	payload = eventPayload("payment_intent.canceled", "pi_c")
	postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, time.Now()))

	if len(updater.failed) != 1 || updater.failed[0] != "pi_f" {
		t.Fatalf("failed handler not invoked: %+v", updater.failed)
	}
	if len(updater.canceled) != 1 || updater.canceled[0] != "pi_c" {
		t.Fatalf("canceled handler not invoked: %+v", updater.canceled)
	}
}

func TestStripeWebhookCheckoutCompleted(t *testing.T) {
	app, updater := buildWebhookApp(t)

	payload := eventPayload("checkout.session.completed", "cs_test_1")
	resp := postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, time.Now()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(updater.checkouts) != 1 || updater.checkouts[0] != "cs_test_1" {
		t.Fatalf("checkout handler not invoked: %+v", updater.checkouts)
	}
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	app, updater := buildWebhookApp(t)

	payload := eventPayload("payment_intent.succeeded", "pi_123")
	resp := postWebhook(app, payload, signStripePayload(payload, "whsec_wrong", time.Now()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", resp.Code)
	}
	if len(updater.succeeded) != 0 {
		t.Fatal("handler must not run on signature failure")
	}
}

func TestStripeWebhookStaleTimestamp(t *testing.T) {
	app, updater := buildWebhookApp(t)

	payload := eventPayload("payment_intent.succeeded", "pi_123")
	stale := time.Now().Add(-time.Hour)
	resp := postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, stale))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for stale timestamp, got %d", resp.Code)
	}
	if len(updater.succeeded) != 0 {
		t.Fatal("handler must not run on stale signature")
	}
}

func TestStripeWebhookAcknowledgesInvoiceEvents(t *testing.T) {
	app, updater := buildWebhookApp(t)

	for _, eventType := range []string{"invoice.paid", "invoice.payment_failed"} {
		payload := eventPayload(eventType, "in_1")
		resp := postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, time.Now()))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s must be acknowledged, got %d", eventType, resp.Code)
		}
	}
	if len(updater.succeeded)+len(updater.failed)+len(updater.canceled)+len(updater.checkouts) != 0 {
		t.Fatal("invoice events must not reach any payment handler")
	}
}

func TestStripeWebhookIgnoresUnknownEvents(t *testing.T) {
	app, updater := buildWebhookApp(t)

	payload := eventPayload("customer.created", "cus_1")
	resp := postWebhook(app, payload, signStripePayload(payload, webhookTestSecret, time.Now()))
	if resp.Code != http.StatusOK {
		t.Fatalf("unknown events must be acknowledged, got %d", resp.Code)
	}
	if len(updater.succeeded)+len(updater.failed)+len(updater.canceled)+len(updater.checkouts) != 0 {
		t.Fatal("unknown event must not reach any handler")
	}
}
