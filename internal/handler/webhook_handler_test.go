package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"chatpulse-go/internal/model"
	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

type fakeSubscriptionService struct {
	succeeded []string
	failed    []string
	lastPlan  string
}

func (f *fakeSubscriptionService) ListPlans() []service.PlanInfo { return nil }
func (f *fakeSubscriptionService) Current(userID uint) (*model.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionService) PaymentReference(userID uint) string { return "" }
func (f *fakeSubscriptionService) ApplySuccessfulPayment(reference string, amount float64, currency string) error {
	f.succeeded = append(f.succeeded, reference)
	f.lastPlan = model.PlanFromAmount(amount)
	return nil
}
func (f *fakeSubscriptionService) HandleFailedPayment(reference string, amount float64, currency string) error {
	f.failed = append(f.failed, reference)
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/webhooks/flutterwave", h.Flutterwave)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/flutterwave", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("verif-hash", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFlutterwaveValidSignature(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "test-secret")

	body := []byte(`{"event":"charge.completed","data":{"tx_ref":"chatpulse_7_1700000000","amount":99.99,"currency":"USD"}}`)
	w := postWebhook(h, body, signBody("test-secret", body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.succeeded, 1)
	assert.Equal(t, "chatpulse_7_1700000000", svc.succeeded[0])
	assert.Equal(t, model.PlanPro, svc.lastPlan)
}

func TestFlutterwaveInvalidSignature(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "test-secret")

	body := []byte(`{"event":"charge.completed","data":{"tx_ref":"chatpulse_7_1700000000","amount":99.99}}`)
	w := postWebhook(h, body, signBody("wrong-secret", body))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.succeeded)
}

func TestFlutterwaveMissingSignature(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "test-secret")

	w := postWebhook(h, []byte(`{}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlutterwaveNotConfigured(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "")

	body := []byte(`{}`)
	w := postWebhook(h, body, signBody("anything", body))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFlutterwaveFailedPaymentEvent(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "test-secret")

	body := []byte(`{"event":"payment.failed","data":{"tx_ref":"chatpulse_3_1700000001","amount":29.99,"currency":"USD"}}`)
	w := postWebhook(h, body, signBody("test-secret", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.succeeded)
	require.Len(t, svc.failed, 1)
	assert.Equal(t, "chatpulse_3_1700000001", svc.failed[0])
}

func TestFlutterwaveUnknownEventAcknowledged(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "test-secret")

	body := []byte(`{"event":"transfer.completed","data":{}}`)
	w := postWebhook(h, body, signBody("test-secret", body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.succeeded)
	assert.Empty(t, svc.failed)
}

func TestFlutterwaveInvalidJSON(t *testing.T) {
	svc := &fakeSubscriptionService{}
	h := NewWebhookHandler(svc, "test-secret")

	body := []byte(`not json`)
	w := postWebhook(h, body, signBody("test-secret", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
