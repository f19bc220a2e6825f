package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	execute    *BKashPayment
	executeErr error
	query      *BKashPayment
	queried    int
}

func (g *fakeGateway) CreatePayment(ctx context.Context, amount float64, invoice string) (*BKashPayment, error) {
	return &BKashPayment{PaymentID: "pay-new", BKashURL: "https://checkout.example/pay-new", StatusCode: "0000", Amount: "300.00"}, nil
}

func (g *fakeGateway) ExecutePayment(ctx context.Context, paymentID string) (*BKashPayment, error) {
	return g.execute, g.executeErr
}

func (g *fakeGateway) QueryPayment(ctx context.Context, paymentID string) (*BKashPayment, error) {
	g.queried++
	if g.query == nil {
		return nil, errors.New("query unavailable")
	}
	return g.query, nil
}

func completedPayment(id string) *BKashPayment {
	return &BKashPayment{
		PaymentID:         id,
		StatusCode:        "0000",
		TransactionStatus: "Completed",
		TrxID:             "TRX-" + id,
		Amount:            "300.00",
		CustomerMsisdn:    "01700000000",
	}
}

func callback(t *testing.T, svc *PaymentService, query string) *url.URL {
	t.Helper()
	app := newTestApp("GET", "/bkash/callback", svc.Callback)
	resp, err := app.Test(httptest.NewRequest("GET", "/bkash/callback?"+query, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestCallbackRecordsCompletedPayment(t *testing.T) {
	f := newFixture(t)
	svc := NewPaymentService(f.db, &fakeGateway{execute: completedPayment("pay-1")}, 300, "https://olympiad.example")

	loc := callback(t, svc, "paymentID=pay-1&status=success")
	assert.Equal(t, "/registration", loc.Path)
	assert.Equal(t, "3", loc.Query().Get("step"))
	token := loc.Query().Get("token")
	require.NotEmpty(t, token)

	var v models.PaymentVerification
	require.NoError(t, f.db.First(&v, "payment_id = ?", "pay-1").Error)
	assert.Equal(t, token, v.VerificationToken)
	assert.Equal(t, models.PaymentCompleted, v.Status)
	assert.Equal(t, 300.0, v.Amount)
	assert.Equal(t, "01700000000", v.CustomerNumber)

	again := callback(t, svc, "paymentID=pay-1&status=success")
	assert.Equal(t, token, again.Query().Get("token"), "a repeated callback reuses the verification")
}

func TestCallbackFallsBackToQuery(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{executeErr: errors.New("timeout"), query: completedPayment("pay-2")}
	svc := NewPaymentService(f.db, gw, 300, "https://olympiad.example")

	loc := callback(t, svc, "paymentID=pay-2&status=success")
	assert.Equal(t, "/registration", loc.Path)
	assert.Equal(t, 1, gw.queried)
}

func TestCallbackFailures(t *testing.T) {
	f := newFixture(t)
	pending := &BKashPayment{PaymentID: "pay-3", StatusCode: "2056", StatusMessage: "Invalid Payment State"}
	svc := NewPaymentService(f.db, &fakeGateway{execute: pending}, 300, "https://olympiad.example")

	loc := callback(t, svc, "paymentID=pay-3&status=cancel")
	assert.Equal(t, "/payment-failed", loc.Path)
	assert.Equal(t, "cancel", loc.Query().Get("status"))

	loc = callback(t, svc, "paymentID=pay-3&status=success")
	assert.Equal(t, "/payment-failed", loc.Path)
	assert.Equal(t, "Invalid Payment State", loc.Query().Get("message"))

	loc = callback(t, NewPaymentService(f.db, &fakeGateway{executeErr: errors.New("down")}, 300, ""), "paymentID=pay-3&status=success")
	assert.Equal(t, "verification_failed", loc.Query().Get("error"))

	var n int64
	require.NoError(t, f.db.Model(&models.PaymentVerification{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreatePaymentWithoutGateway(t *testing.T) {
	f := newFixture(t)
	app := newTestApp("POST", "/bkash/create", NewPaymentService(f.db, nil, 300, "").CreatePayment)
	resp, _ := doJSON(t, app, "POST", "/bkash/create", "u1", "", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInvoiceFallsBackToPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewPaymentService(f.db, nil, 300, "")
	p := f.participant(t, "u1", 3, 1)

	_, err := svc.InvoiceFor(ctx, "u1")
	assert.Equal(t, 404, StatusFor(err))

	pay := completedPayment("pay-9")
	pay.CustomerMsisdn = p.Phone
	v, err := svc.Record(ctx, "pay-9", pay)
	require.NoError(t, err)

	inv, err := svc.InvoiceFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pay-9", inv.PaymentID)
	assert.Equal(t, 300.0, inv.Amount)
	assert.Len(t, inv.InvoiceNumber, len("ZO-")+8)
	assert.Equal(t, v.TrxID, inv.TrxID)
}

func TestBKashClientCachesToken(t *testing.T) {
	freezeClock(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t)
	var grants, executes atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tokenized-checkout/auth/grant-token":
			grants.Add(1)
			assert.Equal(t, "merchant", r.Header.Get("username"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id_token": "tok-1", "statusCode": "0000"})
		case "/tokenized-checkout/payment/execute":
			executes.Add(1)
			assert.Equal(t, "tok-1", r.Header.Get("Authorization"))
			assert.Equal(t, "app-key", r.Header.Get("X-App-Key"))
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(completedPayment(body["paymentId"]))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewBKashClient(config.BKashConfig{
		BaseURL:  srv.URL,
		Username: "merchant",
		Password: "secret",
		AppKey:   "app-key",
	}, f.db, srv.Client())

	ctx := context.Background()
	p, err := client.ExecutePayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, p.Completed())
	assert.Equal(t, "pay-1", p.PaymentID)
	_, err = client.ExecutePayment(ctx, "pay-2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, grants.Load())

	freezeClock(t, now().Add(time.Hour))
	_, err = client.ExecutePayment(ctx, "pay-3")
	require.NoError(t, err)
	assert.EqualValues(t, 2, grants.Load(), "an expired token is granted again")
	assert.EqualValues(t, 3, executes.Load())

	_, err = client.QueryPayment(ctx, "pay-4")
	assert.ErrorContains(t, err, "404")
}
