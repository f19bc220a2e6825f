package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gatewayTokenTTL is how long a granted id token is reused.
const gatewayTokenTTL = 3500 * time.Second

// PaymentGateway is the slice of the bKash tokenized checkout API we use.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, amount float64, invoice string) (*BKashPayment, error)
	ExecutePayment(ctx context.Context, paymentID string) (*BKashPayment, error)
	QueryPayment(ctx context.Context, paymentID string) (*BKashPayment, error)
}

type BKashPayment struct {
	PaymentID         string `json:"paymentID"`
	BKashURL          string `json:"bkashURL,omitempty"`
	StatusCode        string `json:"statusCode"`
	StatusMessage     string `json:"statusMessage"`
	TransactionStatus string `json:"transactionStatus,omitempty"`
	TrxID             string `json:"trxID,omitempty"`
	Amount            string `json:"amount,omitempty"`
	CustomerMsisdn    string `json:"customerMsisdn,omitempty"`
	PayerAccount      string `json:"payerAccount,omitempty"`
}

func (p *BKashPayment) Completed() bool {
	return p.StatusCode == "0000" || p.TransactionStatus == "Completed"
}

func (p *BKashPayment) AmountValue() float64 {
	v, _ := strconv.ParseFloat(p.Amount, 64)
	return v
}

func (p *BKashPayment) Customer() string {
	if p.CustomerMsisdn != "" {
		return p.CustomerMsisdn
	}
	return p.PayerAccount
}

type BKashClient struct {
	Cfg    config.BKashConfig
	DB     *gorm.DB
	Client *http.Client

	mu sync.Mutex
}

func NewBKashClient(cfg config.BKashConfig, db *gorm.DB, client *http.Client) *BKashClient {
	return &BKashClient{Cfg: cfg, DB: db, Client: client}
}

// idToken returns the cached gateway token, granting a new one when the
// cached one is older than gatewayTokenTTL.
func (b *BKashClient) idToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cached models.GatewayToken
	err := b.DB.WithContext(ctx).Where("id = ?", 1).First(&cached).Error
	if err == nil && cached.IDToken != "" && now().Sub(cached.RefreshedAt) < gatewayTokenTTL {
		return cached.IDToken, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("load gateway token: %w", err)
	}

	log.Println("🔑 [BKASH] fetching new id token")
	var grant struct {
		IDToken       string `json:"id_token"`
		StatusCode    string `json:"statusCode"`
		StatusMessage string `json:"statusMessage"`
	}
	headers := map[string]string{"username": b.Cfg.Username, "password": b.Cfg.Password}
	body := map[string]string{"app_key": b.Cfg.AppKey, "app_secret": b.Cfg.AppSecret}
	if err := b.post(ctx, "/tokenized-checkout/auth/grant-token", headers, body, &grant); err != nil {
		return "", err
	}
	if grant.IDToken == "" {
		return "", fmt.Errorf("bkash grant token failed: %s %s", grant.StatusCode, grant.StatusMessage)
	}

	row := models.GatewayToken{ID: 1, IDToken: grant.IDToken, RefreshedAt: now()}
	if err := b.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return "", fmt.Errorf("store gateway token: %w", err)
	}
	return grant.IDToken, nil
}

func (b *BKashClient) authedPost(ctx context.Context, path string, body any) (*BKashPayment, error) {
	token, err := b.idToken(ctx)
	if err != nil {
		return nil, err
	}
	var out BKashPayment
	headers := map[string]string{"Authorization": token, "X-App-Key": b.Cfg.AppKey}
	if err := b.post(ctx, path, headers, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *BKashClient) CreatePayment(ctx context.Context, amount float64, invoice string) (*BKashPayment, error) {
	return b.authedPost(ctx, "/tokenized-checkout/payment/create", map[string]string{
		"mode":                  "0011",
		"payerReference":        "User_Registration",
		"callbackURL":           b.Cfg.CallbackURL,
		"amount":                strconv.FormatFloat(amount, 'f', 2, 64),
		"currency":              "BDT",
		"intent":                "sale",
		"merchantInvoiceNumber": invoice,
	})
}

func (b *BKashClient) ExecutePayment(ctx context.Context, paymentID string) (*BKashPayment, error) {
	return b.authedPost(ctx, "/tokenized-checkout/payment/execute", map[string]string{"paymentId": paymentID})
}

func (b *BKashClient) QueryPayment(ctx context.Context, paymentID string) (*BKashPayment, error) {
	return b.authedPost(ctx, "/tokenized-checkout/query/payment", map[string]string{"paymentId": paymentID})
}

func (b *BKashClient) post(ctx context.Context, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("bkash %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("bkash %s: read body: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bkash %s returned %d: %s", path, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bkash %s: decode: %w", path, err)
	}
	return nil
}
