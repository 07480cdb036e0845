package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/pricing"
)

// PAYableEnvironmentURLs maps environment names to their IPG endpoint URLs
var PAYableEnvironmentURLs = map[string]string{
	"dev":        "https://payable-ipg-dev.web.app/ipg/dev",
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// PAYableGateway talks to the PAYable IPG
type PAYableGateway struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

type payableCheckoutRequest struct {
	MerchantKey       string `json:"merchantKey"`
	LogoURL           string `json:"logoUrl,omitempty"`
	ReturnURL         string `json:"returnUrl"`
	WebhookURL        string `json:"webhookUrl,omitempty"`
	PaymentType       int    `json:"paymentType"` // 1 = one-time
	InvoiceID         string `json:"invoiceId"`
	Amount            string `json:"amount"`
	CurrencyCode      string `json:"currencyCode"`
	OrderDescription  string `json:"orderDescription,omitempty"`
	CustomerFirstName string `json:"customerFirstName"`
	CustomerLastName  string `json:"customerLastName"`
	CustomerEmail     string `json:"customerEmail"`
	CustomerPhone     string `json:"customerMobilePhone"`
	CheckValue        string `json:"checkValue"`
	IntegrationType   string `json:"integrationType"`
}

type payableCheckoutResponse struct {
	Status          string `json:"status"`
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
	PaymentPage     string `json:"paymentPage"`
	Message         string `json:"message,omitempty"`
}

type payableStatusRequest struct {
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
}

type payableStatusResponse struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"` // PENDING, SUCCESS, FAILED, CANCELLED
	Amount        string `json:"amount"`
	InvoiceID     string `json:"invoiceId"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Checkout is a started PAYable payment the customer completes on PaymentPage
type Checkout struct {
	UID             string
	StatusIndicator string
	PaymentPage     string
}

// Token returns the payment token Authorize expects once the customer returns
func (c *Checkout) Token() string {
	return c.UID + ":" + c.StatusIndicator
}

// NewPAYableGateway creates a PAYable gateway
func NewPAYableGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *PAYableGateway {
	return &PAYableGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateCheckValue creates the SHA-512 checkValue:
// upper(hex(sha512(merchantKey|invoiceId|amount|currency|upper(hex(sha512(merchantToken))))))
func (g *PAYableGateway) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	tokenHash := sha512.Sum512([]byte(g.config.MerchantToken))
	data := strings.Join([]string{
		g.config.MerchantKey,
		invoiceID,
		amount,
		currencyCode,
		strings.ToUpper(hex.EncodeToString(tokenHash[:])),
	}, "|")
	sum := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (g *PAYableGateway) endpoint() string {
	if g.config.BaseURL != "" {
		return strings.TrimRight(g.config.BaseURL, "/") + "/ipg/" + g.config.Environment
	}
	if url, ok := PAYableEnvironmentURLs[g.config.Environment]; ok {
		return url
	}
	return PAYableEnvironmentURLs["sandbox"]
}

// Initiate opens a checkout for charge
func (g *PAYableGateway) Initiate(ctx context.Context, charge Charge) (*Checkout, error) {
	if g.config.MerchantKey == "" || g.config.MerchantToken == "" {
		return nil, fmt.Errorf("payment gateway not configured: missing merchant credentials")
	}

	amount := pricing.FormatAmount(charge.Amount)
	first, last := splitName(charge.CustomerName)
	req := &payableCheckoutRequest{
		MerchantKey:       g.config.MerchantKey,
		LogoURL:           g.config.LogoURL,
		ReturnURL:         g.config.ReturnURL,
		WebhookURL:        g.config.WebhookURL,
		PaymentType:       1,
		InvoiceID:         charge.InvoiceID,
		Amount:            amount,
		CurrencyCode:      charge.Currency,
		OrderDescription:  charge.Description,
		CustomerFirstName: first,
		CustomerLastName:  last,
		CustomerEmail:     charge.CustomerEmail,
		CustomerPhone:     charge.CustomerPhone,
		CheckValue:        g.GenerateCheckValue(charge.InvoiceID, amount, charge.Currency),
		IntegrationType:   "DayPass",
	}

	var resp payableCheckoutResponse
	if err := g.post(ctx, g.endpoint(), req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" && resp.Status != "PENDING" {
		return nil, fmt.Errorf("payment initiation failed: %s", resp.Message)
	}
	if resp.PaymentPage == "" {
		return nil, fmt.Errorf("payment initiation failed: no payment page URL returned")
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id": charge.InvoiceID,
		"uid":        resp.UID,
		"amount":     amount,
	}).Info("PAYable checkout initiated")

	return &Checkout{UID: resp.UID, StatusIndicator: resp.StatusIndicator, PaymentPage: resp.PaymentPage}, nil
}

// Authorize confirms the checkout identified by paymentToken ("uid:statusIndicator")
// settled for exactly charge.Amount.
func (g *PAYableGateway) Authorize(ctx context.Context, charge Charge, paymentToken string) (*Authorization, error) {
	uid, indicator, ok := strings.Cut(paymentToken, ":")
	if !ok || uid == "" || indicator == "" {
		return nil, ErrInvalidToken
	}

	statusURL := strings.Replace(g.endpoint(), "/ipg/", "/check-status/", 1)
	var resp payableStatusResponse
	if err := g.post(ctx, statusURL, &payableStatusRequest{UID: uid, StatusIndicator: indicator}, &resp); err != nil {
		return nil, err
	}

	if !strings.EqualFold(resp.PaymentStatus, "SUCCESS") {
		return nil, &DeclinedError{Status: resp.PaymentStatus, Reason: resp.Message}
	}
	if want := pricing.FormatAmount(charge.Amount); resp.Amount != want {
		return nil, &DeclinedError{Status: resp.PaymentStatus, Reason: fmt.Sprintf("settled amount %s does not match %s", resp.Amount, want)}
	}

	g.logger.WithFields(logrus.Fields{
		"uid":            uid,
		"transaction_id": resp.TransactionID,
		"invoice_id":     charge.InvoiceID,
	}).Info("PAYable payment authorized")

	return &Authorization{PaymentIntentID: uid, TransactionID: resp.TransactionID, Amount: charge.Amount}, nil
}

func (g *PAYableGateway) post(ctx context.Context, url string, body, dest interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Error("Failed to call PAYable endpoint")
		return fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", "."
	case 1:
		return parts[0], "."
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
