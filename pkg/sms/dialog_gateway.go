package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DialogGateway implements SMS sending via Dialog eSMS API v2
type DialogGateway struct {
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client
	logger   *logrus.Logger

	tokenMutex  sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// DialogConfig holds configuration for Dialog SMS Gateway
type DialogConfig struct {
	APIURL   string
	Username string
	Password string
	Mask     string
}

// NewDialogGateway creates a new Dialog SMS Gateway client
func NewDialogGateway(config DialogConfig, logger *logrus.Logger) *DialogGateway {
	return &DialogGateway{
		apiURL:   config.APIURL,
		username: config.Username,
		password: config.Password,
		mask:     config.Mask,
		logger:   logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response structure
type LoginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

// SMSRecipient represents a single SMS recipient
type SMSRecipient struct {
	Mobile string `json:"mobile"`
}

// SendSMSRequest represents the SMS sending request structure
type SendSMSRequest struct {
	MSISDN        []SMSRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
	PaymentMethod int            `json:"payment_method,omitempty"` // 0 = wallet, 4 = package
}

// SendSMSResponse represents the SMS sending response structure
type SendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID   int     `json:"campaignId"`
		CampaignCost float64 `json:"campaignCost"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// login retrieves an access token
func (d *DialogGateway) login(ctx context.Context) error {
	var loginResp LoginResponse
	if err := d.post(ctx, "/login", "", LoginRequest{Username: d.username, Password: d.password}, &loginResp); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	if loginResp.Status != "success" {
		return fmt.Errorf("login failed: %s (error code: %s)", loginResp.Comment, loginResp.ErrCode)
	}

	d.tokenMutex.Lock()
	d.token = loginResp.Token
	d.tokenExpiry = time.Now().Add(time.Duration(loginResp.Expiration) * time.Second)
	d.tokenMutex.Unlock()
	return nil
}

// currentToken returns a token valid for at least five more minutes, logging in if needed
func (d *DialogGateway) currentToken(ctx context.Context) (string, error) {
	d.tokenMutex.RLock()
	token, expiry := d.token, d.tokenExpiry
	d.tokenMutex.RUnlock()

	if token != "" && time.Now().Before(expiry.Add(-5*time.Minute)) {
		return token, nil
	}
	if err := d.login(ctx); err != nil {
		return "", err
	}

	d.tokenMutex.RLock()
	defer d.tokenMutex.RUnlock()
	return d.token, nil
}

// Send delivers a single message
func (d *DialogGateway) Send(ctx context.Context, phone, message string) (int64, error) {
	msisdn, err := FormatMSISDN(phone)
	if err != nil {
		return 0, fmt.Errorf("invalid phone number: %w", err)
	}

	token, err := d.currentToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	transactionID := time.Now().UnixMicro()
	smsReq := SendSMSRequest{
		MSISDN:        []SMSRecipient{{Mobile: msisdn}},
		Message:       message,
		SourceAddress: d.mask,
		TransactionID: transactionID,
	}

	var smsResp SendSMSResponse
	if err := d.post(ctx, "/sms", token, smsReq, &smsResp); err != nil {
		return 0, fmt.Errorf("failed to send SMS: %w", err)
	}
	if smsResp.Status != "success" {
		d.logger.WithFields(logrus.Fields{
			"comment":  smsResp.Comment,
			"err_code": smsResp.ErrCode,
		}).Warn("Dialog API rejected SMS")
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", smsResp.Comment, smsResp.ErrCode)
	}

	d.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"campaign_id":    smsResp.Data.CampaignID,
	}).Info("SMS sent via Dialog")
	return transactionID, nil
}

func (d *DialogGateway) post(ctx context.Context, path, token string, body, dest interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// GetName returns the name of this SMS gateway
func (d *DialogGateway) GetName() string {
	return "Dialog API v2 Gateway"
}
