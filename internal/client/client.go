package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/session"
)

// ErrBookingNotFound is returned by LookupBooking when no booking matches
var ErrBookingNotFound = errors.New("booking not found")

// TransportError is a failure to get a usable answer from the API: connection
// errors, 5xx responses and unreadable bodies. 4xx responses with a JSON body
// are answers, not transport errors.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, session.ErrNetwork, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, session.ErrNetwork, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, session.ErrNetwork) match any transport failure
func (e *TransportError) Is(target error) bool {
	return target == session.ErrNetwork
}

// TokenSource yields the current session, if any, for bearer authentication
type TokenSource interface {
	GetSession(ctx context.Context) (*session.Session, error)
}

// Client talks to the day-pass API on behalf of the booking flows
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *logrus.Logger
}

// New creates an API client
func New(cfg *config.ClientConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// UseSessionTokens attaches the session token of ts to every request
func (c *Client) UseSessionTokens(ts TokenSource) {
	c.tokens = ts
}

// ============================================================================
// BOOKINGS
// ============================================================================

// VerifyCredentials checks a booking ID / last name pair
func (c *Client) VerifyCredentials(ctx context.Context, req models.VerifyCredentialsRequest) (*models.VerifyCredentialsResponse, error) {
	var resp models.VerifyCredentialsResponse
	if _, err := c.do(ctx, "verify credentials", http.MethodPost, "/api/v1/bookings/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LookupBooking fetches a booking by ID and last name
func (c *Client) LookupBooking(ctx context.Context, bookingID, lastName string) (*models.Booking, error) {
	path := "/api/v1/bookings/" + url.PathEscape(models.NormalizeBookingCode(bookingID)) +
		"?" + url.Values{"last_name": {strings.TrimSpace(lastName)}}.Encode()

	var resp models.GetBookingResponse
	status, err := c.do(ctx, "lookup booking", http.MethodGet, path, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || !resp.Success || resp.Booking == nil {
		return nil, ErrBookingNotFound
	}
	return resp.Booking, nil
}

// CreateBooking persists a paid draft. The server is idempotent on DraftToken.
func (c *Client) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	var resp models.CreateBookingResponse
	if _, err := c.do(ctx, "create booking", http.MethodPost, "/api/v1/bookings", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyBookingCode runs the code-only check. An unknown code is a
// success:false response, not an error.
func (c *Client) VerifyBookingCode(ctx context.Context, code string) (*models.VerifyCodeResponse, error) {
	var resp models.VerifyCodeResponse
	if _, err := c.do(ctx, "verify code", http.MethodPost, "/api/v1/bookings/verify-code", models.VerifyCodeRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ============================================================================
// PICKUPS
// ============================================================================

// CreatePickupRequest submits an on-demand pickup
func (c *Client) CreatePickupRequest(ctx context.Context, req models.CreatePickupRequest) (*models.CreatePickupResponse, error) {
	var resp models.CreatePickupResponse
	if _, err := c.do(ctx, "create pickup request", http.MethodPost, "/api/v1/pickup-requests", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ============================================================================
// CHAT
// ============================================================================

// StartOrResumeChat returns the conversation for an identity
func (c *Client) StartOrResumeChat(ctx context.Context, req models.StartChatRequest) (*models.StartChatResponse, error) {
	var resp models.StartChatResponse
	if _, err := c.do(ctx, "start chat", http.MethodPost, "/api/v1/chat/conversations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchChatMessages returns every message of a conversation
func (c *Client) FetchChatMessages(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	var resp models.ChatMessagesResponse
	if _, err := c.do(ctx, "fetch chat messages", http.MethodGet, chatMessagesPath(conversationID), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("failed to fetch messages: %s", orDefault(resp.Error, "conversation unavailable"))
	}
	return resp.Messages, nil
}

// SendChatMessage posts a message into a conversation
func (c *Client) SendChatMessage(ctx context.Context, conversationID string, req models.SendChatMessageRequest) (*models.ChatMessage, error) {
	var resp models.SendChatMessageResponse
	if _, err := c.do(ctx, "send chat message", http.MethodPost, chatMessagesPath(conversationID), req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Message == nil {
		return nil, fmt.Errorf("failed to send message: %s", orDefault(resp.Error, "message was not accepted"))
	}
	return resp.Message, nil
}

func chatMessagesPath(conversationID string) string {
	return "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
}

// ============================================================================
// TRANSPORT
// ============================================================================

// do sends body as JSON and decodes the answer into dest. It returns the
// status code of any decodable answer below 500.
func (c *Client) do(ctx context.Context, op, method, path string, body, dest interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", shortuuid.New())
	if token := c.sessionToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("op", op).Warn("API call failed")
		return 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode,
		}).Warn("API returned a server error")
		return resp.StatusCode, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(string(raw))}
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return resp.StatusCode, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to parse response: %w", err),
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) sessionToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	s, err := c.tokens.GetSession(ctx)
	if err != nil || s == nil {
		return ""
	}
	return s.Token
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
