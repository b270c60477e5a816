package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voltgate/ev-session-service/internal/config"
	"github.com/voltgate/ev-session-service/internal/domain"
)

const (
	apiVersion  = "2026-01-22"
	sandboxBase = "https://connect.squareupsandbox.com"
	prodBase    = "https://connect.squareup.com"

	// Square caps idempotency keys at 45 characters.
	maxIdempotencyKeyLen = 45
)

// Client implements domain.PaymentGateway against the Square REST API.
// Transient-vs-declined classification happens in one place (doRequest) so
// every caller gets a typed *domain.GatewayError.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	locationID  string
	currency    string
}

func NewClient(cfg config.Square) *Client {
	base := prodBase
	if cfg.Sandbox {
		base = sandboxBase
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     base,
		accessToken: cfg.AccessToken,
		locationID:  cfg.LocationID,
		currency:    "USD",
	}
}

// SetLocationID records the location fetched at startup when the config
// leaves it empty.
func (c *Client) SetLocationID(id string) { c.locationID = id }

type amountMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paymentBody struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney amountMoney `json:"amount_money"`
	CardDetails struct {
		Card cardBody `json:"card"`
	} `json:"card_details"`
}

type cardBody struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	CardBrand  string `json:"card_brand"`
	Last4      string `json:"last_4"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
}

func (p *paymentBody) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:          p.ID,
		Status:      p.Status,
		AmountCents: p.AmountMoney.Amount,
		Card: domain.CardMetadata{
			Brand:    p.CardDetails.Card.CardBrand,
			Last4:    p.CardDetails.Card.Last4,
			ExpMonth: p.CardDetails.Card.ExpMonth,
			ExpYear:  p.CardDetails.Card.ExpYear,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Square-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GatewayError{Kind: domain.GatewayTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return &domain.GatewayError{Kind: domain.GatewayTransient, Message: err.Error()}
	}

	slog.Info("square call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &domain.GatewayError{
			Kind:    domain.GatewayTransient,
			Status:  resp.StatusCode,
			Message: parseErrorDetail(buf.Bytes()),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.GatewayError{
			Kind:    domain.GatewayDeclined,
			Status:  resp.StatusCode,
			Message: parseErrorDetail(buf.Bytes()),
		}
	}

	if out != nil {
		if err := json.Unmarshal(buf.Bytes(), out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// parseErrorDetail joins the detail/code fields of Square's errors array
// into a human-readable line, falling back to the raw body.
func parseErrorDetail(body []byte) string {
	var parsed struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		parts := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			switch {
			case e.Detail != "":
				parts = append(parts, e.Detail)
			case e.Code != "":
				parts = append(parts, e.Code)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return string(body)
}

func truncateKey(key string) string {
	if len(key) > maxIdempotencyKeyLen {
		return key[:maxIdempotencyKeyLen]
	}
	return key
}

// FetchFirstLocationID returns the first ACTIVE location on the account.
// Used once at startup when location_id is not configured.
func (c *Client) FetchFirstLocationID(ctx context.Context) (string, error) {
	var out struct {
		Locations []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"locations"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v2/locations", nil, &out); err != nil {
		return "", err
	}
	for _, loc := range out.Locations {
		if loc.Status == "ACTIVE" {
			return loc.ID, nil
		}
	}
	return "", fmt.Errorf("no active square locations found")
}

// CreateCustomer is idempotent on bookingID, so retries for the same booking
// never create duplicate customers.
func (c *Client) CreateCustomer(ctx context.Context, bookingID, givenName, familyName string) (string, error) {
	body := map[string]any{
		"idempotency_key": truncateKey(bookingID),
		"given_name":      givenName,
		"family_name":     familyName,
		"reference_id":    truncateKey(bookingID),
		"note":            fmt.Sprintf("EV charger session booking %s", bookingID),
	}
	var out struct {
		Customer struct {
			ID string `json:"id"`
		} `json:"customer"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/customers", body, &out); err != nil {
		return "", err
	}
	return out.Customer.ID, nil
}

// CreateCard stores a tokenised card on file for the customer.
func (c *Client) CreateCard(ctx context.Context, sourceID, customerID, bookingID string) (domain.CardMetadata, error) {
	body := map[string]any{
		"idempotency_key": uuid.NewString(),
		"source_id":       sourceID,
		"card": map[string]any{
			"customer_id":  customerID,
			"reference_id": truncateKey(bookingID),
		},
	}
	var out struct {
		Card cardBody `json:"card"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/cards", body, &out); err != nil {
		return domain.CardMetadata{}, err
	}
	return domain.CardMetadata{
		CustomerID: customerID,
		CardID:     out.Card.ID,
		Brand:      out.Card.CardBrand,
		Last4:      out.Card.Last4,
		ExpMonth:   out.Card.ExpMonth,
		ExpYear:    out.Card.ExpYear,
	}, nil
}

// Authorize places a pre-authorisation hold (autocomplete=false). The actual
// charge, void, or refund happens after the session ends and the final
// energy usage is known. customerID is empty for one-time wallet tokens.
func (c *Client) Authorize(ctx context.Context, sourceID, customerID, bookingID string, amountCents int64) (*domain.Payment, error) {
	body := map[string]any{
		"idempotency_key": truncateKey(bookingID),
		"source_id":       sourceID,
		"autocomplete":    false,
		"amount_money":    amountMoney{Amount: amountCents, Currency: c.currency},
		"location_id":     c.locationID,
		"reference_id":    truncateKey(bookingID),
		"note": fmt.Sprintf(
			"EV charger authorization hold for booking %s. Final charge adjusted after session ends.",
			bookingID,
		),
	}
	if customerID != "" {
		body["customer_id"] = customerID
	}
	var out struct {
		Payment paymentBody `json:"payment"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/payments", body, &out); err != nil {
		return nil, err
	}
	return out.Payment.toDomain(), nil
}

// Capture completes a pre-authorisation at the final amount. The /complete
// endpoint captures whatever amount is on the payment object, so the amount
// is updated first, then completed.
func (c *Client) Capture(ctx context.Context, paymentID string, amountCents int64) (*domain.Payment, error) {
	updateBody := map[string]any{
		"idempotency_key": uuid.NewString(),
		"payment": map[string]any{
			"amount_money": amountMoney{Amount: amountCents, Currency: c.currency},
		},
	}
	if err := c.doRequest(ctx, http.MethodPut, "/v2/payments/"+paymentID, updateBody, nil); err != nil {
		return nil, err
	}

	var out struct {
		Payment paymentBody `json:"payment"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/complete", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Payment.toDomain(), nil
}

// Cancel voids a pre-authorisation hold without charging anything.
func (c *Client) Cancel(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var out struct {
		Payment paymentBody `json:"payment"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/cancel", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Payment.toDomain(), nil
}

// ChargeImmediate issues a new, auto-completed charge against a stored card.
// The caller supplies a deterministic idempotency key so a retried charge
// cannot double-charge.
func (c *Client) ChargeImmediate(ctx context.Context, cardID, customerID, bookingID string, amountCents int64, idempotencyKey string) (*domain.Payment, error) {
	body := map[string]any{
		"idempotency_key": truncateKey(idempotencyKey),
		"source_id":       cardID,
		"customer_id":     customerID,
		"autocomplete":    true,
		"amount_money":    amountMoney{Amount: amountCents, Currency: c.currency},
		"location_id":     c.locationID,
		"reference_id":    truncateKey(bookingID),
		"note":            fmt.Sprintf("EV charger final amount for booking %s", bookingID),
	}
	var out struct {
		Payment paymentBody `json:"payment"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/payments", body, &out); err != nil {
		return nil, err
	}
	return out.Payment.toDomain(), nil
}

// Refund issues a refund against a captured payment. amountCents <= 0 means
// full refund; Square requires amount_money, so the payment is fetched first
// to learn the captured amount.
func (c *Client) Refund(ctx context.Context, paymentID string, amountCents int64, reason, idempotencyKey string) (*domain.Refund, error) {
	if amountCents <= 0 {
		var payment struct {
			Payment paymentBody `json:"payment"`
		}
		if err := c.doRequest(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil, &payment); err != nil {
			return nil, err
		}
		amountCents = payment.Payment.AmountMoney.Amount
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	body := map[string]any{
		"idempotency_key": truncateKey(idempotencyKey),
		"payment_id":      paymentID,
		"amount_money":    amountMoney{Amount: amountCents, Currency: c.currency},
	}
	if reason != "" {
		body["reason"] = reason
	}
	var out struct {
		Refund struct {
			ID          string      `json:"id"`
			Status      string      `json:"status"`
			AmountMoney amountMoney `json:"amount_money"`
		} `json:"refund"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/refunds", body, &out); err != nil {
		return nil, err
	}
	return &domain.Refund{
		ID:          out.Refund.ID,
		Status:      out.Refund.Status,
		AmountCents: out.Refund.AmountMoney.Amount,
	}, nil
}
