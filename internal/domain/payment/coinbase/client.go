package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
)

// Config mirrors the payments.coinbase configuration block.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	ChargeName string
}

// Client creates charges against the Coinbase Commerce API. Every call
// is timeout-bound; transient failures are retried with backoff, client
// errors never are.
type Client struct {
	apiKey     string
	baseURL    string
	chargeName string
	maxRetries int
	httpClient *http.Client
	logger     *logging.Logger
}

// Charge is the subset of the processor response the service uses.
type Charge struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	HostedURL string `json:"hosted_url"`
}

type chargeRequest struct {
	LocalPrice  localPrice        `json:"local_price"`
	PricingType string            `json:"pricing_type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	RedirectURL string            `json:"redirect_url"`
	Metadata    map[string]string `json:"metadata"`
}

type localPrice struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type chargeResponse struct {
	Data Charge `json:"data"`
}

func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("coinbase api key required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.commerce.coinbase.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	chargeName := cfg.ChargeName
	if chargeName == "" {
		chargeName = "Merchant Charge"
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		chargeName: chargeName,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// CreateCharge registers a fixed-price USD charge payable to the named
// merchant and returns the processor's charge id and hosted checkout URL.
func (c *Client) CreateCharge(ctx context.Context, username string, amount float64, correlationID string) (Charge, error) {
	if amount <= 0 {
		return Charge{}, platformerrors.New(platformerrors.KindBadRequest,
			"coinbase.create_charge", "amount must be positive")
	}

	body, err := json.Marshal(chargeRequest{
		LocalPrice: localPrice{
			Amount:   fmt.Sprintf("%.2f", amount),
			Currency: "USD",
		},
		PricingType: "fixed_price",
		Name:        c.chargeName,
		Description: "Payable to " + username,
		Metadata: map[string]string{
			"username":       username,
			"correlation_id": correlationID,
		},
	})
	if err != nil {
		return Charge{}, platformerrors.Wrap(platformerrors.KindPayment,
			"coinbase.create_charge", "failed to encode charge request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Charge{}, platformerrors.Wrap(platformerrors.KindTimeout,
					"coinbase.create_charge", "charge creation cancelled", ctx.Err())
			}
			c.logger.WarnTag("payment", "retrying charge creation (attempt %d): %v", attempt+1, lastErr)
		}

		charge, retryable, err := c.postCharge(ctx, body)
		if err == nil {
			return charge, nil
		}
		if !retryable {
			return Charge{}, err
		}
		lastErr = err
	}

	return Charge{}, lastErr
}

// postCharge performs one attempt. The second return value reports
// whether the failure is transient.
func (c *Client) postCharge(ctx context.Context, body []byte) (Charge, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return Charge{}, false, platformerrors.Wrap(platformerrors.KindPayment,
			"coinbase.create_charge", "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CC-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Charge{}, false, platformerrors.Wrap(platformerrors.KindTimeout,
				"coinbase.create_charge", "charge creation timed out", err)
		}
		return Charge{}, true, platformerrors.Wrap(platformerrors.KindPayment,
			"coinbase.create_charge", "charge request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Charge{}, true, platformerrors.New(platformerrors.KindPayment,
			"coinbase.create_charge", fmt.Sprintf("processor error: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return Charge{}, false, platformerrors.New(platformerrors.KindPayment,
			"coinbase.create_charge", fmt.Sprintf("processor rejected charge: status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Charge{}, true, platformerrors.Wrap(platformerrors.KindPayment,
			"coinbase.create_charge", "failed to read response", err)
	}

	var parsed chargeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Charge{}, false, platformerrors.Wrap(platformerrors.KindPayment,
			"coinbase.create_charge", "failed to decode response", err)
	}
	if parsed.Data.ID == "" {
		return Charge{}, false, platformerrors.New(platformerrors.KindPayment,
			"coinbase.create_charge", "response missing charge id")
	}
	return parsed.Data, false, nil
}
