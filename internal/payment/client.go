// Package payment предоставляет клиент внешнего платёжного шлюза.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// Result описывает исход платежа, доставляемый асинхронным колбэком шлюза.
type Result string

const (
	ResultCaptured  Result = "CAPTURED"
	ResultCancelled Result = "CANCELLED"
	ResultFailed    Result = "FAILED"
)

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// Charge описывает созданный шлюзом платёж: токен для сверки колбэка и
// адрес, куда нужно перенаправить пользователя для оплаты.
type Charge struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type initiateRequest struct {
	AmountCents int64  `json:"amount"`
	Description string `json:"description"`
}

// NewClient создаёт HTTP-клиент шлюза. Сетевые сбои ретраятся, общий
// таймаут короткий: при его истечении бронирование остаётся PENDING и
// разбирается фоновой сверкой, исход платежа не угадывается.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// Initiate создаёт платёж на указанную сумму и возвращает токен с адресом
// перенаправления.
func (c *Client) Initiate(ctx context.Context, amountCents int64, description string) (*Charge, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: payment gateway not configured", model.ErrUpstream)
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(initiateRequest{
		AmountCents: amountCents,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: unexpected status %d", model.ErrUpstream, resp.StatusCode)
	}

	var charge Charge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", model.ErrUpstream, err)
	}

	if charge.Token == "" || charge.RedirectURL == "" {
		return nil, fmt.Errorf("%w: incomplete charge in response", model.ErrUpstream)
	}

	return &charge, nil
}
