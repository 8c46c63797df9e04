package bills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// BillerResponse is the biller's reply. Status false is a definitive
// failure and Message says why.
type BillerResponse struct {
	Status bool `json:"status"`
	// Pending is set by status queries while the biller is still working.
	Pending      bool                   `json:"pending,omitempty"`
	Message      string                 `json:"message"`
	CustomerName string                 `json:"customer_name,omitempty"`
	Token        string                 `json:"token,omitempty"`
	Reference    string                 `json:"reference,omitempty"`
	Raw          map[string]interface{} `json:"-"`
}

// ErrDeliveryUnknown marks a call whose request may have reached the biller
// without a usable reply: transport failures, 5xx responses and bodies that
// do not decode. Such purchases are resolved by Requery, never refunded
// straight away.
var ErrDeliveryUnknown = errors.New("biller delivery unknown")

type BillerClient interface {
	Call(ctx context.Context, path string, payload map[string]interface{}) (*BillerResponse, error)
}

type HTTPBillerClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewHTTPBillerClient(baseURL, apiKey string, timeout time.Duration) *HTTPBillerClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBillerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (c *HTTPBillerClient) Call(ctx context.Context, path string, payload map[string]interface{}) (*BillerResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	code, resp, errs := fiber.Post(c.baseURL+path).
		Set("Authorization", "Bearer "+c.apiKey).
		ContentType(fiber.MIMEApplicationJSON).
		Body(body).
		Timeout(c.timeout).
		Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrDeliveryUnknown, errors.Join(errs...))
	}
	if code >= fiber.StatusInternalServerError {
		return nil, fmt.Errorf("%w: biller returned %d", ErrDeliveryUnknown, code)
	}
	if code >= fiber.StatusBadRequest {
		return nil, fmt.Errorf("biller returned %d", code)
	}

	var out BillerResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding biller response: %v", ErrDeliveryUnknown, err)
	}
	_ = json.Unmarshal(resp, &out.Raw)
	return &out, nil
}
