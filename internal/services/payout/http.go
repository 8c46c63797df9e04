package payout

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	disbursementPath = "/api/v1/disbursements/single"
	queryPath        = "/api/v1/merchant/transactions/query"
	defaultTimeout   = 15 * time.Second
)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Secret  string
	Timeout time.Duration
}

// HTTPRail talks to a Moniepoint-style disbursement API. Request bodies are
// signed with HMAC-SHA512 in the Signature header.
type HTTPRail struct {
	cfg    HTTPConfig
	logger *zap.Logger
}

func NewHTTPRail(cfg HTTPConfig, logger *zap.Logger) *HTTPRail {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPRail{cfg: cfg, logger: logger}
}

func (r *HTTPRail) Name() string { return "http" }

type disbursementBody struct {
	Amount                   string `json:"amount"`
	Reference                string `json:"reference"`
	Narration                string `json:"narration"`
	DestinationBankCode      string `json:"destinationBankCode"`
	DestinationAccountNumber string `json:"destinationAccountNumber"`
	DestinationAccountName   string `json:"destinationAccountName,omitempty"`
	Currency                 string `json:"currency"`
}

type railResponse struct {
	RequestSuccessful bool   `json:"requestSuccessful"`
	ResponseMessage   string `json:"responseMessage"`
	ResponseBody      struct {
		Status               string `json:"status"`
		Reference            string `json:"reference"`
		TransactionReference string `json:"transactionReference"`
	} `json:"responseBody"`
}

func (r *HTTPRail) sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(r.cfg.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *HTTPRail) InitiateTransfer(ctx context.Context, req TransferRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(disbursementBody{
		Amount:                   req.Amount.StringFixed(2),
		Reference:                req.Reference,
		Narration:                req.Narration,
		DestinationBankCode:      req.BankCode,
		DestinationAccountNumber: req.AccountNumber,
		DestinationAccountName:   req.AccountName,
		Currency:                 req.Currency,
	})
	if err != nil {
		return nil, err
	}

	agent := fiber.Post(r.cfg.BaseURL+disbursementPath).
		Set("Authorization", "Bearer "+r.cfg.APIKey).
		Set("Signature", r.sign(body)).
		ContentType(fiber.MIMEApplicationJSON).
		Body(body).
		Timeout(r.cfg.Timeout)

	code, resp, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("payout rail unreachable: %w", errors.Join(errs...))
	}
	return r.decode(req.Reference, code, resp)
}

// QueryTransfer looks a transfer up by the rail's transaction reference.
func (r *HTTPRail) QueryTransfer(ctx context.Context, reference string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent := fiber.Get(r.cfg.BaseURL+queryPath).
		Set("Authorization", "Bearer "+r.cfg.APIKey).
		QueryString("reference=" + url.QueryEscape(reference)).
		Timeout(r.cfg.Timeout)

	code, resp, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("payout rail unreachable: %w", errors.Join(errs...))
	}
	return r.decode(reference, code, resp)
}

// decode maps a rail response. 5xx and unreadable bodies are transport
// errors so the caller retries; 4xx is a definitive rejection.
func (r *HTTPRail) decode(reference string, code int, body []byte) (*Result, error) {
	if code >= fiber.StatusInternalServerError {
		return nil, fmt.Errorf("payout rail returned %d", code)
	}

	var parsed railResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if code >= fiber.StatusBadRequest {
			return &Result{Status: StatusFailed, Message: fmt.Sprintf("rejected with status %d", code)}, nil
		}
		return nil, fmt.Errorf("decoding payout rail response: %w", err)
	}

	if code >= fiber.StatusBadRequest || !parsed.RequestSuccessful {
		r.logger.Warn("payout rejected",
			zap.String("reference", reference),
			zap.Int("status", code),
			zap.String("message", parsed.ResponseMessage),
		)
		return &Result{Status: StatusFailed, Message: parsed.ResponseMessage}, nil
	}

	result := &Result{
		ExternalReference: parsed.ResponseBody.TransactionReference,
		Message:           parsed.ResponseMessage,
	}
	switch strings.ToUpper(parsed.ResponseBody.Status) {
	case "SUCCESS", "SUCCESSFUL", "PAID":
		result.Status = StatusSuccessful
	case "FAILED", "REVERSED", "REJECTED":
		result.Status = StatusFailed
	default:
		result.Status = StatusPending
	}
	return result, nil
}
