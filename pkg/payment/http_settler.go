package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusAccepted  = "ACCEPTED"
	StatusSucceeded = "SUCCEEDED"
	StatusDeclined  = "DECLINED"
)

// RequestSigner adds an authenticity header to an outbound request.
type RequestSigner interface {
	SignRequest(req *http.Request, body []byte) error
}

// HTTPSettler talks to the settlement microservice over JSON/HTTP.
type HTTPSettler struct {
	BaseURL string
	APIKey  string
	client  *http.Client
	signer  RequestSigner
}

// NewHTTPSettler returns a settler whose calls never outlive timeout. signer may be nil.
func NewHTTPSettler(baseURL, apiKey string, timeout time.Duration, signer RequestSigner) *HTTPSettler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSettler{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		signer:  signer,
	}
}

type settleReq struct {
	Reference   string          `json:"reference"`
	UserID      uint            `json:"userId"`
	PartnerID   uint            `json:"partnerId"`
	MerchantID  string          `json:"merchantId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

type settleResp struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Accepted    bool   `json:"accepted"`
	ProviderRef string `json:"providerRef"`
	Message     string `json:"message"`
}

func (p *HTTPSettler) Settle(ctx context.Context, req SettlementRequest) (*SettlementResponse, error) {
	body, err := json.Marshal(settleReq{
		Reference:   req.Reference,
		UserID:      req.UserID,
		PartnerID:   req.PartnerID,
		MerchantID:  req.MerchantID,
		Amount:      req.Amount.Round(2),
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	var out settleResp
	if err := p.do(ctx, "/v1/payments", req.Reference, body, &out); err != nil {
		return nil, err
	}
	status := strings.ToUpper(out.Status)
	accepted := out.Accepted || status == StatusAccepted || status == StatusSucceeded
	if !accepted {
		log.Printf("[payment] settlement %s not accepted: status=%s %s", req.Reference, out.Status, out.Message)
	}
	ref := out.Reference
	if ref == "" {
		ref = req.Reference
	}
	return &SettlementResponse{
		Reference:   ref,
		Status:      status,
		Accepted:    accepted,
		ProviderRef: out.ProviderRef,
	}, nil
}

func (p *HTTPSettler) Void(ctx context.Context, reference string) error {
	return p.do(ctx, "/v1/payments/"+url.PathEscape(reference)+"/void", reference, []byte("{}"), nil)
}

func (p *HTTPSettler) do(ctx context.Context, path, reference string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.APIKey)
	req.Header.Set("X-Api-Reference", reference)
	req.Header.Set("X-Api-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if p.signer != nil {
		if err := p.signer.SignRequest(req, body); err != nil {
			return fmt.Errorf("settlement sign: %w", err)
		}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("settlement %s: %w", path, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("settlement %s failed: %d %s", path, resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("settlement %s: decode: %w", path, err)
	}
	return nil
}
