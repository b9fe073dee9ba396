// Package multisig talks to the multisig contract backend over HTTP.
package multisig

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mr-tron/base58"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/infrastructure/keys"
)

// Backend error codes that mean the request is gone for good.
var terminalCodes = map[string]bool{
	"request_not_found": true,
	"request_expired":   true,
	"invalid_request":   true,
}

// Client is the multisig backend client.
type Client struct {
	http *resty.Client
	now  func() time.Time
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type confirmBody struct {
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

type listResponse struct {
	RequestIDs []uint64 `json:"request_ids"`
}

// NewClient creates a client for baseURL. token, when set, is sent as a bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	cl := resty.New().SetBaseURL(baseURL).SetTimeout(timeout)
	cl.SetHeader("Content-Type", "application/json")
	cl.SetHeader("Accept", "application/json")
	cl.SetHeader("User-Agent", "go-2fa-confirm/1.0")
	if token != "" {
		cl.SetAuthToken(token)
	}
	return &Client{http: cl, now: time.Now}
}

// HTTPClient exposes the underlying client so tests can intercept transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// ConfirmMessage is the payload a confirmation key signs.
func ConfirmMessage(accountID string, requestID uint64, timestamp int64) []byte {
	return []byte("confirm:" + accountID + ":" + strconv.FormatUint(requestID, 10) + ":" + strconv.FormatInt(timestamp, 10))
}

func (c *Client) Confirm(ctx context.Context, key keys.KeyPair, accountID string, requestID uint64) error {
	ts := c.now().Unix()
	body := confirmBody{
		AccountID: accountID,
		PublicKey: key.EncodedPublicKey(),
		Signature: base58.Encode(ed25519.Sign(key.SecretKey, ConfirmMessage(accountID, requestID, ts))),
		Timestamp: ts,
	}
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&apiErr).
		SetPathParam("requestID", strconv.FormatUint(requestID, 10)).
		Post("/requests/{requestID}/confirm")
	if err != nil {
		return transportError("confirm", err)
	}
	return handleError(resp, &apiErr)
}

func (c *Client) GetRequest(ctx context.Context, accountID string, requestID uint64) (*domain.MultisigRequest, error) {
	var out domain.MultisigRequest
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		SetPathParams(map[string]string{
			"accountID": accountID,
			"requestID": strconv.FormatUint(requestID, 10),
		}).
		Get("/accounts/{accountID}/requests/{requestID}")
	if err != nil {
		return nil, transportError("get request", err)
	}
	if err := handleError(resp, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRequestIDs(ctx context.Context, accountID string) ([]uint64, error) {
	var out listResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		SetPathParam("accountID", accountID).
		Get("/accounts/{accountID}/requests")
	if err != nil {
		return nil, transportError("list requests", err)
	}
	if err := handleError(resp, &apiErr); err != nil {
		return nil, err
	}
	return out.RequestIDs, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out: %w", op, domain.ErrBackendFailure)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrBackendFailure)
}

// handleError maps a backend response to a domain error. Unknown or expired
// requests are terminal, everything else may succeed on retry.
func handleError(resp *resty.Response, apiErr *apiError) error {
	if !resp.IsError() {
		return nil
	}
	status := resp.StatusCode()
	if status == http.StatusNotFound || status == http.StatusGone || terminalCodes[apiErr.Code] {
		return fmt.Errorf("backend status %d %s: %w", status, apiErr.Code, domain.ErrRequestInvalid)
	}
	if status == http.StatusConflict {
		return fmt.Errorf("request already confirmed: %w", domain.ErrBackendFailure)
	}
	if apiErr.Message != "" {
		return fmt.Errorf("backend status %d: %s: %w", status, apiErr.Message, domain.ErrBackendFailure)
	}
	return fmt.Errorf("backend status %d: %w", status, domain.ErrBackendFailure)
}
