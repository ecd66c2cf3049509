package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/cashu/nuts/nut01"
	"github.com/cashewallet/cashew/cashu/nuts/nut02"
	"github.com/cashewallet/cashew/cashu/nuts/nut03"
	"github.com/cashewallet/cashew/cashu/nuts/nut05"
)

// TransportError reports that the mint could not be reached or did not
// produce a response. It is distinct from a cashu.Error, where the mint
// did respond and rejected the request.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error communicating with mint: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type client struct {
	mintURL    string
	httpClient *http.Client
}

func newClient(mintURL string) *client {
	return &client{
		mintURL:    mintURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) getActiveKeysets(ctx context.Context) (*nut01.GetKeysResponse, error) {
	var keysetRes nut01.GetKeysResponse
	if err := c.get(ctx, "/v1/keys", &keysetRes); err != nil {
		return nil, err
	}
	return &keysetRes, nil
}

func (c *client) getAllKeysets(ctx context.Context) (*nut02.GetKeysetsResponse, error) {
	var keysetsRes nut02.GetKeysetsResponse
	if err := c.get(ctx, "/v1/keysets", &keysetsRes); err != nil {
		return nil, err
	}
	return &keysetsRes, nil
}

func (c *client) getKeysetById(ctx context.Context, id string) (*nut01.GetKeysResponse, error) {
	var keysetRes nut01.GetKeysResponse
	if err := c.get(ctx, "/v1/keys/"+id, &keysetRes); err != nil {
		return nil, err
	}
	return &keysetRes, nil
}

func (c *client) postSwap(ctx context.Context, swapRequest nut03.PostSwapRequest) (
	*nut03.PostSwapResponse, error) {

	var swapResponse nut03.PostSwapResponse
	if err := c.post(ctx, "/v1/swap", swapRequest, &swapResponse); err != nil {
		return nil, err
	}
	return &swapResponse, nil
}

func (c *client) postMeltQuoteBolt11(ctx context.Context, meltQuoteRequest nut05.PostMeltQuoteBolt11Request) (
	*nut05.PostMeltQuoteBolt11Response, error) {

	var meltQuoteResponse nut05.PostMeltQuoteBolt11Response
	if err := c.post(ctx, "/v1/melt/quote/bolt11", meltQuoteRequest, &meltQuoteResponse); err != nil {
		return nil, err
	}
	return &meltQuoteResponse, nil
}

func (c *client) postMeltBolt11(ctx context.Context, meltRequest nut05.PostMeltBolt11Request) (
	*nut05.PostMeltQuoteBolt11Response, error) {

	var meltResponse nut05.PostMeltQuoteBolt11Response
	if err := c.post(ctx, "/v1/melt/bolt11", meltRequest, &meltResponse); err != nil {
		return nil, err
	}
	return &meltResponse, nil
}

func (c *client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mintURL+path, nil)
	if err != nil {
		return &TransportError{Err: err}
	}
	return c.do(req, v)
}

func (c *client) post(ctx context.Context, path string, requestBody, v any) error {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("json.Marshal: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mintURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, v)
}

func (c *client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var errResponse cashu.Error
		if err := json.Unmarshal(body, &errResponse); err != nil {
			return fmt.Errorf("could not decode error response from mint: %v", err)
		}
		return &errResponse
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mint returned unexpected response: %s", body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("error reading response from mint: %v", err)
	}
	return nil
}
