package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
)

// Client talks JSON-RPC 2.0 with a token node
type Client struct {
	url     string
	headers map[string]string
	client  *http.Client
	id      atomic.Uint64
}

func New(config Config) (c *Client) {
	c = &Client{
		url:     config.Url,
		headers: config.CustomHeaders,
		client:  config.Client,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	return c
}

type (
	request struct {
		Version string `json:"jsonrpc"`
		Id      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}
	response struct {
		Version string          `json:"jsonrpc"`
		Id      string          `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *Error          `json:"error,omitempty"`
	}
)

// Error returned by the node
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params, result any) (err error) {
	body, err := json.Marshal(request{
		Version: "2.0",
		Id:      strconv.FormatUint(c.id.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		contents, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", res.StatusCode, contents)
	}

	var out response
	err = json.NewDecoder(res.Body).Decode(&out)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if out.Error != nil {
		return out.Error
	}

	if result == nil {
		return nil
	}

	err = json.Unmarshal(out.Result, result)
	if err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

type (
	TransferRequest struct {
		// Token contract principal
		Contract string `json:"contract"`
		// Amount in base units
		Amount uint64 `json:"amount"`
		// Debited principal
		Sender string `json:"sender"`
		// Credited principal
		Recipient string `json:"recipient"`
		// Hex encoded memo
		Memo string `json:"memo,omitempty"`
	}
	TransferResponse struct {
		// Transaction id of the transfer
		TxId string `json:"tx_id"`
		// Amount transfered
		Amount uint64 `json:"amount"`
	}
	GetBalanceRequest struct {
		Contract string `json:"contract"`
		Owner    string `json:"owner"`
	}
	GetBalanceResponse struct {
		Balance uint64 `json:"balance"`
	}
	GetBlockHeightResponse struct {
		Height uint64 `json:"height"`
	}
)

func (c *Client) Transfer(ctx context.Context, req *TransferRequest) (res TransferResponse, err error) {
	err = c.call(ctx, "transfer", req, &res)
	return res, err
}

func (c *Client) GetBalance(ctx context.Context, req *GetBalanceRequest) (res GetBalanceResponse, err error) {
	err = c.call(ctx, "get_balance", req, &res)
	return res, err
}

func (c *Client) GetBlockHeight(ctx context.Context) (res GetBlockHeightResponse, err error) {
	err = c.call(ctx, "get_block_height", nil, &res)
	return res, err
}
