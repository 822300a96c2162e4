package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"customer-map/config"
	"customer-map/models"
	"customer-map/utils"
)

// Client fetches raw records from the collaboration-table listing API.
// A fresh tenant token is obtained per fetch cycle; nothing is cached
// across cycles.
type Client struct {
	cfg    *config.Config
	logger *utils.Logger
	http   *http.Client
	retry  *utils.RetryConfig
}

// New creates a ready-to-use bitable Client.
func New(cfg *config.Config, logger *utils.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: 30 * time.Second},
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
	}
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
}

type listResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		HasMore   bool                `json:"has_more"`
		PageToken string              `json:"page_token"`
		Total     int                 `json:"total"`
		Items     []*models.RawRecord `json:"items"`
	} `json:"data"`
}

// FetchAll retrieves every raw record from the upstream table, following
// the continuation token page by page until the upstream signals it is
// exhausted. Pages are fetched strictly one at a time — the next token is
// only known after the prior page returns. Any page failure aborts the
// whole fetch: the caller sees an error rather than a truncated dataset.
func (c *Client) FetchAll(ctx context.Context) ([]*models.RawRecord, error) {
	token, err := c.tenantToken(ctx)
	if err != nil {
		return nil, err
	}

	var records []*models.RawRecord
	pageToken := ""

	for page := 1; ; page++ {
		// Guard against a misbehaving upstream handing out a
		// non-terminating token sequence.
		if page > c.cfg.MaxPages {
			return nil, fmt.Errorf("bitable: page limit %d exceeded without token exhaustion", c.cfg.MaxPages)
		}

		resp, err := c.listPage(ctx, token, pageToken)
		if err != nil {
			return nil, err
		}

		records = append(records, resp.Data.Items...)
		c.logger.Debug("[bitable] page %d: %d records (total so far %d)",
			page, len(resp.Data.Items), len(records))

		if !resp.Data.HasMore || resp.Data.PageToken == "" {
			break
		}
		pageToken = resp.Data.PageToken
	}

	c.logger.Info("[bitable] fetched %d raw records", len(records))
	return records, nil
}

// tenantToken exchanges the app credentials for a bearer token.
func (c *Client) tenantToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"app_id":     c.cfg.BitableAppID,
		"app_secret": c.cfg.BitableAppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("bitable: marshal token request: %w", err)
	}

	var parsed tokenResponse
	endpoint := c.cfg.BitableBaseURL + "/open-apis/auth/v3/tenant_access_token/internal"

	err = c.retry.Do(ctx, "tenant token", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("bitable: build token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doJSON(req, &parsed)
	})
	if err != nil {
		return "", err
	}

	if parsed.Code != 0 {
		return "", fmt.Errorf("bitable: token endpoint code %d: %s", parsed.Code, parsed.Msg)
	}
	if parsed.TenantAccessToken == "" {
		return "", fmt.Errorf("bitable: token endpoint returned empty token")
	}
	return parsed.TenantAccessToken, nil
}

func (c *Client) listPage(ctx context.Context, token, pageToken string) (*listResponse, error) {
	endpoint := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records",
		c.cfg.BitableBaseURL, c.cfg.BitableAppToken, c.cfg.BitableTableID)

	query := url.Values{}
	query.Set("page_size", strconv.Itoa(c.cfg.PageSize))
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}

	var parsed listResponse
	err := c.retry.Do(ctx, "list records", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return fmt.Errorf("bitable: build list request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return c.doJSON(req, &parsed)
	})
	if err != nil {
		return nil, err
	}

	if parsed.Code != 0 {
		return nil, fmt.Errorf("bitable: listing code %d: %s", parsed.Code, parsed.Msg)
	}
	return &parsed, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bitable: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("bitable: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bitable: %s returned status %d: %s", req.URL.Path, resp.StatusCode, truncateBody(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bitable: decode response: %w", err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
