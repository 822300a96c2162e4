package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"customer-map/config"
	"customer-map/models"
	"customer-map/utils"
)

// ErrNotConfigured is returned before any network call when the
// completion-API credentials are missing.
var ErrNotConfigured = errors.New("ai: completion API key or endpoint id not configured")

// SummaryRequest carries the dataset snapshot the summary is built from.
type SummaryRequest struct {
	Customers   []*models.CustomerRecord `json:"customers"`
	Stats       *models.StatsReport      `json:"stats"`
	Filters     models.FilterState       `json:"filters"`
	SearchQuery string                   `json:"searchQuery"`
}

// Summarizer sends aggregated statistics to the completion API and
// returns the generated summary text. At most one request is in flight:
// starting a new one cancels the prior, so a stale response can never
// land after a newer one.
type Summarizer struct {
	cfg    *config.Config
	logger *utils.Logger
	http   *http.Client

	mu      sync.Mutex
	current *inflight
}

type inflight struct {
	cancel context.CancelFunc
}

// New creates a Summarizer.
func New(cfg *config.Config, logger *utils.Logger) *Summarizer {
	return &Summarizer{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Summarize builds the prompt and calls the completion API. The prior
// in-flight call, if any, is cancelled first. A context.Canceled result
// means this call was superseded or the caller went away; callers should
// treat it as a non-event, not a failure.
func (s *Summarizer) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	if !s.cfg.ArkReady() {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithCancel(ctx)
	call := &inflight{cancel: cancel}

	s.mu.Lock()
	if s.current != nil {
		s.current.cancel()
	}
	s.current = call
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.current == call {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	return s.complete(ctx, BuildPrompt(req))
}

// BuildPrompt renders the aggregation report and active filters into the
// natural-language prompt sent upstream.
func BuildPrompt(req SummaryRequest) string {
	var b strings.Builder
	b.WriteString("你是一名销售数据分析师。请根据以下门店客户数据生成一段简洁的中文总结，")
	b.WriteString("指出品牌、产品和区域分布上的要点。\n\n")

	if req.Stats != nil {
		fmt.Fprintf(&b, "客户总数：%d\n", req.Stats.Total)
		if req.Stats.TotalVolume > 0 {
			fmt.Fprintf(&b, "总销量：%.2f\n", req.Stats.TotalVolume)
		}
		writeRanking(&b, "品牌分布", req.Stats.ByBrand)
		writeRanking(&b, "产品分布", req.Stats.ByProduct)
		writeRanking(&b, "区域分布", req.Stats.ByRegion)
		if len(req.Stats.DiscountSamples) > 0 {
			fmt.Fprintf(&b, "优惠价格示例：%s\n", strings.Join(req.Stats.DiscountSamples, "；"))
		}
	}

	if q := strings.TrimSpace(req.SearchQuery); q != "" {
		fmt.Fprintf(&b, "当前搜索词：%s\n", q)
	}
	if len(req.Filters.RegionFilter) > 0 {
		fmt.Fprintf(&b, "当前区域筛选：%s\n", strings.Join(req.Filters.RegionFilter, "、"))
	}
	if len(req.Filters.BrandFilter) > 0 {
		fmt.Fprintf(&b, "当前品牌筛选：%s\n", strings.Join(req.Filters.BrandFilter, "、"))
	}
	return b.String()
}

func writeRanking(b *strings.Builder, title string, entries []models.CountEntry) {
	if len(entries) == 0 {
		return
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s %d 家", e.Name, e.Count))
	}
	fmt.Fprintf(b, "%s：%s\n", title, strings.Join(parts, "，"))
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:    s.cfg.ArkEndpointID,
		Messages: []completionMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	endpoint := s.cfg.ArkBaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.ArkAPIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		return "", fmt.Errorf("ai: completion call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ai: read response: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("ai: completion API status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("ai: completion API status %d", resp.StatusCode)
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("ai: completion returned empty content")
	}
	return parsed.Choices[0].Message.Content, nil
}
