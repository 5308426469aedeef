// Package license 商业许可证校验客户端
//
// 向许可证服务器提交 key + 实例标识换取授权结论，结论在本地缓存，
// 服务器不可达时放行并记录警告（避免许可证服务故障拖垮站点）。
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"vyral-cms/internal/config"
	"vyral-cms/pkg/logging"
)

// Verdict 许可证校验结论
type Verdict struct {
	Valid     bool       `json:"valid"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Verifier 许可证校验器
type Verifier struct {
	cfg        config.LicenseConfig
	instanceID string
	httpClient *http.Client
	logger     *logging.Logger

	mu        sync.Mutex
	cached    *Verdict
	fetchedAt time.Time
}

// NewVerifier 创建校验器，instanceID 通常为站点 BaseURL
func NewVerifier(cfg config.LicenseConfig, instanceID string) *Verifier {
	return &Verifier{
		cfg:        cfg,
		instanceID: instanceID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.Default("license"),
	}
}

// Verify 返回当前许可证结论
//
// 未配置 key 或 endpoint 时视为社区版，直接放行。
// 缓存在 CacheTTL 内复用；远端请求失败时放行并保留上次结论。
func (v *Verifier) Verify(ctx context.Context) (*Verdict, error) {
	if v.cfg.Key == "" || v.cfg.Endpoint == "" {
		return &Verdict{Valid: true, Plan: "community"}, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached != nil && time.Since(v.fetchedAt) < v.cfg.CacheTTL {
		return v.cached, nil
	}

	verdict, err := v.fetch(ctx)
	if err != nil {
		v.logger.WithError(err).Warn("许可证服务器不可达，暂时放行")
		if v.cached != nil {
			return v.cached, nil
		}
		return &Verdict{Valid: true, Message: "license server unreachable"}, nil
	}

	v.cached = verdict
	v.fetchedAt = time.Now()
	return verdict, nil
}

func (v *Verifier) fetch(ctx context.Context) (*Verdict, error) {
	payload, err := json.Marshal(map[string]string{
		"key":         v.cfg.Key,
		"instance_id": v.instanceID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license server returned %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decode license response: %w", err)
	}
	return &verdict, nil
}
