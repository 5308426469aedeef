// Package oauth 社交登录
//
// 提供方不做硬编码，authorize/token/userinfo 端点全部来自配置，
// 任何标准 OAuth2 提供方（GitHub、Google、Gitee …）都能直接接入。
//
// 流程：
//
//	authorize → 生成一次性 state（Redis，10 分钟）→ 302 跳转提供方
//	callback  → 校验并消费 state → 换取令牌 → 拉取 userinfo
//	          → 已绑定则登录，未绑定则按邮箱关联或新建账号
//
// 绑定/解绑走 /api/v1/auth/connections（需登录）。
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/config"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage"
)

// Store 社交登录所需的存储操作
type Store interface {
	storage.OAuthTokenStore
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
}

// Handler 社交登录 HTTP 处理器
type Handler struct {
	store    Store
	sessions cache.SessionCache
	states   cache.OAuthStateCache
	events   eventbus.ActivityEventBus
	cfg      config.OAuthConfig
	authCfg  config.AuthConfig

	// httpClient 用于令牌交换和 userinfo 请求，测试中可替换
	httpClient *http.Client
}

// NewHandler 创建社交登录处理器
func NewHandler(store Store, sessions cache.SessionCache, states cache.OAuthStateCache, events eventbus.ActivityEventBus, cfg config.OAuthConfig, authCfg config.AuthConfig) *Handler {
	return &Handler{
		store:      store,
		sessions:   sessions,
		states:     states,
		events:     events,
		cfg:        cfg,
		authCfg:    authCfg,
		httpClient: http.DefaultClient,
	}
}

// SetHTTPClient 替换外呼 HTTP 客户端（测试用）
func (h *Handler) SetHTTPClient(c *http.Client) {
	h.httpClient = c
}

// RegisterRoutes 注册社交登录路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/oauth/providers", h.Providers)
	mux.HandleFunc("GET /api/v1/oauth/{provider}/authorize", h.Authorize)
	mux.HandleFunc("GET /api/v1/oauth/{provider}/callback", h.Callback)

	// 账号绑定管理（经过认证中间件）
	mux.HandleFunc("GET /api/v1/auth/connections", h.ListConnections)
	mux.HandleFunc("POST /api/v1/auth/connections/{provider}", h.BeginLink)
	mux.HandleFunc("DELETE /api/v1/auth/connections/{provider}", h.Unlink)
}

// ============================================================================
// 提供方配置
// ============================================================================

func (h *Handler) provider(name string) (config.OAuthProvider, bool) {
	p, ok := h.cfg.Providers[name]
	if !ok || p.ClientID == "" {
		return config.OAuthProvider{}, false
	}
	return p, true
}

func (h *Handler) oauth2Config(name string, p config.OAuthProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
		RedirectURL: p.RedirectURL,
		Scopes:      p.Scopes,
	}
}

// Providers 列出已配置的提供方名称
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.cfg.Providers))
	for name, p := range h.cfg.Providers {
		if p.ClientID != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": names})
}

// ============================================================================
// 登录流程
// ============================================================================

// Authorize 生成 state 并跳转到提供方授权页
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	p, ok := h.provider(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown oauth provider")
		return
	}

	state := newState()
	err := h.states.SetOAuthState(r.Context(), state, &cache.OAuthState{
		Provider:   name,
		RedirectTo: r.URL.Query().Get("redirect_to"),
	})
	if err != nil {
		log.Printf("[oauth.authorize] SetOAuthState error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	url := h.oauth2Config(name, p).AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback 提供方回调：校验 state、换令牌、登录或绑定
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	p, ok := h.provider(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown oauth provider")
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, "provider returned error: "+errParam)
		return
	}
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")
	if code == "" || stateParam == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	// state 一次性消费，防 CSRF 与重放
	state, err := h.states.ConsumeOAuthState(r.Context(), stateParam)
	if err != nil {
		log.Printf("[oauth.callback] ConsumeOAuthState error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if state == nil || state.Provider != name {
		writeError(w, http.StatusBadRequest, "invalid or expired state")
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, h.httpClient)
	token, err := h.oauth2Config(name, p).Exchange(ctx, code)
	if err != nil {
		log.Printf("[oauth.callback] token exchange error: %v", err)
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	identity, err := h.fetchIdentity(ctx, p, token)
	if err != nil {
		log.Printf("[oauth.callback] userinfo error: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch user info")
		return
	}

	// 绑定流程：state 携带发起绑定的用户
	if state.LinkUserID != "" {
		h.completeLink(w, r, name, state.LinkUserID, identity, token)
		return
	}

	user, err := h.resolveUser(r.Context(), name, identity)
	if err != nil {
		log.Printf("[oauth.callback] resolve user error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusForbidden, "provider did not supply an email address")
		return
	}
	if user.Status == model.UserStatusDisabled {
		writeError(w, http.StatusForbidden, "account is disabled")
		return
	}

	if err := h.saveToken(r.Context(), name, user.ID, identity, token); err != nil {
		log.Printf("[oauth.callback] UpsertOAuthToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp, err := h.issueTokens(r, user)
	if err != nil {
		log.Printf("[oauth.callback] issueTokens error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.store.UpdateUserLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		log.Printf("[oauth.callback] UpdateUserLastLogin error: %v", err)
	}
	h.publishLogin(r, user, name)

	log.Printf("[oauth] User logged in via %s: %s", name, user.Email)
	writeJSON(w, http.StatusOK, resp)
}

// resolveUser 根据第三方身份定位本地用户
//
// 顺序：已绑定记录 → 同邮箱账号自动绑定 → 新建 author 账号。
// 提供方未给出邮箱且无绑定记录时返回 nil。
func (h *Handler) resolveUser(ctx context.Context, provider string, identity *providerIdentity) (*model.User, error) {
	existing, err := h.store.GetOAuthTokenByProviderUser(ctx, provider, identity.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return h.store.GetUserByID(ctx, existing.UserID)
	}

	if identity.Email == "" {
		return nil, nil
	}

	user, err := h.store.GetUserByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()
	user = &model.User{
		ID:           generateID("usr"),
		Email:        identity.Email,
		Username:     identity.Name,
		PasswordHash: "", // 社交账号首次登录无本地密码
		Role:         model.UserRoleAuthor,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Username == "" {
		user.Username = identity.Email
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("[oauth] Created user %s from %s login", user.ID, provider)
	return user, nil
}

func (h *Handler) saveToken(ctx context.Context, provider, userID string, identity *providerIdentity, token *oauth2.Token) error {
	now := time.Now()
	rec := &model.OAuthToken{
		ID:             fmt.Sprintf("oat-%s-%s", provider, userID),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: identity.ID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		rec.ExpiresAt = &expiry
	}
	return h.store.UpsertOAuthToken(ctx, rec)
}

func (h *Handler) issueTokens(r *http.Request, user *model.User) (map[string]interface{}, error) {
	accessToken, err := auth.GenerateAccessToken(h.authCfg, user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	jti := auth.NewJTI()
	refreshToken, err := auth.GenerateRefreshToken(h.authCfg, user.ID, jti)
	if err != nil {
		return nil, err
	}
	err = h.sessions.CreateSession(r.Context(), &cache.Session{
		JTI:       jti,
		UserID:    user.ID,
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(h.authCfg.RefreshTokenTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return map[string]interface{}{
		"user":          user,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}, nil
}

// ============================================================================
// 绑定管理
// ============================================================================

// ListConnections 列出当前用户已绑定的提供方
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	tokens, err := h.store.ListOAuthTokensByUser(r.Context(), user.ID)
	if err != nil {
		log.Printf("[oauth.connections] ListOAuthTokensByUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": tokens})
}

// BeginLink 发起绑定流程，返回携带绑定 state 的授权地址
func (h *Handler) BeginLink(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	name := r.PathValue("provider")
	p, ok := h.provider(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown oauth provider")
		return
	}

	state := newState()
	err := h.states.SetOAuthState(r.Context(), state, &cache.OAuthState{
		Provider:   name,
		LinkUserID: user.ID,
	})
	if err != nil {
		log.Printf("[oauth.link] SetOAuthState error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"authorize_url": h.oauth2Config(name, p).AuthCodeURL(state),
	})
}

// completeLink 回调中完成账号绑定
func (h *Handler) completeLink(w http.ResponseWriter, r *http.Request, provider, userID string, identity *providerIdentity, token *oauth2.Token) {
	// 该第三方账号不能已绑定在其他用户上
	existing, err := h.store.GetOAuthTokenByProviderUser(r.Context(), provider, identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil && existing.UserID != userID {
		writeError(w, http.StatusConflict, "this account is already linked to another user")
		return
	}

	if err := h.saveToken(r.Context(), provider, userID, identity, token); err != nil {
		log.Printf("[oauth.link] UpsertOAuthToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[oauth] Linked %s account to user %s", provider, userID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "account linked", "provider": provider})
}

// Unlink 解绑提供方
//
// 无本地密码且仅剩一个绑定时拒绝，避免账号失去全部登录方式。
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	name := r.PathValue("provider")

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if user.PasswordHash == "" {
		tokens, err := h.store.ListOAuthTokensByUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if len(tokens) <= 1 {
			writeError(w, http.StatusConflict, "cannot remove the only sign-in method; set a password first")
			return
		}
	}

	if err := h.store.DeleteOAuthToken(r.Context(), user.ID, name); err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "no such connection")
			return
		}
		log.Printf("[oauth.unlink] DeleteOAuthToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "account unlinked"})
}

// ============================================================================
// userinfo
// ============================================================================

// providerIdentity 从 userinfo 响应提炼的第三方身份
type providerIdentity struct {
	ID    string
	Email string
	Name  string
}

// fetchIdentity 调用提供方 userinfo 端点
//
// 字段名做宽松映射：id/sub、email、name/login，兼容主流提供方。
func (h *Handler) fetchIdentity(ctx context.Context, p config.OAuthProvider, token *oauth2.Token) (*providerIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, body)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	identity := &providerIdentity{
		ID:    stringField(raw, "id", "sub"),
		Email: stringField(raw, "email"),
		Name:  stringField(raw, "name", "login", "username"),
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("userinfo response has no id/sub field")
	}
	return identity, nil
}

// stringField 按候选键序取第一个非空字段，数字 id 转为十进制字符串
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// ============================================================================
// 内部工具
// ============================================================================

func (h *Handler) publishLogin(r *http.Request, user *model.User, provider string) {
	if h.events == nil {
		return
	}
	err := h.events.PublishActivity(r.Context(), &eventbus.ActivityEvent{
		Type:      eventbus.ActivityUserLogin,
		ActorID:   user.ID,
		Entity:    "user",
		EntityID:  user.ID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"provider": provider},
	})
	if err != nil {
		log.Printf("[oauth] PublishActivity error: %v", err)
	}
}

func newState() string {
	b := make([]byte, 24)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
