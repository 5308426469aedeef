package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"vyral-cms/internal/apiserver/auth"
	"vyral-cms/internal/config"
	"vyral-cms/internal/shared/cache"
	"vyral-cms/internal/shared/eventbus"
	"vyral-cms/internal/shared/model"
	"vyral-cms/internal/shared/storage/memstore"
)

// fakeProvider 模拟 OAuth2 提供方的 token / userinfo 端点
type fakeProvider struct {
	server   *httptest.Server
	userinfo map[string]interface{}
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		userinfo: map[string]interface{}{
			"id":    float64(42),
			"email": "dev@example.com",
			"login": "devuser",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "provider-access-token",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fp.userinfo)
	})
	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

type testEnv struct {
	store    *memstore.Store
	cache    *cache.MemCache
	provider *fakeProvider
	mux      *http.ServeMux
}

var authCfg = config.AuthConfig{
	JWTSecret:       "test-secret",
	AccessTokenTTL:  15 * time.Minute,
	RefreshTokenTTL: 7 * 24 * time.Hour,
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    memstore.NewStore(),
		cache:    cache.NewMemCache(),
		provider: newFakeProvider(t),
	}

	cfg := config.OAuthConfig{Providers: map[string]config.OAuthProvider{
		"github": {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			AuthURL:      env.provider.server.URL + "/authorize",
			TokenURL:     env.provider.server.URL + "/token",
			UserInfoURL:  env.provider.server.URL + "/userinfo",
			RedirectURL:  "http://localhost:8080/api/v1/oauth/github/callback",
			Scopes:       []string{"user:email"},
		},
	}}

	h := NewHandler(env.store, env.cache, env.cache, eventbus.NewMemEventBus(), cfg, authCfg)
	env.mux = http.NewServeMux()
	h.RegisterRoutes(env.mux)
	return env
}

// beginAuthorize 发起授权并返回提供方回跳用的 state
func (env *testEnv) beginAuthorize(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/oauth/github/authorize", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("authorize status = %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("授权地址缺少 state")
	}
	return state
}

func (env *testEnv) callback(t *testing.T, state string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest("GET",
		"/api/v1/oauth/github/callback?code=auth-code&state="+state, nil))
	return rec
}

func TestProviders(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/oauth/providers", nil))

	var resp struct {
		Providers []string `json:"providers"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Providers) != 1 || resp.Providers[0] != "github" {
		t.Errorf("providers = %v", resp.Providers)
	}
}

func TestLoginCreatesUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.callback(t, env.beginAuthorize(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User         *model.User `json:"user"`
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.User == nil || resp.User.Email != "dev@example.com" {
		t.Fatalf("user = %+v", resp.User)
	}
	if resp.User.Role != model.UserRoleAuthor {
		t.Errorf("role = %q, want author", resp.User.Role)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("缺少令牌")
	}

	// 访问令牌可被解析
	claims, err := auth.ParseToken(authCfg, resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != resp.User.ID {
		t.Errorf("sub = %q", claims.Subject)
	}

	t.Run("再次登录复用同一用户", func(t *testing.T) {
		rec := env.callback(t, env.beginAuthorize(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var again struct {
			User *model.User `json:"user"`
		}
		json.Unmarshal(rec.Body.Bytes(), &again)
		if again.User.ID != resp.User.ID {
			t.Errorf("user id 变化: %s != %s", again.User.ID, resp.User.ID)
		}
	})
}

func TestLoginLinksByEmail(t *testing.T) {
	env := newTestEnv(t)

	// 预置同邮箱的本地账号
	now := time.Now()
	existing := &model.User{
		ID: "usr-local", Email: "dev@example.com", Role: model.UserRoleEditor,
		Status: model.UserStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	if err := env.store.CreateUser(t.Context(), existing); err != nil {
		t.Fatal(err)
	}

	rec := env.callback(t, env.beginAuthorize(t))
	var resp struct {
		User *model.User `json:"user"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.ID != "usr-local" {
		t.Errorf("未按邮箱关联既有账号, user = %+v", resp.User)
	}
}

func TestCallbackStateValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("伪造state被拒", func(t *testing.T) {
		rec := env.callback(t, "forged-state")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("state只能消费一次", func(t *testing.T) {
		state := env.beginAuthorize(t)
		if rec := env.callback(t, state); rec.Code != http.StatusOK {
			t.Fatalf("首次回调 status = %d", rec.Code)
		}
		if rec := env.callback(t, state); rec.Code != http.StatusBadRequest {
			t.Errorf("重放 status = %d, want 400", rec.Code)
		}
	})

	t.Run("未知提供方404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/oauth/gitlab/authorize", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestDisabledUserCannotLogin(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now()
	err := env.store.CreateUser(t.Context(), &model.User{
		ID: "usr-banned", Email: "dev@example.com", Role: model.UserRoleAuthor,
		Status: model.UserStatusDisabled, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.callback(t, env.beginAuthorize(t))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestLinkAndUnlink(t *testing.T) {
	env := newTestEnv(t)

	// 本地账号（有密码）发起绑定
	now := time.Now()
	local := &model.User{
		ID: "usr-local", Email: "local@example.com", PasswordHash: "x",
		Role: model.UserRoleAdmin, Status: model.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := env.store.CreateUser(t.Context(), local); err != nil {
		t.Fatal(err)
	}
	actor := &auth.AuthUser{ID: local.ID, Email: local.Email, Role: "admin"}

	req := httptest.NewRequest("POST", "/api/v1/auth/connections/github", nil)
	req = req.WithContext(auth.WithAuthUser(req.Context(), actor))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("link status = %d: %s", rec.Code, rec.Body.String())
	}

	var linkResp struct {
		AuthorizeURL string `json:"authorize_url"`
	}
	json.Unmarshal(rec.Body.Bytes(), &linkResp)
	loc, _ := url.Parse(linkResp.AuthorizeURL)
	state := loc.Query().Get("state")

	rec = env.callback(t, state)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("绑定记录可见", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/auth/connections", nil)
		req = req.WithContext(auth.WithAuthUser(req.Context(), actor))
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)

		var resp struct {
			Connections []*model.OAuthToken `json:"connections"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if len(resp.Connections) != 1 || resp.Connections[0].Provider != "github" {
			t.Errorf("connections = %+v", resp.Connections)
		}
	})

	t.Run("解绑", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/v1/auth/connections/github", nil)
		req = req.WithContext(auth.WithAuthUser(req.Context(), actor))
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		tokens, _ := env.store.ListOAuthTokensByUser(t.Context(), local.ID)
		if len(tokens) != 0 {
			t.Errorf("解绑后仍有 %d 条记录", len(tokens))
		}
	})
}

func TestUnlinkLastSignInMethod(t *testing.T) {
	env := newTestEnv(t)

	// 社交登录创建的无密码账号
	rec := env.callback(t, env.beginAuthorize(t))
	var resp struct {
		User *model.User `json:"user"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	actor := &auth.AuthUser{ID: resp.User.ID, Role: string(resp.User.Role)}
	req := httptest.NewRequest("DELETE", "/api/v1/auth/connections/github", nil)
	req = req.WithContext(auth.WithAuthUser(req.Context(), actor))
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409（唯一登录方式不可解绑）", rec.Code)
	}
}
