package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vyral-cms/internal/config"
)

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{"POST", "/api/v1/auth/login", true},
		{"POST", "/api/v1/auth/refresh", true},
		{"POST", "/api/v1/auth/logout", false},
		{"GET", "/api/v1/auth/me", false},
		{"GET", "/api/v1/oauth/providers", true},
		{"GET", "/api/v1/oauth/github/callback", true},
		{"GET", "/api/v1/setup/status", true},
		{"POST", "/api/v1/setup/install", true},
		{"GET", "/health", true},
		{"GET", "/metrics", true},
		{"GET", "/api/v1/settings/public", true},
		{"PUT", "/api/v1/settings/public", false},
		{"GET", "/api/v1/settings", false},
		{"GET", "/api/v1/public/posts", true},
		{"GET", "/api/v1/public/posts/hello-world", true},
		{"GET", "/api/v1/public/media/med-abc", true},
		{"POST", "/api/v1/public/posts", false},
		{"GET", "/api/v1/posts", false},
		{"DELETE", "/api/v1/users/usr-1", false},
		{"GET", "/ws/activity", false},
	}

	for _, tt := range tests {
		if got := isPublicRoute(tt.method, tt.path); got != tt.want {
			t.Errorf("isPublicRoute(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

var testCfg = config.AuthConfig{
	JWTSecret:       "middleware-test-secret",
	AccessTokenTTL:  15 * time.Minute,
	RefreshTokenTTL: time.Hour,
}

// echoUser 回显 context 中认证用户的探针处理器
func echoUser(t *testing.T, want *AuthUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		if want == nil {
			if user != nil {
				t.Errorf("不应有认证用户, got %+v", user)
			}
		} else {
			if user == nil || user.ID != want.ID || user.Role != want.Role {
				t.Errorf("user = %+v, want %+v", user, want)
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("无密钥时放行一切", func(t *testing.T) {
		handler := Middleware(config.AuthConfig{})(echoUser(t, nil))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/posts", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("缺少令牌401", func(t *testing.T) {
		handler := Middleware(testCfg)(echoUser(t, nil))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/posts", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("有效令牌注入用户", func(t *testing.T) {
		token, err := GenerateAccessToken(testCfg, "usr-1", "a@b.c", "editor")
		if err != nil {
			t.Fatal(err)
		}
		handler := Middleware(testCfg)(echoUser(t, &AuthUser{ID: "usr-1", Role: "editor"}))
		req := httptest.NewRequest("GET", "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("刷新令牌不能当访问令牌", func(t *testing.T) {
		token, err := GenerateRefreshToken(testCfg, "usr-1", NewJTI())
		if err != nil {
			t.Fatal(err)
		}
		handler := Middleware(testCfg)(echoUser(t, nil))
		req := httptest.NewRequest("GET", "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("过期令牌被拒", func(t *testing.T) {
		expired := config.AuthConfig{
			JWTSecret:      testCfg.JWTSecret,
			AccessTokenTTL: -time.Minute,
		}
		token, err := GenerateAccessToken(expired, "usr-1", "a@b.c", "admin")
		if err != nil {
			t.Fatal(err)
		}
		handler := Middleware(testCfg)(echoUser(t, nil))
		req := httptest.NewRequest("GET", "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("WebSocket走query参数", func(t *testing.T) {
		token, _ := GenerateAccessToken(testCfg, "usr-ws", "w@b.c", "admin")
		handler := Middleware(testCfg)(echoUser(t, &AuthUser{ID: "usr-ws", Role: "admin"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ws/activity?token="+token, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("畸形Authorization头401", func(t *testing.T) {
		handler := Middleware(testCfg)(echoUser(t, nil))
		req := httptest.NewRequest("GET", "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestAdminOnly(t *testing.T) {
	handler := AdminOnly(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name string
		user *AuthUser
		want int
	}{
		{"管理员放行", &AuthUser{ID: "u", Role: "admin"}, http.StatusOK},
		{"编辑被拒", &AuthUser{ID: "u", Role: "editor"}, http.StatusForbidden},
		{"无用户被拒", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/users", nil)
			if tt.user != nil {
				req = req.WithContext(WithAuthUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
