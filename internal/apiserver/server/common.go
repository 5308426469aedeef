// Package server HTTP 服务组装：路由、中间件、指标、WebSocket
package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Version 对外报告的服务版本
const Version = "1.0.0"

// ============================================================================
// 健康检查
// ============================================================================

// Health 健康检查处理器
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "vyral-cms",
		"version": Version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
