package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vyral-cms/internal/shared/eventbus"
)

// WebSocket 心跳参数
const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 管理后台与 API 可能不同源，具体控制交给部署层
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ActivityWS 活动流 WebSocket
//
// 连接建立后先推送最近的历史事件，再持续推送新事件。
// 认证由外层中间件完成（token 走 query 参数）。
func (h *Handler) ActivityWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.metrics.wsConnections.Inc()
	defer h.metrics.wsConnections.Dec()

	ctx := r.Context()

	// 回放最新 50 条（从流尾部取，老事件不占回放窗口）
	recent, err := h.events.GetRecentActivities(ctx, 50)
	if err != nil {
		log.Printf("[ws] GetRecentActivities error: %v", err)
	}
	for _, event := range recent {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}

	ch, err := h.events.SubscribeActivities(ctx)
	if err != nil {
		log.Printf("[ws] SubscribeActivities error: %v", err)
		return
	}

	// 读循环只为感知客户端断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ActivityHistory 活动流历史查询（REST 补充，管理后台初始加载用）
func (h *Handler) ActivityHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.GetActivities(r.Context(), r.URL.Query().Get("from"), 100)
	if err != nil {
		log.Printf("[activity] GetActivities error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load activities")
		return
	}
	if events == nil {
		events = []*eventbus.ActivityEvent{}
	}
	count, err := h.events.GetActivityCount(r.Context())
	if err != nil {
		log.Printf("[activity] GetActivityCount error: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  count,
	})
}
