package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"amigolms/internal/answers"
	"amigolms/internal/automator"
	"amigolms/internal/browser"
	"amigolms/internal/config"
	"amigolms/internal/export"
)

//go:embed static
var staticFiles embed.FS

// ProgressEvent 推送给前端的进度事件
type ProgressEvent struct {
	Type    string `json:"type"` // log, progress, skipped, complete, error
	Message string `json:"message"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Status 当前状态
type Status struct {
	BrowserRunning bool   `json:"browserRunning"`
	Enabled        bool   `json:"enabled"`
	Message        string `json:"message"`
	Current        int    `json:"current"`
	Total          int    `json:"total"`
}

// Server 控制面板服务器
// 浏览器与自动化控制器的生命周期都挂在这里
type Server struct {
	mu      sync.RWMutex
	cfg     *config.Config
	browser *browser.Browser
	auto    *automator.Automator
	status  *Status

	sseClients map[chan ProgressEvent]bool
	sseMu      sync.RWMutex
}

// NewServer 创建服务器
func NewServer() *Server {
	return &Server{
		cfg: config.GetConfig(),
		status: &Status{
			Message: "就绪",
		},
		sseClients: make(map[chan ProgressEvent]bool),
	}
}

// Start 启动服务器
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// API路由
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/settings/save", s.handleSaveSettings)
	mux.HandleFunc("/api/browser/start", s.handleBrowserStart)
	mux.HandleFunc("/api/browser/stop", s.handleBrowserStop)
	mux.HandleFunc("/api/toggle", s.handleToggle)
	mux.HandleFunc("/api/checkpage", s.handleCheckPage)
	mux.HandleFunc("/api/fill", s.handleFill)
	mux.HandleFunc("/api/survey", s.handleSurvey)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleSSE)

	// 静态文件服务
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return err
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	addr := fmt.Sprintf(":%d", port)
	fmt.Printf("🚀 服务器已启动: http://localhost%s\n", addr)
	return http.ListenAndServe(addr, mux)
}

// handleSettings 获取开关配置
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.cfg.Load()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cfg.Settings())
}

// handleSaveSettings 保存开关配置
// 总开关不走这里，只能通过 toggle 切换
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req config.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req.IsActive = s.cfg.Settings().IsActive
	if err := s.cfg.UpdateSettings(req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "配置保存成功"})
}

// handleBrowserStart 启动浏览器并打开LMS首页（用户手动登录）
func (s *Server) handleBrowserStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	if s.browser != nil {
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "浏览器已在运行",
		})
		return
	}

	b := browser.New(s.cfg)
	if err := b.Start(); err != nil {
		s.mu.Unlock()
		s.sendSSEEvent(ProgressEvent{Type: "error", Message: fmt.Sprintf("启动浏览器失败: %v", err)})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.browser = b
	s.auto = automator.New(s.cfg, b, s.progressCallback)
	s.status.BrowserRunning = true
	s.status.Message = "浏览器已启动，请登录"
	s.mu.Unlock()

	s.sendSSEEvent(ProgressEvent{Type: "log", Message: "浏览器已启动"})

	// 异步打开首页，登录成功后回写Cookie
	go func() {
		if err := b.OpenHome(); err != nil {
			s.sendSSEEvent(ProgressEvent{Type: "error", Message: fmt.Sprintf("打开首页失败: %v", err)})
			return
		}
		if err := b.SaveCookies(); err != nil {
			s.sendSSEEvent(ProgressEvent{Type: "log", Message: fmt.Sprintf("保存Cookie失败: %v", err)})
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "浏览器已启动"})
}

// handleBrowserStop 关闭浏览器
func (s *Server) handleBrowserStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	if s.auto != nil {
		s.auto.Disable()
		s.auto = nil
	}
	if s.browser != nil {
		s.browser.Stop()
		s.browser = nil
	}
	s.status.BrowserRunning = false
	s.status.Enabled = false
	s.status.Message = "浏览器已关闭"
	s.mu.Unlock()

	s.sendSSEEvent(ProgressEvent{Type: "log", Message: "浏览器已关闭"})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// handleToggle 切换自动化开关，返回切换后的状态
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	auto := s.auto
	s.mu.Unlock()

	if auto == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"enabled": false,
			"message": "请先启动浏览器",
		})
		return
	}

	var err error
	if req.Enabled {
		err = auto.Enable()
	} else {
		err = auto.Disable()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	enabled := auto.Enabled()
	s.mu.Lock()
	s.status.Enabled = enabled
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "enabled": enabled})
}

// handleCheckPage 检测当前页面是否可自动化，返回题目数量
func (s *Server) handleCheckPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b := s.currentBrowser()
	if b == nil {
		http.Error(w, "浏览器未启动", http.StatusConflict)
		return
	}

	ctx := r.Context()
	url, err := b.URL(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	questionCount := 0
	if html, err := b.HTML(ctx); err == nil {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			questionCount = answers.CountQuestions(doc)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"isActivityPage": automator.IsActivityPage(automator.ClassifyPage(url)),
		"questionCount":  questionCount,
	})
}

// handleFill 按答案表填写当前作业页
func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Answers map[string]string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Answers) == 0 {
		http.Error(w, "答案表为空", http.StatusBadRequest)
		return
	}

	b := s.currentBrowser()
	if b == nil {
		http.Error(w, "浏览器未启动", http.StatusConflict)
		return
	}

	js, err := answers.FillAssignmentJS(req.Answers)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	raw, err := b.EvaluateString(r.Context(), js)
	if err != nil {
		s.sendSSEEvent(ProgressEvent{Type: "error", Message: fmt.Sprintf("填写作业失败: %v", err)})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := answers.ParseFillResult(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.sendSSEEvent(ProgressEvent{
		Type:    "log",
		Message: fmt.Sprintf("作业填写完成 %d/%d", result.QuestionsProcessed, result.TotalQuestions),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleSurvey 填写当前问卷页
func (s *Server) handleSurvey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b := s.currentBrowser()
	if b == nil {
		http.Error(w, "浏览器未启动", http.StatusConflict)
		return
	}

	raw, err := b.EvaluateString(r.Context(), answers.FillSurveyJS())
	if err != nil {
		s.sendSSEEvent(ProgressEvent{Type: "error", Message: fmt.Sprintf("填写问卷失败: %v", err)})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := answers.ParseSurveyResult(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.sendSSEEvent(ProgressEvent{Type: "log", Message: fmt.Sprintf("问卷已填写 %d 项", result.Count)})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleExport 导出采集到的答案
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Course     string          `json:"course"`
		Assignment string          `json:"assignment"`
		Payload    json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := export.Write(".", req.Course, req.Assignment, req.Payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"path":    export.Path(".", req.Course, req.Assignment),
	})
}

// handleStatus 获取状态
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	status := *s.status
	auto := s.auto
	s.mu.RUnlock()

	if auto != nil {
		status.Enabled = auto.Enabled()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// currentBrowser 当前浏览器实例
func (s *Server) currentBrowser() *browser.Browser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browser
}

// progressCallback 自动化事件回调
func (s *Server) progressCallback(event automator.Event) {
	s.mu.Lock()
	s.status.Message = event.Message
	if event.Total > 0 {
		s.status.Total = event.Total
	}
	if event.Current > 0 {
		s.status.Current = event.Current
	}
	if event.Type == automator.EventComplete {
		s.status.Enabled = false
	}
	s.mu.Unlock()

	s.sendSSEEvent(ProgressEvent{
		Type:    event.Type,
		Message: event.Message,
		Current: event.Current,
		Total:   event.Total,
	})
}

// handleSSE SSE事件流
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// 设置SSE头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// 创建客户端通道
	clientChan := make(chan ProgressEvent, 100)

	// 注册客户端
	s.sseMu.Lock()
	s.sseClients[clientChan] = true
	s.sseMu.Unlock()

	// 清理函数
	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, clientChan)
		close(clientChan)
		s.sseMu.Unlock()
	}()

	// 发送初始连接事件
	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"message\":\"SSE连接成功\"}\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// 监听事件
	for {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// sendSSEEvent 向所有SSE客户端发送事件
func (s *Server) sendSSEEvent(event ProgressEvent) {
	s.sseMu.RLock()
	defer s.sseMu.RUnlock()

	for clientChan := range s.sseClients {
		select {
		case clientChan <- event:
		default:
			// 通道满了，跳过
		}
	}
}
