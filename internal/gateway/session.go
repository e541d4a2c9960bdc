// Package gateway runs code on a remote Jupyter Enterprise Gateway:
// it creates a kernel over HTTP, streams an execute request over the
// kernel's websocket channel, aggregates the correlated response
// messages into a Result, and reconciles files created in the session
// workspace with the file registry.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/mount"
	"github.com/codefionn/kernelrunner/internal/prepare"
	"github.com/codefionn/kernelrunner/internal/registry"
	"github.com/codefionn/kernelrunner/internal/storage"
	"github.com/codefionn/kernelrunner/internal/workspace"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds each receive on the channel.
const DefaultTimeout = 60 * time.Second

const teardownTimeout = 5 * time.Second

// Options configures a Session.
type Options struct {
	GatewayURL string
	Code       string
	Token      string
	Timeout    time.Duration
	KernelName string
	Username   string
	ChatID     string
	UserID     string
	DataDir    string

	// KernelInitCode runs as its own execute request before the user
	// code. Failures degrade to stderr text, never abort the session.
	KernelInitCode string

	// Collaborators. Chats+Files+Blobs enable file preparation; Files
	// additionally enables generated-file registration.
	Chats chatstore.Store
	Files registry.Registry
	Blobs storage.Provider

	// TrackedExtensions for the workspace diff; defaults apply when
	// empty.
	TrackedExtensions []string

	// TrackPredicate gates output-file tracking on the submitted code.
	// Nil tracks whenever a chat/user context is present.
	TrackPredicate *workspace.TrackPredicate

	// Dialer and HTTPClient exist for tests; nil selects defaults.
	Dialer     *websocket.Dialer
	HTTPClient *http.Client
}

// Session owns the lifecycle of one remote kernel execution. A Session
// is single-use: construct, Run once, discard.
type Session struct {
	baseURL      string
	originalCode string
	code         string
	token        string
	timeout      time.Duration
	kernelName   string
	username     string
	chatID       string
	userID       string
	sessionPath  string

	initCode string

	httpClient *http.Client
	dialer     *websocket.Dialer
	headers    http.Header

	kernelID string
	state    State
	result   *Result

	tracker *workspace.Tracker
	prep    *prepare.Stage
	files   registry.Registry

	log *logger.Logger
}

// NewSession builds a session for one execution request.
func NewSession(opts Options) *Session {
	baseURL := opts.GatewayURL
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	kernelName := opts.KernelName
	if kernelName == "" {
		kernelName = "python"
	}
	username := opts.Username
	if username == "" {
		username = "code-interpreter"
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	s := &Session{
		baseURL:      baseURL,
		originalCode: opts.Code,
		token:        opts.Token,
		timeout:      timeout,
		kernelName:   kernelName,
		username:     username,
		chatID:       opts.ChatID,
		userID:       opts.UserID,
		initCode:     opts.KernelInitCode,
		httpClient:   httpClient,
		dialer:       dialer,
		headers:      http.Header{},
		state:        StateCreated,
		result:       &Result{Files: []FileOutput{}},
		files:        opts.Files,
		log:          logger.Global().WithPrefix("gateway"),
	}

	if s.chatID != "" {
		s.sessionPath = filepath.Join(dataDir, "uploads", s.chatID)
		s.log = s.log.With("chat", s.chatID)
	}
	s.code = mount.ToWorkspace(s.originalCode, s.sessionPath)

	if opts.Chats != nil && opts.Files != nil && opts.Blobs != nil && s.chatID != "" {
		s.prep = prepare.NewStage(opts.Chats, opts.Files, opts.Blobs, dataDir)
	}

	if s.chatID != "" && s.userID != "" && opts.Files != nil {
		if opts.TrackPredicate == nil || opts.TrackPredicate.ShouldTrack(s.originalCode) {
			s.tracker = workspace.NewTracker(s.sessionPath, opts.TrackedExtensions)
		} else {
			s.log.Info("code shows no file-output intent, tracking disabled")
		}
	}

	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// KernelID returns the remote kernel identifier once assigned.
func (s *Session) KernelID() string {
	return s.kernelID
}

// Run executes the session end to end. It never returns an error and
// never panics outward: any failure lands in the Result's stderr. The
// remote kernel and transport are released on every exit path.
func (s *Session) Run(ctx context.Context) *Result {
	defer s.teardown()
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("session run panicked: %v", rec)
			s.appendStderr(fmt.Sprintf("Error: %v", rec))
			s.state = StateFailed
		}
	}()

	if s.sessionPath != "" {
		if err := os.MkdirAll(s.sessionPath, 0755); err != nil {
			s.log.Warn("could not create session workspace %s: %v", s.sessionPath, err)
		}
	}

	if s.prep != nil {
		report := s.prep.Prepare(ctx, s.chatID)
		if !report.Success {
			s.log.Warn("file preparation had issues: %v", report.Errors)
		} else if len(report.Prepared) > 0 {
			s.log.Info("prepared %d files", len(report.Prepared))
		}
	}

	if s.tracker != nil {
		s.tracker.CapturePre()
	}

	s.setupAuth()

	if err := s.createKernel(ctx); err != nil {
		s.log.Error("failed to create kernel: %v", err)
		s.appendStderr(fmt.Sprintf("Error: %v", err))
		s.state = StateFailed
		return s.result
	}

	s.executeCode(ctx)

	if s.tracker != nil {
		s.tracker.CapturePost()
		s.registerGenerated(ctx)
	}

	return s.result
}

// setupAuth attaches the bearer credential header. A no-op without a
// token; always succeeds.
func (s *Session) setupAuth() {
	if s.token != "" {
		s.headers.Set("Authorization", "token "+s.token)
		s.log.Debug("set up authorization header with token")
	}
	s.state = StateAuthenticated
}

func (s *Session) createKernel(ctx context.Context) error {
	payload := map[string]any{
		"name": s.kernelName,
		"env": map[string]string{
			"KERNEL_USERNAME": s.username,
			"KERNEL_ID":       uuid.New().String(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode kernel request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"api/kernels", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to build kernel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.applyHeaders(req)

	s.log.Info("starting %s kernel for user %s", s.kernelName, s.username)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kernel create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kernel create returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var kernel struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&kernel); err != nil {
		return fmt.Errorf("failed to decode kernel response: %w", err)
	}
	if kernel.ID == "" {
		return fmt.Errorf("kernel create response missing id")
	}

	s.kernelID = kernel.ID
	s.state = StateKernelStarted
	s.log = s.log.With("kernel", s.kernelID)
	s.log.Info("created kernel for user %s", s.username)
	return nil
}

// channelURL derives the websocket endpoint from the HTTP base URL by
// swapping the scheme prefix (http→ws, https→wss).
func (s *Session) channelURL() string {
	wsBase := strings.Replace(s.baseURL, "http", "ws", 1)
	return fmt.Sprintf("%sapi/kernels/%s/channels", wsBase, s.kernelID)
}

// accumulator collects the multiplexed output of one execute request.
type accumulator struct {
	stdout   strings.Builder
	stderr   strings.Builder
	results  []string
	status   string
	timedOut bool
}

func (s *Session) executeCode(ctx context.Context) {
	conn, err := s.dialChannel(ctx)
	if err != nil {
		s.result.Stderr = fmt.Sprintf("WebSocket connection error: %v", err)
		s.state = StateFailed
		return
	}
	defer func() { conn.Close() }()

	s.state = StateExecuting

	if s.initCode != "" {
		// Init stdout is setup noise and is always discarded; only
		// failures surface to the caller.
		var init accumulator
		err := s.streamRequest(conn, s.initCode, &init)
		switch {
		case err != nil:
			s.appendStderr(fmt.Sprintf("Kernel init failed: %v", err))
		case init.timedOut:
			s.log.Warn("kernel init code timed out")
			s.appendStderr("Kernel init timed out.")
		case init.status == "error":
			s.log.Warn("kernel init code completed with errors")
			s.appendStderr(strings.TrimSpace(init.stderr.String()))
		}

		// A read failure leaves the websocket unusable: gorilla makes
		// read errors sticky, so the next ReadMessage fails instantly.
		// Redial so the user request gets a clean channel.
		if err != nil || init.timedOut {
			conn.Close()
			conn, err = s.dialChannel(ctx)
			if err != nil {
				s.appendStderr(fmt.Sprintf("WebSocket connection error: %v", err))
				s.state = StateFailed
				return
			}
		}
	}

	var acc accumulator
	if err := s.streamRequest(conn, s.code, &acc); err != nil {
		acc.stderr.WriteString(fmt.Sprintf("\nChannel error: %v", err))
	}

	s.result.Stdout = mount.ToVirtual(strings.TrimSpace(acc.stdout.String()), s.sessionPath)
	stderr := strings.TrimSpace(acc.stderr.String())
	if existing := s.result.Stderr; existing != "" && stderr != "" {
		stderr = existing + "\n" + stderr
	} else if stderr == "" {
		stderr = s.result.Stderr
	}
	s.result.Stderr = mount.ToVirtual(stderr, s.sessionPath)
	s.result.Result = mount.ToVirtual(strings.TrimSpace(strings.Join(acc.results, "\n")), s.sessionPath)

	s.state = StateCompleted
	s.log.Info("code execution completed (status=%s, timedOut=%v)", acc.status, acc.timedOut)
}

func (s *Session) dialChannel(ctx context.Context) (*websocket.Conn, error) {
	wsURL := s.channelURL()
	s.log.Debug("connecting to channel at %s", wsURL)

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, s.headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.log.Error("websocket error: %v", err)
		return nil, err
	}
	return conn, nil
}

// streamRequest sends one execute request and aggregates its
// correlated responses until the execute reply or a receive timeout.
func (s *Session) streamRequest(conn *websocket.Conn, code string, acc *accumulator) error {
	request := newExecuteRequest(code, s.username)
	if err := conn.WriteJSON(request); err != nil {
		return fmt.Errorf("failed to send execute request: %w", err)
	}

	msgID := request.Header.MsgID
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.timeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				acc.stderr.WriteString("\nExecution timed out.")
				acc.timedOut = true
				s.log.Warn("execution timed out after %s", s.timeout)
				return nil
			}
			return fmt.Errorf("failed to receive channel message: %w", err)
		}

		var msg channelMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn("discarding malformed channel message: %v", err)
			continue
		}

		// Messages belonging to other requests on a shared channel are
		// ignored, not misinterpreted.
		if msg.ParentHeader.MsgID != msgID {
			continue
		}

		if done := s.dispatch(&msg, acc); done {
			return nil
		}
	}
}

// dispatch applies one correlated message to the accumulator and
// reports whether the request is finished.
func (s *Session) dispatch(msg *channelMessage, acc *accumulator) bool {
	switch msg.MsgType {
	case msgTypeStream:
		var content streamContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return false
		}
		switch content.Name {
		case "stdout":
			acc.stdout.WriteString(content.Text)
		case "stderr":
			acc.stderr.WriteString(content.Text)
		}

	case msgTypeExecuteResult, msgTypeDisplayData:
		var content dataContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return false
		}
		if text, ok := content.Data["text/plain"].(string); ok {
			acc.results = append(acc.results, text)
		}
		if image, ok := content.Data["image/png"].(string); ok {
			acc.results = append(acc.results, "data:image/png;base64,"+image)
		}

	case msgTypeError:
		var content errorContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return false
		}
		acc.stderr.WriteString(strings.Join(content.Traceback, "\n"))

	case msgTypeExecuteReply:
		var content replyContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return true
		}
		acc.status = content.Status
		if content.Status == "ok" {
			s.log.Debug("code execution completed successfully")
		} else {
			s.log.Debug("code execution completed with errors")
		}
		return true
	}
	return false
}

// registerGenerated diffs the workspace, registers new files and
// appends the successfully registered ones to the result.
func (s *Session) registerGenerated(ctx context.Context) {
	generated := s.tracker.NewFiles()
	if len(generated) == 0 {
		s.log.Info("no new files generated during execution")
		return
	}

	registrar := registry.NewRegistrar(s.files, s.chatID, s.userID)
	ids := registrar.Register(ctx, generated)

	for i, file := range generated {
		if ids[i] == "" {
			s.log.Warn("failed to register file: %s", file.Name)
			continue
		}
		s.result.Files = append(s.result.Files, FileOutput{
			ID:     ids[i],
			Name:   file.Name,
			URL:    registry.FileURL(ids[i]),
			Size:   file.Size,
			Format: file.Format,
		})
	}
}

// teardown releases the remote kernel and the transport. Best-effort:
// failures are logged, never raised. Runs on every exit path.
func (s *Session) teardown() {
	if s.kernelID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"api/kernels/"+s.kernelID, nil)
		if err != nil {
			s.log.Error("close kernel failed: %v", err)
		} else {
			s.applyHeaders(req)
			resp, err := s.httpClient.Do(req)
			if err != nil {
				s.log.Error("close kernel failed: %v", err)
			} else {
				resp.Body.Close()
				if resp.StatusCode >= 300 {
					s.log.Error("close kernel returned %s", resp.Status)
				} else {
					s.log.Info("closed kernel")
				}
			}
		}
	}
	s.httpClient.CloseIdleConnections()
}

func (s *Session) applyHeaders(req *http.Request) {
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
}

func (s *Session) appendStderr(text string) {
	if text == "" {
		return
	}
	if s.result.Stderr != "" {
		s.result.Stderr += "\n" + text
	} else {
		s.result.Stderr = text
	}
}
