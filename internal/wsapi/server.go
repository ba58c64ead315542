package wsapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriane-labs/hearth/internal/agent"
	"github.com/oriane-labs/hearth/internal/auth"
	"github.com/oriane-labs/hearth/internal/cron"
	"github.com/oriane-labs/hearth/internal/memory"
	"github.com/oriane-labs/hearth/internal/rag/index"
	ragcontext "github.com/oriane-labs/hearth/internal/rag/context"
	"github.com/oriane-labs/hearth/internal/sessions"
	"github.com/oriane-labs/hearth/pkg/models"
)

// Preferences is the mutable subset of config.PreferencesConfig the
// preferences/{get,set} frames read and write at runtime.
type Preferences struct {
	AgentName       string `json:"agent_name"`
	UserName        string `json:"user_name"`
	Language        string `json:"language"`
	DefaultProvider string `json:"default_provider"`
	DefaultModel    string `json:"default_model"`
	Theme           string `json:"theme"`
}

// Server is the WebSocket control plane: one Conn per browser/CLI client,
// dispatching {type,id,...} frames to the kernel's session store, agent
// loops, RAG index, memory manager, and scheduler.
type Server struct {
	loops          map[string]*agent.AgenticLoop
	defaultProv    string
	sessions       sessions.Store
	memoryManager  *memory.Manager
	ragIndex       *index.Manager
	ragInjector    *ragcontext.Injector
	scheduler      *cron.Scheduler
	authSvc        *auth.Service
	defaultAgentID string
	logger         *slog.Logger
	upgrader       websocket.Upgrader

	prefsMu sync.RWMutex
	prefs   Preferences
}

// Config configures a Server. Loops must have at least one entry; the key
// matching DefaultProvider (or the sole entry) is used when a chat request
// omits "provider".
type Config struct {
	Loops          map[string]*agent.AgenticLoop
	DefaultProv    string
	Sessions       sessions.Store
	MemoryManager  *memory.Manager
	RAGIndex       *index.Manager
	RAGInjector    *ragcontext.Injector
	Scheduler      *cron.Scheduler
	Auth           *auth.Service
	DefaultAgentID string
	Preferences    Preferences
	Logger         *slog.Logger
}

// NewServer builds a WebSocket control-plane server from kernel components
// assembled during bootstrap.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultProv := cfg.DefaultProv
	if defaultProv == "" {
		for name := range cfg.Loops {
			defaultProv = name
			break
		}
	}
	return &Server{
		loops:          cfg.Loops,
		defaultProv:    defaultProv,
		sessions:       cfg.Sessions,
		memoryManager:  cfg.MemoryManager,
		ragIndex:       cfg.RAGIndex,
		ragInjector:    cfg.RAGInjector,
		scheduler:      cfg.Scheduler,
		authSvc:        cfg.Auth,
		defaultAgentID: cfg.DefaultAgentID,
		logger:         logger.With("component", "wsapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		prefs: cfg.Preferences,
	}
}

// ServeHTTP authenticates the upgrade request and hands the connection to a
// per-client read/dispatch loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &clientConn{
		server: s,
		conn:   conn,
		user:   user,
		send:   make(chan []byte, 32),
	}
	go c.writeLoop()
	c.readLoop()
}

// authenticate checks a bearer JWT first, then a static API key, either in
// the Authorization header or the "token" query parameter (browsers cannot
// set arbitrary headers on a WebSocket upgrade request).
func (s *Server) authenticate(r *http.Request) (*models.User, error) {
	if s.authSvc == nil || !s.authSvc.Enabled() {
		return &models.User{ID: "anonymous"}, nil
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, errors.New("missing bearer token")
	}

	if user, err := s.authSvc.ValidateJWT(token); err == nil {
		return user, nil
	}
	if user, err := s.authSvc.ValidateAPIKey(token); err == nil {
		return user, nil
	}
	return nil, errors.New("invalid credentials")
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func (s *Server) loopFor(provider string) (*agent.AgenticLoop, string) {
	if provider == "" {
		provider = s.defaultProv
	}
	if l, ok := s.loops[provider]; ok {
		return l, provider
	}
	return s.loops[s.defaultProv], s.defaultProv
}

const writeWait = 10 * time.Second
