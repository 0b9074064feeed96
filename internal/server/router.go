package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/hcdesk/internal/desktop"
	"github.com/loykin/hcdesk/internal/sidecar"
)

// Supervisor is the backend supervisor as exposed over HTTP.
type Supervisor interface {
	desktop.Backend
	Snapshot() sidecar.Snapshot
	Stop(wait time.Duration) error
}

// Router provides embeddable HTTP handlers for the desktop commands.
// Endpoints:
//
//	POST {basePath}/start
//	GET  {basePath}/url
//	GET  {basePath}/status
//	GET  {basePath}/state
//	POST {basePath}/stop            query: wait=2s (optional)
//	POST {basePath}/save            body: {"filename": "...", "content": "<base64>"}
//	POST {basePath}/open-downloads
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      Supervisor
	cmds     *desktop.Commands
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/url, ...
func NewRouter(sup Supervisor, cmds *desktop.Commands, basePath string) *Router {
	return &Router{sup: sup, cmds: cmds, basePath: sanitizeBase(basePath), log: slog.Default()}
}

func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.log = l
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.GET("/url", r.handleURL)
	group.GET("/status", r.handleStatus)
	group.GET("/state", r.handleState)
	group.POST("/stop", r.handleStop)
	group.POST("/save", r.handleSave)
	group.POST("/open-downloads", r.handleOpenDownloads)
	return g
}

// NewServer listens on addr and serves h in the background. The returned
// server's Addr holds the bound address, so ":0" can be used.
func NewServer(addr string, h http.Handler) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start may block for the whole handshake
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type messageResp struct {
	Message string `json:"message"`
}

type urlResp struct {
	URL string `json:"url"`
}

type statusResp struct {
	Status string `json:"status"`
}

type saveReq struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

type saveResp struct {
	Path string `json:"path"`
}

func (r *Router) handleStart(c *gin.Context) {
	// the child outlives the request
	msg, err := r.cmds.StartBackend(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, messageResp{Message: msg})
}

func (r *Router) handleURL(c *gin.Context) {
	u, err := r.cmds.GetBackendURL()
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, urlResp{URL: u})
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.cmds.GetBackendStatus()
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, statusResp{Status: st})
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Snapshot())
}

func (r *Router) handleStop(c *gin.Context) {
	wait := sidecar.DefaultStopWait
	if ws := c.Query("wait"); ws != "" {
		d, err := time.ParseDuration(ws)
		if err != nil || d < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid wait duration"})
			return
		}
		wait = d
	}
	if err := r.sup.Stop(wait); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleSave(c *gin.Context) {
	var req saveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(req.Filename) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid filename: no path separators"})
		return
	}
	p, err := r.cmds.SaveFileWithDialog(c.Request.Context(), req.Filename, req.Content)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saveResp{Path: p})
}

func (r *Router) handleOpenDownloads(c *gin.Context) {
	if err := r.cmds.OpenDownloadsFolder(); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		r.log.Error("request failed", "path", c.FullPath(), "err", err)
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sidecar.ErrNotStarted),
		errors.Is(err, sidecar.ErrAlreadyStarted),
		errors.Is(err, sidecar.ErrStartInProgress):
		return http.StatusConflict
	case errors.Is(err, desktop.ErrSaveCancelled),
		errors.Is(err, desktop.ErrUnsupportedPath):
		return http.StatusBadRequest
	case errors.Is(err, sidecar.ErrResourceResolution),
		errors.Is(err, sidecar.ErrSpawn),
		errors.Is(err, sidecar.ErrPortNotFound),
		errors.Is(err, sidecar.ErrHandshakeTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
