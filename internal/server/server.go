// Package server wraps golang.org/x/net/webdav.Handler in a gin.Engine,
// the way the teacher's internal/api.Server wraps its REST handlers: Gin
// supplies the listener, middleware chain and health endpoint, the DAV
// verbs are dispatched straight through to the stdlib handler since gin's
// router has no native notion of PROPFIND/MKCOL/COPY/MOVE.
package server

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/webdav"

	"github.com/Sesame-Disk/seafdav/internal/authdc"
	"github.com/Sesame-Disk/seafdav/internal/config"
	"github.com/Sesame-Disk/seafdav/internal/davfs"
)

// davMethods are the WebDAV verbs routed to the handler, in addition to the
// standard HTTP methods setupRoutes lists explicitly. LOCK/UNLOCK are
// deliberately absent: locking is a declared Non-goal, so a client that
// depends on it gets a 404 rather than a handler that silently no-ops.
var davMethods = []string{"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE"}

// Server hosts the WebDAV handler behind Gin.
type Server struct {
	cfg     *config.Config
	dc      authdc.DomainController
	handler *webdav.Handler
	router  *gin.Engine
	http    *http.Server
}

// New wires a Server. fsys is the FileSystem every request is served from;
// dc authenticates the Basic Auth credentials every request (other than
// /healthz) must carry.
func New(cfg *config.Config, dc authdc.DomainController, fsys *davfs.FileSystem) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	corsConfig := cors.Config{
		AllowMethods:     append([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}, davMethods...),
		AllowHeaders:     []string{"Origin", "Content-Type", "Depth", "Destination", "Overwrite", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "ETag", "Last-Modified"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	handler := &webdav.Handler{
		FileSystem: fsys,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Printf("webdav %s %s: %v", r.Method, r.URL.Path, err)
			}
		},
	}

	s := &Server{cfg: cfg, dc: dc, handler: handler, router: router}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealthz)

	davHandler := gin.WrapH(s.authMiddleware(s.handler))
	for _, method := range append([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}, davMethods...) {
		s.router.Handle(method, "/*path", davHandler)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authMiddleware validates HTTP Basic Auth via the domain controller and
// attaches the resulting repo.Principal to the request context before
// handing off to the DAV handler, mirroring authDomainUser's role in the
// original WsgiDAV pipeline.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := parseBasicAuth(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Seafile Authentication"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		principal, err := s.dc.Authenticate(r.Context(), email, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="Seafile Authentication"`)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		ctx := davfs.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseBasicAuth duplicates net/http's Request.BasicAuth so the 401 path
// above can set WWW-Authenticate before delegating, without relying on
// r.BasicAuth()'s own (non-error-reporting) failure mode.
func parseBasicAuth(r *http.Request) (email, password string, ok bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	email, password, ok = strings.Cut(string(decoded), ":")
	return email, password, ok
}

// Run starts the HTTP(S) listener. TLS is used when both cfg.Server.TLSCert
// and TLSKey are set; otherwise it serves plain HTTP, matching the
// teacher's Run()'s single-listener shape.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	if s.cfg.Server.TLSCert != "" && s.cfg.Server.TLSKey != "" {
		return s.http.ListenAndServeTLS(s.cfg.Server.TLSCert, s.cfg.Server.TLSKey)
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

