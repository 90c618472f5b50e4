package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ralt/qpkgrepo/internal/generator/qpkg"
	"github.com/ralt/qpkgrepo/internal/repository"
	"github.com/ralt/qpkgrepo/internal/signer"
	"github.com/ralt/qpkgrepo/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	contentTypeXML = "application/xml; charset=utf-8"
	contentTypeKey = "application/pgp-keys"
)

// Server serves the repository feed over HTTP
type Server struct {
	repo            *repository.Repository
	signer          signer.Signer
	onVersionFailed qpkg.VersionFailedFunc
	router          *gin.Engine
}

// Option customizes a Server
type Option func(*Server)

// WithVersionFailed sets the hook consulted for unparsable package versions
func WithVersionFailed(fn qpkg.VersionFailedFunc) Option {
	return func(s *Server) {
		s.onVersionFailed = fn
	}
}

// New creates a server for repo. sign may be nil, in which case no public
// key is published.
func New(repo *repository.Repository, sign signer.Signer, opts ...Option) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		repo:   repo,
		signer: sign,
		router: router,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/repo.xml", s.manifest)
	s.router.POST("/reload", s.reload)
	if s.signer != nil {
		s.router.GET("/pubkey.asc", s.publicKey)
	}
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Serving repository on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logrus.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// manifest renders repo.xml for the model, platform and 64bit parameters
func (s *Server) manifest(c *gin.Context) {
	req := qpkg.ParseRequest(c.Request.URL.Query(), s.repo.Config().DefaultPlatforms)

	body, err := s.repo.Manifest(c.Request.Context(), req, s.onVersionFailed).Marshal()
	if err != nil {
		logrus.Errorf("Failed to render manifest: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render manifest"})
		return
	}

	c.Header("Vary", "Accept-Encoding")
	if utils.AcceptsGzip(c.GetHeader("Accept-Encoding")) {
		compressed, err := utils.GzipCompress(body)
		if err == nil {
			c.Header("Content-Encoding", "gzip")
			s.respond(c, gzipETag(utils.ETag(body)), compressed)
			return
		}
		logrus.Warnf("Failed to compress manifest: %v", err)
	}

	s.respond(c, utils.ETag(body), body)
}

// respond sends data tagged with etag, or 304 when the client has it
func (s *Server) respond(c *gin.Context, etag string, data []byte) {
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, data)
}

// gzipETag derives the tag of the gzip representation from the identity one
func gzipETag(etag string) string {
	return strings.TrimSuffix(etag, `"`) + `-gzip"`
}

func (s *Server) reload(c *gin.Context) {
	s.repo.Reload()
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Server) publicKey(c *gin.Context) {
	key, err := s.signer.PublicKey()
	if err != nil {
		logrus.Errorf("Failed to export public key: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export public key"})
		return
	}
	c.Data(http.StatusOK, contentTypeKey, key)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(), time.Since(start))
	}
}
