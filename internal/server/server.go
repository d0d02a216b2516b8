package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"edmanweb/internal/blobstore"
	"edmanweb/internal/graph"
	"edmanweb/internal/preview"
	"edmanweb/internal/store"
)

const (
	allowRemoteEnvKey      = "EDMANWEB_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 60 * time.Second
	writeTimeout           = 120 * time.Second
	idleTimeout            = 60 * time.Second
	importConcurrencyLimit = 1

	defaultMaxUploadBytes     int64 = 100 << 20 // 100 MiB
	defaultMultipartMaxMemory int64 = 8 << 20   // 8 MiB
)

// Options tunes a Server. Zero values fall back to defaults.
type Options struct {
	MaxUploadBytes     int64
	MultipartMaxMemory int64
	Compress           bool
	GCBatchSize        int

	PreviewExtensions  []string
	PreviewSize        preview.Size
	PreviewConcurrency int
	PreviewQuality     int

	// TokenHash is a bcrypt hash; when set every request except /health
	// needs a matching bearer token.
	TokenHash string

	BlobBackend string
}

// Server wraps HTTP handlers for the edmanweb API.
type Server struct {
	addr        string
	store       *store.Store
	attachments *AttachmentService
	documents   *DocumentService
	previews    *PreviewService
	logger      *slog.Logger
	opts        Options

	tokenHash      string
	verifiedTokens sync.Map

	importLimiter  chan struct{}
	previewLimiter chan struct{}
}

// New creates a new server instance over st for documents and bucket for
// blob content.
func New(addr string, st *store.Store, bucket *blobstore.Bucket, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	attachments := NewAttachmentService(st, bucket, st, logger)
	attachments.SetGCBatchSize(opts.GCBatchSize)

	return &Server{
		addr:           addr,
		store:          st,
		attachments:    attachments,
		documents:      NewDocumentService(graph.New(st, logger), st, logger),
		previews:       NewPreviewService(attachments, preview.Renderer{Quality: opts.PreviewQuality}, opts.PreviewConcurrency, logger),
		logger:         logger,
		opts:           opts,
		tokenHash:      strings.TrimSpace(opts.TokenHash),
		importLimiter:  make(chan struct{}, importConcurrencyLimit),
		previewLimiter: make(chan struct{}, opts.PreviewConcurrency),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = defaultMaxUploadBytes
	}
	if o.MultipartMaxMemory <= 0 {
		o.MultipartMaxMemory = defaultMultipartMaxMemory
	}
	if o.GCBatchSize <= 0 {
		o.GCBatchSize = defaultBlobGCBatchSize
	}
	if o.PreviewSize.Width <= 0 || o.PreviewSize.Height <= 0 {
		o.PreviewSize = preview.DefaultSize
	}
	if o.PreviewConcurrency < 1 {
		o.PreviewConcurrency = 1
	}
	if o.PreviewQuality <= 0 || o.PreviewQuality > 100 {
		o.PreviewQuality = preview.DefaultJPEGQuality
	}
	return o
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
