// Package httpserver serves a router.Router over HTTP.
package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nixpig/jobdash/internal/router"
)

const (
	// maxBodySize caps request bodies. Job parameters are short form values.
	maxBodySize = 1 << 20

	// MethodParam overrides the method of a POST request, for HTML forms that
	// can only submit GET and POST.
	MethodParam          = "_method"
	MethodOverrideHeader = "X-HTTP-Method-Override"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server adapts HTTP requests to Router requests.
type Server struct {
	router *router.Router
	logger *slog.Logger
	tls    *tls.Config
}

// New creates a Server for r. tlsConfig may be nil to serve plain HTTP.
func New(r *router.Router, logger *slog.Logger, tlsConfig *tls.Config) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{router: r, logger: logger, tls: tlsConfig}
}

// Handler returns the chi mux serving the dashboard.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Use(requestID)
	mux.Use(middleware.RealIP)
	mux.Use(s.logRequests)
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})

	mux.HandleFunc("/", s.dispatch)
	mux.HandleFunc("/*", s.dispatch)
	mux.MethodNotAllowed(s.dispatch)

	return mux
}

// Serve serves HTTP on listener until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.tls != nil {
		listener = tls.NewListener(listener, s.tls)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.Info("http server listening", "addr", listener.Addr().String(), "tls", s.tls != nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	params, err := Params(r)
	if err != nil {
		s.logger.Warn("read params", "url", r.URL.Path, "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)

		return
	}

	method := Method(r, params)
	delete(params, MethodParam)

	resp := s.router.Handle(r.Context(), method, r.URL.Path, params)

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.Status)

	if _, err := io.WriteString(w, resp.Body); err != nil {
		s.logger.Debug("write response", "url", r.URL.Path, "err", err)
	}
}

// Method returns the effective method of r, honouring the override param or
// header on POST requests.
func Method(r *http.Request, params map[string]string) string {
	if r.Method != http.MethodPost {
		return r.Method
	}

	if m := params[MethodParam]; m != "" {
		return strings.ToUpper(m)
	}

	if m := r.Header.Get(MethodOverrideHeader); m != "" {
		return strings.ToUpper(m)
	}

	return r.Method
}

// Params flattens the query string and body of r into a single map. Body
// values override query values. The Accept header is added under
// router.AcceptParam unless a parameter of that name was sent.
func Params(r *http.Request) (map[string]string, error) {
	params := make(map[string]string)

	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}

	if r.Body != nil && r.Body != http.NoBody {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)

		if err := bodyParams(r, params); err != nil {
			return nil, err
		}
	}

	if _, ok := params[router.AcceptParam]; !ok {
		if accept := r.Header.Get("Accept"); accept != "" {
			params[router.AcceptParam] = accept
		}
	}

	return params, nil
}

func bodyParams(r *http.Request, params map[string]string) error {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("parse content type: %w", err)
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}

		copyFirst(params, r.PostForm)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodySize); err != nil {
			return fmt.Errorf("parse multipart form: %w", err)
		}

		copyFirst(params, r.MultipartForm.Value)

	case "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		values, err := jsonParams(body)
		if err != nil {
			return err
		}

		for name, v := range values {
			params[name] = v
		}
	}

	return nil
}

func copyFirst(dst map[string]string, src map[string][]string) {
	for name, values := range src {
		if len(values) > 0 {
			dst[name] = values[0]
		}
	}
}
