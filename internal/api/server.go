// Package api serves the catalog over HTTP.
//
// Endpoints:
//   - GET    /healthz                           - liveness check and build version
//   - GET    /packages                          - stored packages
//   - POST   /packages                          - crawl {"name", "version", "max_depth", "max_packages"}
//   - GET    /packages/{ref}                    - one package, crawled on demand
//   - DELETE /packages/{key}                    - remove a package
//   - GET    /packages/{ref}/items?kind=&q=     - declarations of the package and its re-exports
//   - GET    /packages/{ref}/files              - file list
//   - GET    /packages/{ref}/files/*?start=&end= - file excerpt
//   - GET    /packages/{ref}/readme             - README
//   - GET    /packages/{ref}/search?q=&limit=   - regex search over sources
//   - GET    /packages/{ref}/graph?format=      - re-export graph as json, dot or svg
//   - GET    /items/{id}                        - declaration with source excerpt
//   - GET    /latest/{name}                     - latest registry version and crate metadata
//
// Errors are JSON objects {"code", "message"}; the status follows the
// error code.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/crateindex/pkg/buildinfo"
	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/pipeline"
	"github.com/matzehuels/crateindex/pkg/render/nodelink"
	"github.com/matzehuels/crateindex/pkg/store"
)

const (
	// DefaultAddr is the listen address of the serve command.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize bounds POST bodies.
	MaxRequestBodySize = 64 * 1024

	// DefaultFileLimit caps file listings.
	DefaultFileLimit = 1000

	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP front end of a [pipeline.Runner].
type Server struct {
	runner *pipeline.Runner
	logger *log.Logger
	router chi.Router
}

// New creates a server. A nil logger means log.Default().
func New(runner *pipeline.Runner, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{runner: runner, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/latest/{name}", s.latest)
	r.Get("/items/{id}", s.item)
	r.Route("/packages", func(r chi.Router) {
		r.Get("/", s.listPackages)
		r.Post("/", s.fetchPackage)
		r.Route("/{ref}", func(r chi.Router) {
			r.Get("/", s.getPackage)
			r.Delete("/", s.deletePackage)
			r.Get("/items", s.items)
			r.Get("/files", s.files)
			r.Get("/files/*", s.file)
			r.Get("/readme", s.readme)
			r.Get("/search", s.search)
			r.Get("/graph", s.graph)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.Read().Version})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rel, err := s.runner.Latest(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) item(w http.ResponseWriter, r *http.Request) {
	shown, err := s.runner.Show(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shown)
}

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.runner.Packages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pkgs == nil {
		pkgs = []*store.Package{}
	}
	writeJSON(w, http.StatusOK, pkgs)
}

// FetchRequest is the body of POST /packages. Omitted limits use the
// server defaults; zero or negative limits mean unlimited.
type FetchRequest struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	MaxDepth    *int   `json:"max_depth,omitempty"`
	MaxPackages *int   `json:"max_packages,omitempty"`
}

func (req FetchRequest) limits(defaults catalog.Limits) catalog.Limits {
	l := defaults
	if req.MaxDepth != nil {
		l.MaxDepth = max(*req.MaxDepth, 0)
	}
	if req.MaxPackages != nil {
		l.MaxPackages = max(*req.MaxPackages, 0)
	}
	return l
}

func (s *Server) fetchPackage(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
		return
	}
	sum, err := s.runner.FetchWithLimits(r.Context(), req.Name, req.Version, req.limits(s.runner.Options.Limits))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.runner.Package(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) deletePackage(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Remove(r.Context(), chi.URLParam(r, "ref")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) items(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kindName := q.Get("kind")
	if kindName == "" {
		kindName = "functions"
	}
	kind, err := pipeline.ParseKind(kindName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	listing, err := s.runner.List(r.Context(), chi.URLParam(r, "ref"), kind, q.Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) files(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", DefaultFileLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.runner.Files(r.Context(), chi.URLParam(r, "ref"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	start, err := intParam(r, "start", 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	end, err := intParam(r, "end", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ex, err := s.runner.Read(r.Context(), chi.URLParam(r, "ref"), chi.URLParam(r, "*"), start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) readme(w http.ResponseWriter, r *http.Request) {
	rd, err := s.runner.Readme(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("q")
	if pattern == "" {
		s.fail(w, r, errors.New(errors.ErrCodeInvalidInput, "query parameter q is required"))
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.runner.Search(r.Context(), chi.URLParam(r, "ref"), pattern, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "dot", "svg":
	default:
		s.fail(w, r, errors.New(errors.ErrCodeInvalidInput, "unknown format %q", format))
		return
	}
	g, err := s.runner.Graph(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, g)
		return
	}
	dot := nodelink.ToDOT(g.Graph, nodelink.Options{Counts: g.Counts})
	if format == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, _ = w.Write([]byte(dot))
		return
	}
	svg, err := nodelink.RenderSVG(r.Context(), dot)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

// =============================================================================
// Responses
// =============================================================================

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch code := errors.GetCode(err); {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case code == errors.ErrCodeAmbiguousReference,
		code == errors.ErrCodeInvalidInput,
		code == errors.ErrCodeInvalidPackage,
		code == errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case code == errors.ErrCodeNetwork, code == errors.ErrCodeArchiveFormat:
		return http.StatusBadGateway
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: errors.UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "query parameter %s must be an integer", name)
	}
	return n, nil
}
