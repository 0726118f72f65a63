package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/generator"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errs.New(errs.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Code:    "METHOD_NOT_ALLOWED",
			Message: fmt.Sprintf("method %s not allowed", req.Method),
		}})
	})

	r.Get("/health", s.handleHealth)
	r.Get("/context", s.handleContext)
	r.Get("/config", s.handleConfig)
	r.Post("/verify", s.handleVerify)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleContext(w http.ResponseWriter, _ *http.Request) {
	ctx, ok := s.deps.Contexts.GetContext(s.binding.Port)
	if !ok {
		writeError(w, errs.Newf(errs.CodeNotFound, "no context bound to port %d", s.binding.Port))
		return
	}
	writeJSON(w, http.StatusOK, ctx)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	format := generator.ParseFormat(r.URL.Query().Get("format"))
	if s.deps.Renderer == nil {
		writeError(w, errs.New(errs.CodeInternal, "no config renderer"))
		return
	}

	doc, err := s.deps.Renderer.Render(format, s.deps.Config())
	if err != nil {
		s.log.Error("render config", zap.String("format", format.String()), zap.Error(err))
		writeError(w, errs.Wrap(errs.CodeInternal, err, "render config"))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

// recoverer turns handler panics into a structured 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.String("request_id", chimw.GetReqID(r.Context())))
				writeError(w, errs.New(errs.CodeInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())))
	})
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status code and the {"error":{...}} payload.
func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	msg := err.Error()
	if e, ok := errs.From(err); ok {
		msg = e.Message()
	}
	writeJSON(w, errs.HTTPStatus(code), errorBody{Error: errorDetail{Code: string(code), Message: msg}})
}
