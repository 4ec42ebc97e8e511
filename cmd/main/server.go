package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Iconoclast/pkg/rendercache"
	"github.com/CTAG07/Iconoclast/pkg/svgicon"
)

// Server serves the icon assets over HTTP: single SVG and PNG files (with an
// optional size segment), the combined sprite in both formats, the generated
// stylesheet, and a small maintenance API.
type Server struct {
	config  *Config
	logger  *slog.Logger
	manager *svgicon.Manager
	cache   *rendercache.Cache
	mux     *http.ServeMux
}

func NewServer(config *Config, logger *slog.Logger, manager *svgicon.Manager, cache *rendercache.Cache) *Server {
	s := &Server{
		config:  config,
		logger:  logger,
		manager: manager,
		cache:   cache,
		mux:     http.NewServeMux(),
	}

	prefix := strings.TrimSuffix(config.Icons.URLPrefix, "/")
	s.mux.HandleFunc("GET "+prefix+"/combined.svg", s.handleSpriteSVG)
	s.mux.HandleFunc("GET "+prefix+"/combined.png", s.handleSpritePNG)
	s.mux.HandleFunc("GET "+prefix+"/", s.handleAsset(prefix))
	s.mux.HandleFunc("GET /icons.css", s.handleStylesheet)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/prune", s.handlePrune)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	return s
}

// handleAsset serves /svg/{path}.svg, /svg/{path}.png and
// /svg/{size}/{path}.png. The size segment, when present, is the first path
// element and must parse as a size spec.
func (s *Server) handleAsset(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
		if rest == "" {
			http.NotFound(w, r)
			return
		}

		size := ""
		if first, remainder, found := strings.Cut(rest, "/"); found {
			if _, err := svgicon.ParseSizeSpec(first); err == nil && first != "" {
				size, rest = first, remainder
			}
		}

		switch {
		case strings.HasSuffix(rest, ".svg") && size == "":
			data, err := s.manager.RenderSVG(rest)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
			_, _ = w.Write(data)
		case strings.HasSuffix(rest, ".png"):
			path := strings.TrimSuffix(rest, ".png") + ".svg"
			data, err := s.manager.RenderPNG(r.Context(), path, size)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(data)
		default:
			http.NotFound(w, r)
		}
	}
}

func (s *Server) handleSpriteSVG(w http.ResponseWriter, r *http.Request) {
	data, err := s.manager.RenderSVGSprite(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleSpritePNG(w http.ResponseWriter, r *http.Request) {
	data, err := s.manager.RenderPNGSprite(r.Context(), r.URL.Query().Get("size"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	data, err := s.manager.Stylesheet(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Refresh(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.Prune(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, svgicon.ErrAssetNotFound):
		http.NotFound(w, r)
	case errors.Is(err, svgicon.ErrInvalidSizeSpec):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
