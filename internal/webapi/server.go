// Package webapi exposes workspaces over HTTP with gin.
package webapi

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chithravani/internal/preview"
	"chithravani/internal/workspace"
)

const defaultMaxUploadBytes = 25 << 20

type Options struct {
	Workspaces     *workspace.Store
	Previews       *preview.Registry
	Generator      workspace.Generator
	Logger         *slog.Logger
	MaxUploadBytes int64
}

type Server struct {
	workspaces     *workspace.Store
	previews       *preview.Registry
	generator      workspace.Generator
	logger         *slog.Logger
	maxUploadBytes int64
}

type apiError struct {
	Error          string `json:"error"`
	CharacterModal bool   `json:"character_modal,omitempty"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	return &Server{
		workspaces:     opts.Workspaces,
		previews:       opts.Previews,
		generator:      opts.Generator,
		logger:         logger,
		maxUploadBytes: maxUpload,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/previews/:id", s.getPreview)

	api := r.Group("/api")
	{
		api.GET("/genres", s.listGenres)

		ws := api.Group("/workspaces")
		{
			ws.POST("", s.createWorkspace)
			ws.GET("/:id", s.getWorkspace)
			ws.DELETE("/:id", s.deleteWorkspace)

			ws.POST("/:id/images", s.addImages)
			ws.DELETE("/:id/images/:imageID", s.removeImage)
			ws.POST("/:id/images/reorder", s.reorderImages)
			ws.POST("/:id/images/move", s.moveImage)

			ws.PUT("/:id/genre", s.setGenre)
			ws.PUT("/:id/characters", s.setCharacters)

			ws.POST("/:id/continue", s.continueStep)
			ws.POST("/:id/edit-settings", s.editSettings)

			ws.POST("/:id/character-modal/open", s.openCharacterModal)
			ws.POST("/:id/character-modal/cancel", s.cancelCharacterModal)
			ws.POST("/:id/character-modal/submit", s.submitCharacterModal)

			ws.POST("/:id/generate", s.generate)
			ws.GET("/:id/story", s.getStory)
			ws.GET("/:id/story/export", s.exportStory)
		}
	}

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) getPreview(c *gin.Context) {
	item, ok := s.previews.Open(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, apiError{Error: "preview not found"})
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, item.MimeType, item.Data)
}
