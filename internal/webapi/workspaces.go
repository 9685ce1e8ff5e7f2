package webapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chithravani/internal/storyapi"
	"chithravani/internal/storyview"
	"chithravani/internal/workspace"
)

var errUnsupportedType = errors.New("only JPEG, PNG, GIF and WebP images are supported")

type genresResponse struct {
	Genres  []workspace.GenreOption `json:"genres"`
	Default workspace.Genre         `json:"default"`
}

type continueResponse struct {
	Workspace  workspace.Snapshot `json:"workspace"`
	Transition string             `json:"transition"`
}

type generateResponse struct {
	Workspace workspace.Snapshot `json:"workspace"`
	View      storyview.View     `json:"view"`
}

type reorderRequest struct {
	ActiveID string `json:"active_id" binding:"required"`
	OverID   string `json:"over_id" binding:"required"`
}

type moveRequest struct {
	From *int `json:"from" binding:"required"`
	To   *int `json:"to" binding:"required"`
}

type genreRequest struct {
	Genre string `json:"genre" binding:"required"`
}

type charactersRequest struct {
	Characters string `json:"characters"`
}

func (s *Server) listGenres(c *gin.Context) {
	c.JSON(http.StatusOK, genresResponse{Genres: workspace.Genres(), Default: workspace.DefaultGenre})
}

func (s *Server) createWorkspace(c *gin.Context) {
	snap := s.workspaces.Open(uuid.NewString())
	s.logger.Info("workspace created", "workspace_id", snap.ID)
	c.JSON(http.StatusCreated, snap)
}

func (s *Server) getWorkspace(c *gin.Context) {
	snap, ok := s.workspaces.Get(c.Param("id"))
	if !ok {
		s.fail(c, workspace.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) deleteWorkspace(c *gin.Context) {
	if !s.workspaces.Close(c.Param("id")) {
		s.fail(c, workspace.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addImages(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.workspaces.Get(id); !ok {
		s.fail(c, workspace.ErrNotFound)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, apiError{Error: fmt.Sprintf("upload exceeds %d MB", s.maxUploadBytes>>20)})
			return
		}
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, apiError{Error: "no files"})
		return
	}

	sources := make([]workspace.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := readUpload(fh)
		if err != nil {
			if errors.Is(err, errUnsupportedType) {
				c.JSON(http.StatusBadRequest, apiError{Error: errUnsupportedType.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, apiError{Error: "failed to read " + fh.Filename})
			return
		}
		sources = append(sources, src)
	}

	snap, err := s.workspaces.Update(id, func(ws *workspace.Workspace) error {
		_, err := ws.AddImages(sources...)
		return err
	})
	s.respond(c, snap, err)
}

func readUpload(fh *multipart.FileHeader) (workspace.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return workspace.Source{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return workspace.Source{}, err
	}

	mimeType := fh.Header.Get("Content-Type")
	if !workspace.AcceptedImageType(mimeType) {
		mimeType = http.DetectContentType(data)
	}
	if !workspace.AcceptedImageType(mimeType) {
		return workspace.Source{}, fmt.Errorf("%w: %s", errUnsupportedType, fh.Filename)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return workspace.Source{Name: fh.Filename, MimeType: strings.ToLower(mimeType), Data: data}, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) removeImage(c *gin.Context) {
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		return ws.RemoveImage(c.Param("imageID"))
	})
	s.respond(c, snap, err)
}

func (s *Server) reorderImages(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "active_id and over_id are required"})
		return
	}
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		_, err := ws.ReorderImages(req.ActiveID, req.OverID)
		return err
	})
	s.respond(c, snap, err)
}

func (s *Server) moveImage(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "from and to are required"})
		return
	}
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		return ws.MoveImage(*req.From, *req.To)
	})
	s.respond(c, snap, err)
}

func (s *Server) setGenre(c *gin.Context) {
	var req genreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "genre is required"})
		return
	}
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		return ws.SetGenre(workspace.Genre(req.Genre))
	})
	s.respond(c, snap, err)
}

func (s *Server) setCharacters(c *gin.Context) {
	var req charactersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid body"})
		return
	}
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		ws.SetCharacters(req.Characters)
		return nil
	})
	s.respond(c, snap, err)
}

func (s *Server) continueStep(c *gin.Context) {
	var tr workspace.Transition
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		var err error
		tr, err = ws.Continue()
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, continueResponse{Workspace: snap, Transition: tr.String()})
}

func (s *Server) editSettings(c *gin.Context) {
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		return ws.EditSettings()
	})
	s.respond(c, snap, err)
}

func (s *Server) openCharacterModal(c *gin.Context) {
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		ws.OpenCharacterModal()
		return nil
	})
	s.respond(c, snap, err)
}

func (s *Server) cancelCharacterModal(c *gin.Context) {
	snap, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		ws.CancelCharacterModal()
		return nil
	})
	s.respond(c, snap, err)
}

// submitCharacterModal closes the prompt and starts generation right away.
func (s *Server) submitCharacterModal(c *gin.Context) {
	_, err := s.workspaces.Update(c.Param("id"), func(ws *workspace.Workspace) error {
		return ws.SubmitCharacterModal()
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.generate(c)
}

func (s *Server) generate(c *gin.Context) {
	id := c.Param("id")
	// A sent request runs to completion even if the caller goes away; the
	// story stays on the workspace for a later GET.
	ctx := context.WithoutCancel(c.Request.Context())
	snap, err := s.workspaces.Generate(ctx, id, s.generator, nil)
	if err != nil {
		var apiErr *storyapi.Error
		if errors.As(err, &apiErr) || !isWorkspaceError(err) {
			s.logger.Error("story generation failed", "workspace_id", id, "err", err)
			c.JSON(http.StatusBadGateway, apiError{Error: storyapi.UserMessage(err)})
			return
		}
		s.fail(c, err)
		return
	}

	s.logger.Info("story generated", "workspace_id", id, "images", len(snap.Images), "genre", string(snap.Genre))
	c.JSON(http.StatusOK, generateResponse{
		Workspace: snap,
		View:      storyview.Present(snap.Story, snap.Loading, len(snap.Images)),
	})
}

func (s *Server) getStory(c *gin.Context) {
	snap, ok := s.workspaces.Get(c.Param("id"))
	if !ok {
		s.fail(c, workspace.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, storyview.Present(snap.Story, snap.Loading, len(snap.Images)))
}

func (s *Server) exportStory(c *gin.Context) {
	snap, ok := s.workspaces.Get(c.Param("id"))
	if !ok {
		s.fail(c, workspace.ErrNotFound)
		return
	}
	md, ok := storyview.Present(snap.Story, snap.Loading, len(snap.Images)).Markdown()
	if !ok {
		c.JSON(http.StatusNotFound, apiError{Error: "There is no story to export yet"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, storyview.ExportName))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (s *Server) respond(c *gin.Context, snap workspace.Snapshot, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
