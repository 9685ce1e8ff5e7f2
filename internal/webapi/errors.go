package webapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chithravani/internal/workspace"
)

var workspaceErrors = []struct {
	err     error
	status  int
	message string
}{
	{workspace.ErrNotFound, http.StatusNotFound, "workspace not found"},
	{workspace.ErrClosed, http.StatusNotFound, "workspace not found"},
	{workspace.ErrImageNotFound, http.StatusNotFound, "image not found"},
	{workspace.ErrBusy, http.StatusConflict, "story generation in progress"},
	{workspace.ErrInvalidTransition, http.StatusConflict, "step not available"},
	{workspace.ErrNoImages, http.StatusUnprocessableEntity, "Please upload at least one image"},
	{workspace.ErrCharactersRequired, http.StatusUnprocessableEntity, "Please describe your characters"},
	{workspace.ErrUnknownGenre, http.StatusBadRequest, "unknown genre"},
	{workspace.ErrInvalidIndex, http.StatusBadRequest, "image index out of range"},
}

func isWorkspaceError(err error) bool {
	for _, we := range workspaceErrors {
		if errors.Is(err, we.err) {
			return true
		}
	}
	return false
}

func (s *Server) fail(c *gin.Context, err error) {
	for _, we := range workspaceErrors {
		if !errors.Is(err, we.err) {
			continue
		}
		c.JSON(we.status, apiError{
			Error:          we.message,
			CharacterModal: errors.Is(err, workspace.ErrCharactersRequired),
		})
		return
	}

	s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, apiError{Error: "internal error"})
}
