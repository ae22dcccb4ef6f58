package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/response"
)

// fail maps a service error onto the response envelope.
func fail(c *gin.Context, err error) {
	var vErr *genealogy.ValidationError
	var pErr *services.PersistenceError
	var uErr *services.UploadError

	switch {
	case errors.As(err, &vErr):
		response.Error(c, response.NewBadRequest(vErr.Error()).WithData(gin.H{"field": vErr.Field}))
	case errors.As(err, &uErr):
		response.Error(c, response.NewBadRequest(uErr.Error()))
	case errors.Is(err, services.ErrReadOnly), errors.Is(err, services.ErrNotOwner):
		response.Error(c, response.NewForbidden(err.Error()))
	case errors.Is(err, services.ErrFamilyNotFound), errors.Is(err, services.ErrMemberNotFound):
		response.Error(c, response.NewNotFound(err.Error()))
	case errors.As(err, &pErr):
		response.Error(c, response.Wrap(err, "failed to "+pErr.Op))
	default:
		response.Error(c, err)
	}
}
