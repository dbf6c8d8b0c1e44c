package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/response"
	"github.com/serviqo/serviqo/pkg/validator"
)

// bindAndValidate decodes the JSON body into req and runs struct validation.
// On failure it writes the error response and returns false.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errors.NewBadRequest("invalid request payload"))
		return false
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, errors.NewBadRequest(err.Error()))
		return false
	}
	return true
}
