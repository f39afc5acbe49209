package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is the JSON error envelope returned by the API.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Error{Code: status, Message: message})
}

func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, message)
}

func ServerError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, message)
}
