package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is the failure envelope shared by every endpoint.
type Error struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BadRequest sends 400 with a message.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Error{Message: msg})
}

// NotFound sends 404 with a message.
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Error{Message: msg})
}

// Internal sends 500 with a message.
func Internal(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Error{Message: msg})
}
