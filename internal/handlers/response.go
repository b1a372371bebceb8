package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with. The HTTP status
// code always equals Status.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, resp Response) {
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	c.JSON(resp.Status, resp)
}

func abortWith(c *gin.Context, resp Response) {
	respond(c, resp)
	c.Abort()
}
