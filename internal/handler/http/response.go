package http

import "github.com/gin-gonic/gin"

// ErrorResponse writes a uniform error body so clients can always read
// `error` regardless of endpoint.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// SuccessResponse writes the payload as the response body.
func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}
