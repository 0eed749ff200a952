package response

import "github.com/gin-gonic/gin"

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError writes an error envelope carrying a machine-readable class.
func RespondError(c *gin.Context, code int, errCode, message string, details interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     "error",
		StatusCode: code,
		Code:       errCode,
		Message:    message,
		Errors:     details,
	})
}
