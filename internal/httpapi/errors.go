package httpapi

import (
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal Server Error"

// badRequest responds 400 with message
func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

// internalError logs err and responds 500. The error text is only exposed
// outside production.
func (h *Handlers) internalError(c *gin.Context, message string, err error) {
	h.logger.Error(message,
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)

	body := gin.H{"error": internalErrorMessage}
	if !h.cfg.Server.IsProduction() {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
}

// renderError renders an HTML error page for the browser-facing login routes
func (h *Handlers) renderError(c *gin.Context, status int, title, message string) {
	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%[1]s</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: #2c2f33;
        }
        .container {
            background: white;
            padding: 3rem;
            border-radius: 10px;
            text-align: center;
            max-width: 400px;
        }
        h1 { color: #333; margin: 0 0 1rem; }
        p { color: #666; margin: 0; line-height: 1.6; }
        a { color: #5865f2; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%[1]s</h1>
        <p>%[2]s</p>
        <p style="margin-top: 1rem;"><a href="%[3]s">Back to the dashboard</a></p>
    </div>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(message), html.EscapeString(h.cfg.Server.FrontendURL))

	c.Data(status, "text/html; charset=utf-8", []byte(page))
	c.Abort()
}
