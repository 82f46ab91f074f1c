package http

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
)

//go:embed templates/dashboard.html
var templatesFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templatesFS, "templates/dashboard.html"))

// Dashboard serves the operator page. It embeds the api key so its buttons can
// post commands, which exposes the key to anyone who can load the page.
func (rs *RestfulServer) Dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"APIKey":       rs.APIKey,
		"Device":       models.DefaultDevice,
		"HistoryLimit": 50,
		"RefreshMs":    2000,
	})
}
