// Package views embeds the HTML templates so every binary and test renders the same pages.
package views

import (
	"embed"
	"html/template"
	"time"

	"github.com/gin-gonic/gin"

	"garden/auth"
)

//go:embed templates/*.html
var files embed.FS

const SiteName = "Garden"

func FuncMap() template.FuncMap {
	return template.FuncMap{
		"now": func() time.Time {
			return time.Now()
		},
		"date": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"isoDate": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}
}

// Parse builds the template set from the embedded files.
func Parse() (*template.Template, error) {
	return template.New("").Funcs(FuncMap()).ParseFS(files, "templates/*.html")
}

func Must() *template.Template {
	return template.Must(Parse())
}

// Page adds what the shared header needs to a handler's template data.
func Page(c *gin.Context, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	data["session"] = auth.SessionFrom(c)
	data["siteName"] = SiteName
	return data
}
