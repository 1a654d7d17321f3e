// Package web はクライアントページのテンプレートを埋め込みます。
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates は埋め込んだHTMLテンプレートを返します。
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}
