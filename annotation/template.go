package annotation

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/russross/blackfriday/v2"
)

var (
	//go:embed templates/*
	templateFS embed.FS

	//go:embed assets/style.css
	cssContent string

	//go:embed assets/favicon.svg
	faviconContent string

	// Template manager with mold for layout support
	templateManager *TemplateManager = nil

	// TemplateFuncMap contains custom template functions available globally
	TemplateFuncMap = template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"markdown": func(text string) template.HTML {
			// Convert markdown to HTML using blackfriday v2
			return template.HTML(blackfriday.Run([]byte(text)))
		},
	}
)

func init() {
	var err error
	templateManager, err = NewTemplateManagerWithFuncMap(templateFS, TemplateFuncMap)
	if err != nil {
		panic(err)
	}
}

// RenderPage renders a view of templates/ inside the layout
func RenderPage(ctx context.Context, w io.Writer, view string, data map[string]any) error {
	if data == nil {
		data = make(map[string]any)
	}
	data["CSS"] = template.CSS(cssContent)
	return templateManager.Render(w, view+".html", data)
}

// GetFavicon returns the embedded favicon content
func GetFavicon() string {
	return faviconContent
}
