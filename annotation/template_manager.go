package annotation

import (
	"html/template"
	"io"
	"io/fs"
	"sync"

	"github.com/abiosoft/mold"
)

// TemplateManager renders views inside the shared layout using mold
type TemplateManager struct {
	mu     sync.RWMutex
	engine mold.Engine
}

// NewTemplateManagerWithFuncMap parses the views of fsys with funcMap available
func NewTemplateManagerWithFuncMap(fsys fs.FS, funcMap template.FuncMap) (*TemplateManager, error) {
	engine, err := mold.New(fsys,
		mold.WithRoot("templates"),
		mold.WithLayout("layout.html"),
		mold.WithFuncMap(funcMap),
	)
	if err != nil {
		return nil, err
	}
	return &TemplateManager{engine: engine}, nil
}

// Render renders a view (mold handles the layout around it)
func (tm *TemplateManager) Render(w io.Writer, view string, data interface{}) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.engine.Render(w, view, data)
}
