package gen

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"golang.org/x/tools/imports"
)

//go:embed template/*.tmpl
var templateFS embed.FS

// mainData is the data of the main template.
type mainData struct {
	RuntimePkg string
	Header     []string
}

// TemplateWriter renders the files that are plain templates rather than
// Jennifer code: the program entry point.
type TemplateWriter struct {
	tmpl *template.Template
}

// NewTemplateWriter parses the embedded templates.
func NewTemplateWriter() (*TemplateWriter, error) {
	tmpl, err := template.New("synchro").ParseFS(templateFS, "template/*.tmpl")
	if err != nil {
		return nil, NewGenerationError(KindIO, "", "parse templates", err)
	}
	return &TemplateWriter{tmpl: tmpl}, nil
}

// Render executes the named template and formats the result as the Go file
// at path. Unformattable output is kept in the temporary directory for
// debugging.
func (w *TemplateWriter) Render(path, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute template %q for %s: %w", name, filepath.Base(path), err)
	}
	formatted, err := imports.Process(path, buf.Bytes(), nil)
	if err != nil {
		// Errors intentionally ignored as we're already in error state.
		debugPath := filepath.Join(os.TempDir(), filepath.Base(path)+".error")
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return nil, fmt.Errorf("format %s: %w (unformatted written to %s)", filepath.Base(path), err, debugPath)
	}
	return formatted, nil
}
