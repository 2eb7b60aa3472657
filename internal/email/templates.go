package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"
)

// TemplateAccountVerification is the template sent after signup.
const TemplateAccountVerification = "account_verification"

//go:embed templates/*.html templates/*.txt
var embedded embed.FS

// Templates renders named email bodies. Each name has an HTML variant
// (<name>.html) and optionally a plain-text variant (<name>.txt).
type Templates struct {
	html map[string]*htmltemplate.Template
	text map[string]*texttemplate.Template
}

// LoadTemplates parses the built-in templates.
func LoadTemplates() (*Templates, error) {
	return LoadTemplatesFS(embedded, "templates")
}

// LoadTemplatesFS parses every *.html and *.txt file under dir in fsys.
func LoadTemplatesFS(fsys fs.FS, dir string) (*Templates, error) {
	t := &Templates{
		html: make(map[string]*htmltemplate.Template),
		text: make(map[string]*texttemplate.Template),
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := path.Join(dir, e.Name())
		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", file, err)
		}
		switch ext := path.Ext(e.Name()); ext {
		case ".html":
			name := strings.TrimSuffix(e.Name(), ext)
			tpl, err := htmltemplate.New(name).Parse(string(raw))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", file, err)
			}
			t.html[name] = tpl
		case ".txt":
			name := strings.TrimSuffix(e.Name(), ext)
			tpl, err := texttemplate.New(name).Parse(string(raw))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", file, err)
			}
			t.text[name] = tpl
		}
	}
	return t, nil
}

// Render executes the named template and returns its HTML and plain-text
// bodies. The text body is empty when no .txt variant exists.
func (t *Templates) Render(name string, data any) (htmlBody, textBody string, err error) {
	tpl, ok := t.html[name]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}
	htmlBody = buf.String()

	if txt, ok := t.text[name]; ok {
		buf.Reset()
		if err := txt.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("execute text template %s: %w", name, err)
		}
		textBody = buf.String()
	}
	return htmlBody, textBody, nil
}
