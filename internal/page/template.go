package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"strings"
	"sync"

	"github.com/dmorgan81/stabilitybot/internal/log"
	"github.com/dmorgan81/stabilitybot/internal/session"
	"github.com/samber/do"
)

//go:embed assets/index.html
var indexTmpl string

type Params struct {
	Prompt            string
	Busy              bool
	CredentialMissing bool
	ShowGuidelines    bool
	Error             string
	Image             template.URL
}

// FromView converts a session view for rendering. Only data URIs are trusted as
// image sources.
func FromView(v session.View) Params {
	p := Params{
		Prompt:            v.Prompt,
		Busy:              v.Busy,
		CredentialMissing: v.CredentialMissing,
		ShowGuidelines:    v.ShowGuidelines,
		Error:             v.Error,
	}
	if strings.HasPrefix(v.Image, "data:image/png;base64,") {
		p.Image = template.URL(v.Image)
	}
	return p
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(i *do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("index").Parse(indexTmpl))
	})

	log := log.FromContextOrDiscard(ctx).WithGroup("templator")
	log.Debug("generating page")

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
