package cmd

import (
	"bytes"
	"log"
	"text/template"

	"github.com/docker/go-units"
)

var templateFuncs = template.FuncMap{
	"humanSize": func(size int64) string {
		return units.BytesSize(float64(size))
	},
}

// outputTemplate yields the template set with the --format flag, or some default template
func outputTemplate(name, defaultTemplate string) *template.Template {
	if cfsFlags.core.Template != "" {
		t, err := template.New(name).Funcs(templateFuncs).Parse(cfsFlags.core.Template)
		if err != nil {
			wrapFatalln("invalid template", err)
			return nil
		}
		return t
	}
	return template.Must(template.New(name).Funcs(templateFuncs).Parse(defaultTemplate))
}

func printTemplate(t *template.Template, data interface{}) {
	if t == nil {
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		log.Println("executing template:", err)
		return
	}
	log.Println(buf.String())
}
