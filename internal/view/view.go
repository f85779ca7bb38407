// Package view renders the dashboard's HTML. Every function returns
// template.HTML that is safe to embed in another view.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
)

// NotFound is the fixed body served for unknown URLs.
const NotFound = "<html><head><title>Not found</title></head><body>Go away.</body></html>"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("view").
		Funcs(template.FuncMap{
			"ago": func(t time.Time) string { return humanize.Time(t) },
		}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// Link is an anchor in a list.
type Link struct {
	Href string
	Text string
}

// Nav lists the registered pages and jobs.
type Nav struct {
	Pages []Link
	Jobs  []Link
}

// Field is a single input of a Form.
type Field struct {
	Name  string
	Type  string
	Label string
}

// Form describes an HTML form submitting to Action.
type Form struct {
	Title       string
	Description string
	Method      string
	Action      string
	Fields      []Field
}

// Binding is a named argument value.
type Binding struct {
	Name  string
	Value string
}

// Started acknowledges that an asynchronous job has been started.
type Started struct {
	ID   uint64
	Name string
	Args []Binding
}

// JobRow is a row of the running jobs table.
type JobRow struct {
	ID       uint64
	Name     string
	Started  time.Time
	State    string
	Finished bool
}

// JobDetails describes a single job instance and its latest result.
type JobDetails struct {
	ID       uint64
	Name     string
	Started  time.Time
	State    string
	Finished bool
	Stopped  bool
	Args     []Binding
	Result   template.HTML
}

// StatusVar is a named status value set by the host application.
type StatusVar struct {
	Name  string
	Value string
}

// Route is an entry of the route table.
type Route struct {
	URL  string
	Kind string
}

type layout struct {
	Title   string
	Content template.HTML
	Nav     Nav
}

// Page wraps content in the full page layout with nav as the sidebar.
func Page(title string, nav Nav, content template.HTML) string {
	return string(execute("layout", layout{Title: title, Content: content, Nav: nav}))
}

// RenderForm renders f as an HTML form.
func RenderForm(f Form) template.HTML {
	return execute("form", f)
}

// Alerts renders one alert box per message.
func Alerts(msgs ...string) template.HTML {
	return execute("alerts", msgs)
}

// Result renders content under a heading.
func Result(title string, content template.HTML) template.HTML {
	return execute("result", struct {
		Title   string
		Content template.HTML
	}{title, content})
}

// List renders items as an unordered list.
func List(items []string) template.HTML {
	return execute("list", items)
}

// JobStarted renders the acknowledgment of an asynchronous job.
func JobStarted(s Started) template.HTML {
	return execute("started", s)
}

// Jobs renders the table of job instances.
func Jobs(rows []JobRow) template.HTML {
	return execute("jobs", rows)
}

// Job renders the details of a job instance.
func Job(d JobDetails) template.HTML {
	return execute("job", d)
}

// Status renders the status variables.
func Status(vars []StatusVar) template.HTML {
	return execute("status", vars)
}

// Routes renders the route table.
func Routes(routes []Route) template.HTML {
	return execute("routes", routes)
}

// Landing renders the landing page listing pages and jobs.
func Landing(nav Nav) template.HTML {
	return execute("landing", nav)
}

// Text renders an escaped text fragment.
func Text(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}

func execute(name string, data any) template.HTML {
	var buf bytes.Buffer

	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// NOTE: Templates are parsed at init, so this only happens if a view is
		// handed data it can't render. Surface it in the page rather than
		// dropping the whole response.
		return Alerts(fmt.Sprintf("render %s: %v", name, err))
	}

	return template.HTML(buf.String())
}
