// Package router maps requests to registered pages and jobs.
//
// A Router owns a route table from URL path to either a Page or a job
// Descriptor. Requests for a page render it; requests for a job render its
// form (GET) or validate the submitted parameters and run the job (any other
// method). Synchronous jobs run within the request, asynchronous ones are
// started in a jobmanager.Manager and acknowledged with their id.
//
// The route table is guarded by a read/write lock: registrations are
// exclusive, lookups share the lock. Job state lives in the Manager and each
// job's result in its own cell, so serving job pages never contends on the
// route table.
package router

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/nixpig/jobdash/internal/inspect"
	"github.com/nixpig/jobdash/internal/jobdesc"
	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/jobmanager/result"
	"github.com/nixpig/jobdash/internal/view"
	"google.golang.org/protobuf/proto"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json"

	// AcceptParam is the parameter carrying the request's Accept header.
	AcceptParam = "Accept"

	kindPage = "page"
	kindJob  = "job"
)

// Request is a single request handed to the Router by a transport.
type Request struct {
	Method string
	URL    string
	Params map[string]string
}

// WantsJSON reports whether the caller asked for a JSON rendering.
func (r Request) WantsJSON() bool {
	return strings.Contains(r.Params[AcceptParam], contentTypeJSON) ||
		r.Params["format"] == "json"
}

// Response is the rendered outcome of a Request.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

// Page renders the content of a page. The Router wraps the content in the
// page layout.
type Page interface {
	Render(ctx context.Context, req Request) template.HTML
}

// PageFunc adapts an ordinary function to a Page.
type PageFunc func(ctx context.Context, req Request) template.HTML

func (f PageFunc) Render(ctx context.Context, req Request) template.HTML {
	return f(ctx, req)
}

// JSONPage is implemented by Pages that can also render themselves as a
// protobuf document for JSON clients.
type JSONPage interface {
	Page
	RenderJSON(ctx context.Context, req Request) proto.Message
}

type route struct {
	page Page
	desc *jobdesc.Descriptor
}

func (r route) kind() string {
	if r.desc != nil {
		return kindJob
	}

	return kindPage
}

// Router dispatches requests to pages and jobs.
type Router struct {
	title   string
	manager *jobmanager.Manager
	status  *StatusBoard
	logger  *slog.Logger

	routes map[string]route
	mu     sync.RWMutex
}

// New creates a Router starting asynchronous jobs in manager, with the
// built-in pages registered.
func New(title string, manager *jobmanager.Manager, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Router{
		title:   title,
		manager: manager,
		status:  NewStatusBoard(),
		logger:  logger,
		routes:  make(map[string]route),
	}

	r.registerBuiltins()

	return r
}

// RegisterRoute maps url to page. It panics if url is malformed or already
// registered.
func (r *Router) RegisterRoute(url string, page Page) {
	if page == nil {
		panic("router: nil page for " + url)
	}

	r.register(url, route{page: page})
}

// RegisterPageFunc maps url to fn. It panics if url is malformed or already
// registered.
func (r *Router) RegisterPageFunc(
	url string,
	fn func(ctx context.Context, req Request) template.HTML,
) {
	r.RegisterRoute(url, PageFunc(fn))
}

// RegisterJob maps the descriptor's URL to the job. It panics if the
// descriptor is invalid or its URL is already registered.
func (r *Router) RegisterJob(d *jobdesc.Descriptor) {
	if d == nil {
		panic("router: nil descriptor")
	}

	if err := d.Validate(); err != nil {
		panic(fmt.Sprintf("router: invalid job '%s': %v", d.Name, err))
	}

	r.register(d.URL, route{desc: d})
}

func (r *Router) register(url string, rt route) {
	if !strings.HasPrefix(url, "/") {
		panic("router: url must start with '/': " + url)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[url]; exists {
		panic("router: multiple registrations for " + url)
	}

	r.routes[url] = rt

	r.logger.Debug("registered route", "url", url, "kind", rt.kind())
}

// SetStatusVar sets a status variable shown on the status page.
func (r *Router) SetStatusVar(name, value string) {
	r.status.Set(name, value)
}

// PinJob shows the latest result of the job with id on the status page.
func (r *Router) PinJob(id uint64) {
	r.status.Pin(id)
}

// Manager returns the Manager running asynchronous jobs.
func (r *Router) Manager() *jobmanager.Manager {
	return r.manager
}

// Routes returns every route in URL order.
func (r *Router) Routes() []view.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]view.Route, 0, len(r.routes))

	for _, url := range slices.Sorted(maps.Keys(r.routes)) {
		routes = append(routes, view.Route{URL: url, Kind: r.routes[url].kind()})
	}

	return routes
}

// Descriptors returns every registered job descriptor in URL order.
func (r *Router) Descriptors() []*jobdesc.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var descs []*jobdesc.Descriptor

	for _, url := range slices.Sorted(maps.Keys(r.routes)) {
		if d := r.routes[url].desc; d != nil {
			descs = append(descs, d)
		}
	}

	return descs
}

func (r *Router) nav() view.Nav {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var nav view.Nav

	for _, url := range slices.Sorted(maps.Keys(r.routes)) {
		rt := r.routes[url]

		if rt.desc != nil {
			nav.Jobs = append(nav.Jobs, view.Link{Href: url, Text: rt.desc.Name})
		} else {
			nav.Pages = append(nav.Pages, view.Link{Href: url, Text: url})
		}
	}

	return nav
}

func (r *Router) lookup(url string) (route, bool) {
	r.mu.RLock()
	rt, ok := r.routes[url]
	r.mu.RUnlock()

	return rt, ok
}

// Handle renders the response for method and url given the request params.
// Unknown URLs get the fixed not-found body regardless of method.
func (r *Router) Handle(
	ctx context.Context,
	method string,
	url string,
	params map[string]string,
) Response {
	if params == nil {
		params = map[string]string{}
	}

	req := Request{Method: strings.ToUpper(method), URL: url, Params: params}

	rt, ok := r.lookup(url)
	if !ok {
		r.logger.Debug("route not found", "method", req.Method, "url", url)

		return Response{
			Status:      http.StatusNotFound,
			ContentType: contentTypeHTML,
			Body:        view.NotFound,
		}
	}

	if rt.desc != nil {
		return r.serveJob(ctx, rt.desc, req)
	}

	return r.servePage(ctx, rt.page, req)
}

func (r *Router) servePage(ctx context.Context, page Page, req Request) Response {
	if jp, ok := page.(JSONPage); ok && req.WantsJSON() {
		return r.json(jp.RenderJSON(ctx, req))
	}

	return r.html(page.Render(ctx, req))
}

func (r *Router) serveJob(
	ctx context.Context,
	d *jobdesc.Descriptor,
	req Request,
) Response {
	if req.Method == http.MethodGet {
		if req.WantsJSON() {
			return r.json(inspect.Descriptor(d))
		}

		return r.html(view.RenderForm(d.MakeForm()))
	}

	values, err := d.ValidateParams(req.Params)
	if err != nil {
		var missing *jobdesc.MissingArgumentsError
		if !errors.As(err, &missing) {
			return r.html(view.Alerts(err.Error()))
		}

		r.logger.Debug("job arguments missing", "job", d.Name, "missing", missing.Missing)

		if req.WantsJSON() {
			return r.json(inspect.Errors(missing.Messages()))
		}

		return r.html(view.Alerts(missing.Messages()...) + view.RenderForm(d.MakeForm()))
	}

	if d.Synchronous {
		return r.runSync(ctx, d, values, req)
	}

	return r.startAsync(d, values, req)
}

func (r *Router) runSync(
	ctx context.Context,
	d *jobdesc.Descriptor,
	values []string,
	req Request,
) Response {
	cell := result.NewCell()

	// NOTE: No timeout is applied. A job that never returns holds this request
	// until the client goes away and ctx is cancelled, if it's watching ctx.
	err := r.execSync(ctx, d, values, cell)
	if err != nil {
		r.logger.Warn("synchronous job failed", "job", d.Name, "err", err)
	}

	snap := cell.Load()

	if req.WantsJSON() {
		return r.json(inspect.Completed(d.Name, snap, err))
	}

	var content template.HTML
	if err != nil {
		content = view.Alerts(err.Error())
	}

	return r.html(content + d.DisplayResult(snap.Content))
}

// execSync runs d on the calling goroutine. A panic in the job body is
// returned as an error, like the pool does for asynchronous jobs.
func (r *Router) execSync(
	ctx context.Context,
	d *jobdesc.Descriptor,
	values []string,
	cell *result.Cell,
) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("synchronous job panicked", "job", d.Name, "panic", fmt.Sprint(p))
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()

	return d.Exec.Execute(ctx, values, cell)
}

func (r *Router) startAsync(
	d *jobdesc.Descriptor,
	values []string,
	req Request,
) Response {
	if !d.Reentrant {
		if n := r.manager.Running(d.Name); n > 0 {
			// NOTE: Reentrancy is advisory, so the job is started anyway.
			r.logger.Warn("non-reentrant job already running", "job", d.Name, "running", n)
		}
	}

	id, err := r.manager.StartJob(d.Name, values, d.Bind(values))
	if err != nil {
		r.logger.Error("start job", "job", d.Name, "err", err)
		return r.html(view.Alerts(fmt.Sprintf("failed to start %s: %v", d.Name, err)))
	}

	r.logger.Info("job started", "job", d.Name, "job_id", id)

	if req.WantsJSON() {
		return r.json(inspect.Started(id, d.Name))
	}

	return r.html(view.JobStarted(view.Started{
		ID:   id,
		Name: d.Name,
		Args: d.Bindings(values),
	}))
}

func (r *Router) html(content template.HTML) Response {
	return Response{
		Status:      http.StatusOK,
		ContentType: contentTypeHTML,
		Body:        view.Page(r.title, r.nav(), content),
	}
}

func (r *Router) json(msg proto.Message) Response {
	body, err := inspect.MarshalJSON(msg)
	if err != nil {
		r.logger.Error("marshal json", "err", err)

		return Response{
			Status:      http.StatusInternalServerError,
			ContentType: contentTypeJSON,
			Body:        `{"errors":["internal server error"]}` + "\n",
		}
	}

	return Response{Status: http.StatusOK, ContentType: contentTypeJSON, Body: body}
}
