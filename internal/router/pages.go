package router

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"slices"
	"strconv"
	"strings"

	"github.com/nixpig/jobdash/internal/inspect"
	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/view"
	"google.golang.org/protobuf/proto"
)

// Built-in page URLs.
const (
	LandingURL = "/"
	JobsURL    = "/jobs"
	JobURL     = "/job"
	StopURL    = "/job/stop"
	StatusURL  = "/status"
	RoutesURL  = "/routes"
)

const (
	msgNoSuchJob      = "This job does not exist"
	msgJobNotFound    = "job not found"
	msgMethodNotAllow = "method not supported"
)

// jsonPage pairs an HTML and a JSON rendering of the same page.
type jsonPage struct {
	html func(ctx context.Context, req Request) template.HTML
	json func(ctx context.Context, req Request) proto.Message
}

func (p jsonPage) Render(ctx context.Context, req Request) template.HTML {
	return p.html(ctx, req)
}

func (p jsonPage) RenderJSON(ctx context.Context, req Request) proto.Message {
	return p.json(ctx, req)
}

// Methods restricts page to the given methods. Other methods render a
// "method not supported" alert.
func Methods(page Page, methods ...string) Page {
	allowed := make([]string, len(methods))
	for i, m := range methods {
		allowed[i] = strings.ToUpper(m)
	}

	return PageFunc(func(ctx context.Context, req Request) template.HTML {
		if !slices.Contains(allowed, req.Method) {
			return view.Alerts(msgMethodNotAllow)
		}

		return page.Render(ctx, req)
	})
}

func (r *Router) registerBuiltins() {
	r.RegisterRoute(LandingURL, PageFunc(func(ctx context.Context, req Request) template.HTML {
		return view.Landing(r.nav())
	}))

	r.RegisterRoute(JobsURL, jsonPage{
		html: func(ctx context.Context, req Request) template.HTML {
			return view.Jobs(jobRows(r.manager.Jobs()))
		},
		json: func(ctx context.Context, req Request) proto.Message {
			return inspect.Jobs(r.manager.Jobs())
		},
	})

	r.RegisterRoute(JobURL, jsonPage{
		html: r.renderJob,
		json: r.renderJobJSON,
	})

	r.RegisterRoute(StopURL, Methods(PageFunc(r.renderStop), "POST", "PUT", "DELETE"))

	r.RegisterRoute(StatusURL, jsonPage{
		html: r.renderStatus,
		json: func(ctx context.Context, req Request) proto.Message {
			return inspect.Status(r.status.Vars())
		},
	})

	r.RegisterRoute(RoutesURL, jsonPage{
		html: func(ctx context.Context, req Request) template.HTML {
			return view.Routes(r.Routes())
		},
		json: func(ctx context.Context, req Request) proto.Message {
			return inspect.Routes(r.Routes(), r.Descriptors())
		},
	})
}

func (r *Router) renderStatus(ctx context.Context, req Request) template.HTML {
	content := view.Status(r.status.Vars())

	for _, id := range r.status.Pinned() {
		job, err := r.manager.GetJob(id)
		if err != nil {
			r.logger.Warn("pinned job", "job_id", id, "err", err)
			continue
		}

		content += job.Result().Content
	}

	return content
}

// findJob resolves the "id" param to a Job, returning a user-facing message
// when it can't.
func (r *Router) findJob(params map[string]string) (*jobmanager.Job, string) {
	raw, ok := params["id"]
	if !ok {
		return nil, msgNoSuchJob
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, msgJobNotFound
	}

	job, err := r.manager.GetJob(id)
	if err != nil {
		return nil, msgJobNotFound
	}

	return job, ""
}

func (r *Router) renderJob(ctx context.Context, req Request) template.HTML {
	job, msg := r.findJob(req.Params)
	if job == nil {
		return view.Text(msg)
	}

	status := job.Status()

	return view.Job(view.JobDetails{
		ID:       status.ID,
		Name:     status.Name,
		Started:  status.Started,
		State:    status.State.String(),
		Finished: status.Finished,
		Stopped:  status.Stopped,
		Args:     r.bindings(status),
		Result:   job.Result().Content,
	})
}

func (r *Router) renderJobJSON(ctx context.Context, req Request) proto.Message {
	job, msg := r.findJob(req.Params)
	if job == nil {
		return inspect.Errors([]string{msg})
	}

	return inspect.JobWithResult(job.Status(), job.Result())
}

func (r *Router) renderStop(ctx context.Context, req Request) template.HTML {
	job, msg := r.findJob(req.Params)
	if job == nil {
		return view.Text(msg)
	}

	if err := job.Stop(); err != nil {
		var stateErr jobmanager.InvalidStateError
		if errors.As(err, &stateErr) {
			return view.Alerts(err.Error())
		}

		r.logger.Error("stop job", "job_id", job.ID(), "err", err)

		return view.Alerts("failed to stop job")
	}

	r.logger.Info("job stop requested", "job_id", job.ID(), "job", job.Name())

	status := job.Status()

	return view.Text(fmt.Sprintf("Stop requested for job %d.", job.ID())) +
		view.Job(view.JobDetails{
			ID:      job.ID(),
			Name:    job.Name(),
			Started: job.Started(),
			State:   status.State.String(),
			Stopped: true,
			Args:    r.bindings(status),
			Result:  job.Result().Content,
		})
}

// bindings pairs a job's values with the argument names of the descriptor
// it was started from, when one is registered under that name.
func (r *Router) bindings(status *jobmanager.JobStatus) []view.Binding {
	for _, d := range r.Descriptors() {
		if d.Name == status.Name {
			return d.Bindings(status.Args)
		}
	}

	bindings := make([]view.Binding, len(status.Args))
	for i, v := range status.Args {
		bindings[i] = view.Binding{Name: strconv.Itoa(i), Value: v}
	}

	return bindings
}

func jobRows(statuses []*jobmanager.JobStatus) []view.JobRow {
	rows := make([]view.JobRow, len(statuses))

	for i, s := range statuses {
		rows[i] = view.JobRow{
			ID:       s.ID,
			Name:     s.Name,
			Started:  s.Started,
			State:    s.State.String(),
			Finished: s.Finished,
		}
	}

	return rows
}
