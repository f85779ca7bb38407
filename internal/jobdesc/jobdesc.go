// Package jobdesc describes the kinds of job a dashboard can run: their
// arguments, how they are presented as forms, and how caller-supplied
// parameters are bound to them.
package jobdesc

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/jobmanager/result"
	"github.com/nixpig/jobdash/internal/view"
)

// Executable is the body of a job. args are the validated argument values in
// declaration order. Progress and results are published through page.
type Executable interface {
	Execute(ctx context.Context, args []string, page result.Publisher) error
}

// ExecFunc adapts an ordinary function to an Executable.
type ExecFunc func(ctx context.Context, args []string, page result.Publisher) error

func (f ExecFunc) Execute(
	ctx context.Context,
	args []string,
	page result.Publisher,
) error {
	return f(ctx, args, page)
}

// Pure wraps a function that computes its whole result at once and publishes
// it as the job's only snapshot.
func Pure(fn func(args []string) (template.HTML, error)) Executable {
	return ExecFunc(func(
		ctx context.Context,
		args []string,
		page result.Publisher,
	) error {
		content, err := fn(args)
		if err != nil {
			return err
		}

		page.SetPage(content)

		return nil
	})
}

// Arg declares a named argument of a job.
type Arg struct {
	Name string

	// Type is the HTML input type used to render the argument, e.g. "number"
	// or "text". Values are never parsed or checked against it.
	Type string

	Description string
}

// Descriptor is the immutable definition of a kind of job. It must not be
// modified once registered.
type Descriptor struct {
	Name        string
	URL         string
	Description string
	Args        []Arg

	// Synchronous jobs run inside the request that triggers them. Others are
	// started in the background and the caller is handed an id to poll.
	Synchronous bool

	// Reentrant declares whether concurrent instances are allowed.
	// NOTE: This is advisory only and isn't enforced anywhere.
	Reentrant bool

	Exec Executable
}

// MissingArgumentsError is returned by ValidateParams when one or more
// declared arguments are absent.
type MissingArgumentsError struct {
	Missing []string
}

func (e *MissingArgumentsError) Error() string {
	return fmt.Sprintf("missing arguments: %s", strings.Join(e.Missing, ", "))
}

// Messages returns one human-readable message per missing argument, in
// declaration order.
func (e *MissingArgumentsError) Messages() []string {
	msgs := make([]string, len(e.Missing))

	for i, name := range e.Missing {
		msgs[i] = name + " was not provided."
	}

	return msgs
}

// Validate checks the descriptor is usable. It's called on registration.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(d.URL, "/") {
		return fmt.Errorf("url must start with '/': got '%s'", d.URL)
	}

	if d.Exec == nil {
		return errors.New("exec cannot be nil")
	}

	seen := make(map[string]bool, len(d.Args))
	for _, a := range d.Args {
		if a.Name == "" {
			return errors.New("argument name cannot be empty")
		}

		if seen[a.Name] {
			return fmt.Errorf("duplicate argument '%s'", a.Name)
		}

		seen[a.Name] = true
	}

	return nil
}

// ValidateParams looks up every declared argument in params and returns their
// values in declaration order. An argument present with an empty value counts
// as provided. If any argument is missing it returns a nil slice and a
// *MissingArgumentsError naming all of them.
func (d *Descriptor) ValidateParams(params map[string]string) ([]string, error) {
	values := make([]string, 0, len(d.Args))

	var missing []string

	for _, a := range d.Args {
		v, ok := params[a.Name]
		if !ok {
			missing = append(missing, a.Name)
			continue
		}

		values = append(values, v)
	}

	if len(missing) > 0 {
		return nil, &MissingArgumentsError{Missing: missing}
	}

	return values, nil
}

// MakeForm describes the form used to submit the job.
func (d *Descriptor) MakeForm() view.Form {
	fields := make([]view.Field, len(d.Args))

	for i, a := range d.Args {
		fields[i] = view.Field{Name: a.Name, Type: a.Type, Label: a.Description}
	}

	return view.Form{
		Title:       d.Name,
		Description: d.Description,
		Method:      "POST",
		Action:      d.URL,
		Fields:      fields,
	}
}

// DisplayResult renders content under the job's name.
func (d *Descriptor) DisplayResult(content template.HTML) template.HTML {
	return view.Result(d.Name, content)
}

// Bindings pairs argument names with values for display.
func (d *Descriptor) Bindings(values []string) []view.Binding {
	bindings := make([]view.Binding, 0, len(values))

	for i, v := range values {
		if i >= len(d.Args) {
			break
		}

		bindings = append(bindings, view.Binding{Name: d.Args[i].Name, Value: v})
	}

	return bindings
}

// Bind returns a Task running the descriptor's Exec with values.
func (d *Descriptor) Bind(values []string) jobmanager.Task {
	return jobmanager.TaskFunc(func(
		ctx context.Context,
		page result.Publisher,
	) error {
		return d.Exec.Execute(ctx, values, page)
	})
}
