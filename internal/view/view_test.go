package view_test

import (
	"strings"
	"testing"
	"time"

	"github.com/nixpig/jobdash/internal/view"
)

func TestViews(t *testing.T) {
	t.Parallel()

	t.Run("Test form", func(t *testing.T) {
		t.Parallel()

		got := string(view.RenderForm(view.Form{
			Title:       "Add",
			Description: "Compute a + b",
			Method:      "POST",
			Action:      "/compute",
			Fields: []view.Field{
				{Name: "a", Type: "number", Label: "Value A"},
				{Name: "b", Type: "number", Label: "Value B"},
			},
		}))

		for _, want := range []string{
			"<h1>Add</h1>",
			`action="/compute"`,
			`name="a" type="number"`,
			`name="b" type="number"`,
			"Value B",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("expected form to contain '%s': got '%s'", want, got)
			}
		}
	})

	t.Run("Test alerts escape messages", func(t *testing.T) {
		t.Parallel()

		got := string(view.Alerts("<b> was not provided.", "c was not provided."))

		if strings.Count(got, `class="alert alert-danger"`) != 2 {
			t.Errorf("expected two alerts: got '%s'", got)
		}

		if strings.Contains(got, "<b>") {
			t.Errorf("expected message to be escaped: got '%s'", got)
		}
	})

	t.Run("Test page layout", func(t *testing.T) {
		t.Parallel()

		got := view.Page(
			"jobdash",
			view.Nav{
				Pages: []view.Link{{Href: "/status", Text: "/status"}},
				Jobs:  []view.Link{{Href: "/compute", Text: "Add"}},
			},
			"<p>content</p>",
		)

		for _, want := range []string{
			"<!DOCTYPE html>",
			"<p>content</p>",
			`<a href="/status">/status</a>`,
			`<a href="/compute">Add</a>`,
		} {
			if !strings.Contains(got, want) {
				t.Errorf("expected page to contain '%s': got '%s'", want, got)
			}
		}
	})

	t.Run("Test job started", func(t *testing.T) {
		t.Parallel()

		got := string(view.JobStarted(view.Started{
			ID:   12,
			Name: "Permutations",
			Args: []view.Binding{{Name: "str", Value: "abc"}},
		}))

		for _, want := range []string{"Permutations", "str = abc", "/job?id=12"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected ack to contain '%s': got '%s'", want, got)
			}
		}
	})

	t.Run("Test job details", func(t *testing.T) {
		t.Parallel()

		got := string(view.Job(view.JobDetails{
			ID:      3,
			Name:    "Permutations",
			Started: time.Now().Add(-time.Minute),
			State:   "Running",
			Result:  "<ul><li>abc</li></ul>",
		}))

		for _, want := range []string{
			"Job Details",
			"State: Running",
			"<ul><li>abc</li></ul>",
			`action="/job/stop"`,
			"minute ago",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("expected details to contain '%s': got '%s'", want, got)
			}
		}
	})

	t.Run("Test finished job has no stop button", func(t *testing.T) {
		t.Parallel()

		got := string(view.Job(view.JobDetails{
			ID:       3,
			Started:  time.Now(),
			Finished: true,
		}))

		if strings.Contains(got, "/job/stop") {
			t.Errorf("expected no stop form: got '%s'", got)
		}
	})
}

func TestChart(t *testing.T) {
	t.Parallel()

	c := view.NewChart("cpu", "CPU", 3, "cpu", "max")

	for i, label := range []string{"a", "b", "c", "d", "e"} {
		c.Log(label, float64(i), 100)
	}

	if c.Len() != 3 {
		t.Errorf("expected chart length: got '%d', want '%d'", c.Len(), 3)
	}

	if c.Latest(0) != 4 {
		t.Errorf("expected latest value: got '%v', want '%v'", c.Latest(0), 4)
	}

	if c.Latest(5) != 0 {
		t.Errorf("expected zero for unknown series: got '%v'", c.Latest(5))
	}

	got := string(c.Render())

	for _, want := range []string{`id="cpu"`, "Chartist.Line", `"c"`, `"e"`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected chart to contain '%s': got '%s'", want, got)
		}
	}

	if strings.Contains(got, `"a"`) {
		t.Errorf("expected oldest points to be dropped: got '%s'", got)
	}
}
