package result_test

import (
	"fmt"
	"html/template"
	"sync"
	"testing"

	"github.com/nixpig/jobdash/internal/jobmanager/result"
)

func TestCell(t *testing.T) {
	t.Parallel()

	t.Run("Test placeholder before first publish", func(t *testing.T) {
		t.Parallel()

		c := result.NewCell()

		if c.Published() {
			t.Error("expected cell not to be published")
		}

		got := c.Load()
		if got.Content != result.Placeholder {
			t.Errorf(
				"expected placeholder: got '%s', want '%s'",
				got.Content,
				result.Placeholder,
			)
		}

		if !got.PublishedAt.IsZero() {
			t.Errorf("expected zero publish time: got '%v'", got.PublishedAt)
		}
	})

	t.Run("Test latest write wins", func(t *testing.T) {
		t.Parallel()

		var c result.Cell

		c.SetPage("first")
		c.SetPage("second")

		got := c.Load()
		if got.Content != "second" {
			t.Errorf("expected content: got '%s', want '%s'", got.Content, "second")
		}

		if got.PublishedAt.IsZero() {
			t.Error("expected publish time to be set")
		}

		if !c.Published() {
			t.Error("expected cell to be published")
		}
	})

	t.Run("Test concurrent readers see whole snapshots", func(t *testing.T) {
		t.Parallel()

		c := result.NewCell()

		writes := 1000
		readers := 50

		valid := make(map[template.HTML]bool, writes+1)
		valid[result.Placeholder] = true
		for i := range writes {
			valid[template.HTML(fmt.Sprintf("<p>%d</p>", i))] = true
		}

		errCh := make(chan error, readers)

		var wg sync.WaitGroup

		wg.Go(func() {
			for i := range writes {
				c.SetPage(template.HTML(fmt.Sprintf("<p>%d</p>", i)))
			}
		})

		for range readers {
			wg.Go(func() {
				for range writes {
					got := c.Load().Content
					if !valid[got] {
						errCh <- fmt.Errorf("expected a published snapshot: got '%s'", got)
						return
					}
				}
			})
		}

		wg.Wait()
		close(errCh)

		for err := range errCh {
			t.Error(err)
		}

		if got := c.Load().Content; got != "<p>999</p>" {
			t.Errorf("expected final content: got '%s', want '%s'", got, "<p>999</p>")
		}
	})
}
