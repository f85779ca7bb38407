// Package demojobs provides the example jobs shipped with the jobdash binary:
// a synchronous addition and an asynchronous string permutation.
package demojobs

import (
	"context"
	"fmt"
	"html/template"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nixpig/jobdash/internal/jobdesc"
	"github.com/nixpig/jobdash/internal/jobmanager/result"
	"github.com/nixpig/jobdash/internal/router"
	"github.com/nixpig/jobdash/internal/view"
)

const (
	// HasComputedVar is set to "true" once Add has produced a result.
	HasComputedVar = "Has Computed"

	// MaxPermuteLen bounds the input to Permutations. Every permutation is
	// listed on the job page and 7 characters already make 5040 of them.
	MaxPermuteLen = 7

	publishEvery   = 10
	progressPoints = 30
)

var ErrTooLong = fmt.Errorf("string is longer than %d characters", MaxPermuteLen)

// Register registers every demo job with r.
func Register(r *router.Router) {
	r.SetStatusVar(HasComputedVar, "false")

	r.RegisterJob(AddDescriptor(func() {
		r.SetStatusVar(HasComputedVar, "true")
	}))
	r.RegisterJob(PermutationsDescriptor())
}

// AddDescriptor describes a synchronous job adding two integers. onResult,
// if set, is called after every successful addition.
func AddDescriptor(onResult func()) *jobdesc.Descriptor {
	return &jobdesc.Descriptor{
		Name:        "Add",
		URL:         "/compute",
		Description: "Compute a + b",
		Synchronous: true,
		Reentrant:   true,
		Args: []jobdesc.Arg{
			{Name: "a", Type: "number", Description: "Value A"},
			{Name: "b", Type: "number", Description: "Value B"},
		},
		Exec: jobdesc.Pure(func(args []string) (template.HTML, error) {
			sum, err := Add(args[0], args[1])
			if err != nil {
				return "", err
			}

			if onResult != nil {
				onResult()
			}

			return view.Text(strconv.FormatInt(sum, 10)), nil
		}),
	}
}

// Add parses and adds a and b.
func Add(a, b string) (int64, error) {
	x, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("a is not an integer: %w", err)
	}

	y, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("b is not an integer: %w", err)
	}

	return x + y, nil
}

// PermutationsDescriptor describes an asynchronous job listing every
// permutation of a string.
func PermutationsDescriptor() *jobdesc.Descriptor {
	return &jobdesc.Descriptor{
		Name:        "Permutations",
		URL:         "/permute",
		Description: "Permute a string",
		Args: []jobdesc.Arg{
			{Name: "str", Type: "text", Description: "String to permute"},
		},
		Exec: jobdesc.ExecFunc(permute),
	}
}

func permute(ctx context.Context, args []string, page result.Publisher) error {
	str := args[0]

	if utf8.RuneCountInString(str) > MaxPermuteLen {
		page.SetPage(view.Alerts(ErrTooLong.Error()))
		return ErrTooLong
	}

	runes := []rune(str)
	slices.Sort(runes)

	total := factorial(len(runes))
	progress := view.NewChart("progression", "Progression", progressPoints, "iter", "max")

	var found []string

	render := func() template.HTML {
		return view.Result("Permutations of "+str, progress.Render()+view.List(found))
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			page.SetPage(view.Alerts("stopped after "+strconv.Itoa(i)+" permutations") + render())
			return err
		}

		found = append(found, string(runes))

		if i%publishEvery == 0 {
			progress.Log(strconv.Itoa(i), float64(i), float64(total))
			page.SetPage(render())
		}

		if !nextPermutation(runes) {
			break
		}
	}

	progress.Log(strconv.Itoa(len(found)), float64(len(found)), float64(total))
	page.SetPage(render())

	return nil
}

// nextPermutation rearranges s into the next lexicographically greater
// permutation. It returns false, leaving s unchanged, when s is already the
// greatest.
func nextPermutation(s []rune) bool {
	i := len(s) - 2
	for i >= 0 && s[i] >= s[i+1] {
		i--
	}

	if i < 0 {
		return false
	}

	j := len(s) - 1
	for s[j] <= s[i] {
		j--
	}

	s[i], s[j] = s[j], s[i]
	slices.Reverse(s[i+1:])

	return true
}

func factorial(n int) int {
	f := 1
	for i := 2; i <= n; i++ {
		f *= i
	}

	return f
}
