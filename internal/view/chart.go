package view

import (
	"html/template"
	"slices"
)

// Chart is a line chart keeping only its most recent points. It's not safe for
// concurrent use; the owner renders it and publishes the HTML.
type Chart struct {
	id       string
	title    string
	capacity int
	series   []string
	labels   []string
	values   [][]float64
}

// NewChart creates a Chart keeping up to capacity points for each named
// series.
func NewChart(id, title string, capacity int, series ...string) *Chart {
	if capacity < 1 {
		capacity = 1
	}

	return &Chart{
		id:       id,
		title:    title,
		capacity: capacity,
		series:   slices.Clone(series),
		values:   make([][]float64, len(series)),
	}
}

// Log appends a point labelled label. values are matched to series by
// position; missing values are logged as zero.
func (c *Chart) Log(label string, values ...float64) {
	c.labels = append(c.labels, label)

	for i := range c.series {
		var v float64
		if i < len(values) {
			v = values[i]
		}

		c.values[i] = append(c.values[i], v)
	}

	if over := len(c.labels) - c.capacity; over > 0 {
		c.labels = slices.Clone(c.labels[over:])

		for i := range c.values {
			c.values[i] = slices.Clone(c.values[i][over:])
		}
	}
}

// Len returns the number of points held.
func (c *Chart) Len() int {
	return len(c.labels)
}

// Latest returns the last value logged for the series at index i, or zero.
func (c *Chart) Latest(i int) float64 {
	if i < 0 || i >= len(c.values) || len(c.values[i]) == 0 {
		return 0
	}

	return c.values[i][len(c.values[i])-1]
}

// Render renders the chart.
func (c *Chart) Render() template.HTML {
	return execute("chart", struct {
		ID           string
		Title        string
		Labels       []string
		SeriesValues [][]float64
	}{c.id, c.title, c.labels, c.values})
}
