package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

func htmlResponse(status int, body string) jobs.FetchResponse {
	return jobs.FetchResponse{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

var listing = "<html><body><ul>" +
	strings.Repeat("<li><a href='/vacancy'>Scientist B recruitment notice</a></li>", 20) +
	"</ul></body></html>"

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultThreshold, NewHeuristic(0).Threshold)
	require.Equal(t, DefaultThreshold, NewHeuristic(-5).Threshold)
	require.Equal(t, 90, NewHeuristic(90).Threshold)
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", "", 100},
		{"whitespace", "  \n ", 100},
		{"next mount point", `<div id="__next"></div>`, 85},
		{"angular root", `<body><app-root></app-root></body>`, 85},
		{"script heavy", `<html><script>var a=1;</script><p>t</p></html>`, 80},
		{"noscript hint", `<noscript>Please enable JavaScript to view vacancies</noscript><a href="/">Home</a>`, 45},
		{"server rendered listing", listing, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Score([]byte(tt.body)))
		})
	}
}

func TestShouldPromoteUsesThreshold(t *testing.T) {
	t.Parallel()

	noscript := htmlResponse(200, `<noscript>This site requires JavaScript</noscript><a href="/">Home</a>`)
	require.False(t, NewHeuristic(0).ShouldPromote(noscript))
	require.True(t, NewHeuristic(40).ShouldPromote(noscript))

	require.True(t, NewHeuristic(0).ShouldPromote(htmlResponse(200, "")))
	require.False(t, NewHeuristic(0).ShouldPromote(htmlResponse(200, listing)))
}

func TestShouldPromoteSkipsNon200(t *testing.T) {
	t.Parallel()

	require.False(t, NewHeuristic(0).ShouldPromote(htmlResponse(404, "")))
}

func TestShouldPromoteSkipsRenderedAndNonHTML(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	rendered := htmlResponse(200, "")
	rendered.UsedHeadless = true
	require.False(t, h.ShouldPromote(rendered))

	pdf := jobs.FetchResponse{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"application/pdf"}},
	}
	require.False(t, h.ShouldPromote(pdf))
}
