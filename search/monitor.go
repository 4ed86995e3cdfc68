package search

import (
	"fmt"
	"io"

	"github.com/cyclicism/crunch/core"
)

// SearchMonitor provides hooks to observe the search process.
type SearchMonitor interface {
	Start(query string)
	AfterVectorSearch(hits []core.ScoredInfo)
	MissingArticle(uri string)
	Finish(results []core.PastMatch)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                        {}
func (n *noopMonitor) AfterVectorSearch(_ []core.ScoredInfo) {}
func (n *noopMonitor) MissingArticle(_ string)               {}
func (n *noopMonitor) Finish(_ []core.PastMatch)             {}

// WriterMonitor prints each step to W. The REPL uses it in verbose mode.
type WriterMonitor struct {
	W io.Writer
}

var _ SearchMonitor = (*WriterMonitor)(nil)

func (m *WriterMonitor) Start(query string) {
	fmt.Fprintf(m.W, "searching for %q\n", query)
}

func (m *WriterMonitor) AfterVectorSearch(hits []core.ScoredInfo) {
	fmt.Fprintf(m.W, "%d vector hits\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(m.W, "  %.4f %s\n", h.Score, h.Info.URI)
	}
}

func (m *WriterMonitor) MissingArticle(uri string) {
	fmt.Fprintf(m.W, "missing article %s\n", uri)
}

func (m *WriterMonitor) Finish(results []core.PastMatch) {
	fmt.Fprintf(m.W, "%d results\n", len(results))
}
