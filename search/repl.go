package search

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// REPL reads headlines from in and prints the k most similar past articles
// to out until it reads "quit" or reaches end of input. A failed search is
// printed and the prompt continues.
func REPL(ctx context.Context, s *Searcher, in io.Reader, out io.Writer, k int, monitor SearchMonitor) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out, "Enter a headline: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "quit" {
			return nil
		}
		if input == "" {
			continue
		}

		matches, err := s.FindSimilarWithMonitor(ctx, input, k, monitor)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		for i, m := range matches {
			a := m.Article
			fmt.Fprintf(out, "Result %d\n", i)
			fmt.Fprintf(out, "Headline: %s\n", a.HeadlineMain)
			fmt.Fprintf(out, "Date: %d/%d/%d\n", a.Month, a.Day, a.Year)
			fmt.Fprintf(out, "Snippet: %s\n", a.Snippet)
			fmt.Fprintf(out, "URL: %s\n", a.WebURL)
			fmt.Fprint(out, "\n\n")
		}
	}
}
