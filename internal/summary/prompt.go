// Package summary produces one-line synopses of merged events, either from
// an external chat-completion endpoint or from a deterministic fallback
// sentence.
package summary

import (
	"fmt"
	"strings"
)

// Source is one event that was absorbed into a merged event.
type Source struct {
	ID    string
	Title string
}

// Request describes a merged event to summarize.
type Request struct {
	MergedTitle string
	Sources     []Source
}

// Count is the number of source events.
func (r Request) Count() int {
	return len(r.Sources)
}

func (r Request) joinedTitles() string {
	titles := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		titles = append(titles, s.Title)
	}
	return strings.Join(titles, " + ")
}

// Prompt renders the instruction sent to the text generator.
func Prompt(r Request) string {
	var b strings.Builder
	b.WriteString("You are an event summarizer.\n\n")
	b.WriteString("Given a merged event and a list of source events that were merged into it,\n")
	b.WriteString("write ONE short sentence summary like:\n\n")
	b.WriteString("\"Merged team sync from 2 overlapping events: Planning + Demo.\"\n\n")
	fmt.Fprintf(&b, "Merged event title: %s\n", r.MergedTitle)
	fmt.Fprintf(&b, "Source event titles: %s\n", r.joinedTitles())
	fmt.Fprintf(&b, "Number of source events: %d\n\n", r.Count())
	b.WriteString("Return only the sentence, nothing else.")
	return b.String()
}

// Fallback is the deterministic synopsis used whenever generation is
// unavailable: "Merged <count> overlapping events: <a + b + ...>."
func Fallback(r Request) string {
	return fmt.Sprintf("Merged %d overlapping events: %s.", r.Count(), r.joinedTitles())
}
