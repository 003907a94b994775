package reasoner

import (
	"fmt"
	"strings"
	"time"

	"github.com/teemow/noon/internal/agent"
)

// systemPrompt tells the model the reference time, the rules of the
// registry and how many lookups are left.
func systemPrompt(s *agent.State) string {
	now := s.Query.Now
	loc := s.Query.Location
	if loc == nil {
		loc = now.Location()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You turn one calendar request into exactly one action.\n")
	fmt.Fprintf(&b, "It is now %s (%s) in the time zone %s.\n\n",
		now.Format(time.RFC3339), now.Format("Monday"), loc.String())

	b.WriteString("End the request with exactly one call to a terminal tool: ")
	b.WriteString(strings.Join(terminalNames(), ", "))
	b.WriteString(".\n")
	b.WriteString("Before showing, updating or deleting an event, look up its event_id and calendar_id with ")
	b.WriteString("search_events, read_schedule or read_event. Never invent IDs.\n")
	b.WriteString("A lookup that returns an error field failed; it does not mean nothing matched.\n")
	b.WriteString("Write every time as RFC 3339 with the offset of the user's time zone. ")
	b.WriteString("A whole day runs from 00:00:00 to 23:59:59. ")
	b.WriteString("All-day events use start_date and end_date, with end_date the day after the last day.\n")
	b.WriteString("New events go to the calendar_id \"primary\" unless the user names another calendar.\n")
	b.WriteString("If the request is not about the calendar, or stays ambiguous after looking, call do_nothing and give the reason.\n")

	if left := s.Remaining(); left > 0 {
		fmt.Fprintf(&b, "\nYou may make at most %d more lookups.\n", left)
	} else {
		b.WriteString("\nNo lookups are left: call a terminal tool now.\n")
	}
	return b.String()
}

func terminalNames() []string {
	var names []string
	for _, spec := range agent.Tools() {
		if spec.Terminal {
			names = append(names, spec.Name)
		}
	}
	return names
}
