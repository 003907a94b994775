package intent

import (
	"strings"
	"time"

	"github.com/teemow/noon/internal/action"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May, "june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// calendarNouns are generic words that place a query in the calendar domain
// without identifying a particular event.
var calendarNouns = set(
	"calendar", "calendars", "schedule", "agenda", "event", "events",
	"meeting", "meetings", "appointment", "appointments", "appt",
	"busy", "free", "available", "availability", "booked", "plans",
)

// eventNouns place a query in the calendar domain and also name the event.
var eventNouns = set(
	"lunch", "dinner", "breakfast", "brunch", "call", "standup", "sync",
	"interview", "reservation", "class", "party", "flight", "trip",
	"dentist", "doctor", "haircut", "workout", "gym", "review", "demo",
	"1:1", "one-on-one", "offsite", "conference", "webinar", "birthday",
)

var stopwords = set(
	"a", "an", "the", "my", "me", "i", "i'm", "im", "i'd", "you", "your",
	"please", "can", "could", "would", "will", "should", "kindly", "hey",
	"hi", "to", "for", "with", "on", "at", "in", "of", "from", "and", "or",
	"is", "are", "was", "be", "do", "does", "did", "doing", "have", "has",
	"what", "what's", "whats", "when", "when's", "whens", "where", "which",
	"that", "this", "these", "those", "it", "its", "it's", "any", "anything",
	"something", "some", "about", "up", "want", "need", "like", "let's",
	"lets", "just", "also", "there", "get", "going", "got", "new", "all",
	"am", "pm", "until", "till", "by", "next", "last", "upcoming", "time",
	"out", "into", "onto", "so", "then", "now", "we", "our", "us",
)

// politeness is skipped when looking for the leading verb.
var politeness = set(
	"please", "can", "could", "would", "will", "you", "kindly", "hey", "hi",
	"i", "i'd", "want", "need", "like", "to", "let's", "lets", "go", "ahead",
	"and", "ok", "okay",
)

type verbHint struct {
	words []string
	kind  action.Kind
}

// leadingVerbs are only treated as hints when they start the request, so
// that "schedule" as a noun does not read as a create request.
var leadingVerbs = map[string]action.Kind{
	"schedule": action.KindCreateEvent,
	"plan":     action.KindCreateEvent,
	"put":      action.KindCreateEvent,
	"set":      action.KindCreateEvent,
	"block":    action.KindCreateEvent,
	"show":     action.KindShowEvent,
	"open":     action.KindShowEvent,
	"list":     action.KindShowSchedule,
}

// anywhereVerbs apply wherever they appear, in priority order.
var anywhereVerbs = []verbHint{
	{kind: action.KindDeleteEvent, words: []string{"cancel", "delete", "remove", "drop", "clear", "scrap", "cancelled", "canceled"}},
	{kind: action.KindUpdateEvent, words: []string{"move", "reschedule", "rename", "change", "push", "postpone", "shift", "update", "extend", "shorten", "retitle"}},
	{kind: action.KindCreateEvent, words: []string{"book", "add", "create", "arrange", "organize", "organise", "insert"}},
}

type phraseHint struct {
	phrase string
	kind   action.Kind
}

// phrases are matched on the normalized text after the verb lists.
var phrases = []phraseHint{
	{phrase: "set up", kind: action.KindCreateEvent},
	{phrase: "when is", kind: action.KindShowEvent},
	{phrase: "when's", kind: action.KindShowEvent},
	{phrase: "what time is", kind: action.KindShowEvent},
	{phrase: "where is", kind: action.KindShowEvent},
	{phrase: "details of", kind: action.KindShowEvent},
	{phrase: "details for", kind: action.KindShowEvent},
	{phrase: "show me my", kind: action.KindShowSchedule},
	{phrase: "what's on", kind: action.KindShowSchedule},
	{phrase: "whats on", kind: action.KindShowSchedule},
	{phrase: "what is on", kind: action.KindShowSchedule},
	{phrase: "what am i", kind: action.KindShowSchedule},
	{phrase: "what do i have", kind: action.KindShowSchedule},
	{phrase: "what have i got", kind: action.KindShowSchedule},
	{phrase: "am i free", kind: action.KindShowSchedule},
	{phrase: "am i busy", kind: action.KindShowSchedule},
	{phrase: "anything on", kind: action.KindShowSchedule},
	{phrase: "my agenda", kind: action.KindShowSchedule},
	{phrase: "my schedule", kind: action.KindShowSchedule},
	{phrase: "my day", kind: action.KindShowSchedule},
	{phrase: "my week", kind: action.KindShowSchedule},
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func hasPhrase(normalized, phrase string) bool {
	padded := " " + normalized + " "
	return strings.Contains(padded, " "+phrase+" ")
}
