package intent

import (
	"strings"
	"time"
	"unicode"

	"github.com/teemow/noon/internal/action"
)

// DefaultDuration is used for new timed events when the request names no
// duration or end time.
const DefaultDuration = time.Hour

// Analysis is the lexical reading of one query relative to a reference time.
type Analysis struct {
	// Query is the raw text.
	Query string
	// Normalized is the lower-cased, single-spaced text.
	Normalized string
	// Now is the reference instant. Every derived time is in its location.
	Now time.Time

	// Hint is the kind suggested by the request's verbs and phrases, or ""
	// when nothing suggests one.
	Hint action.Kind
	// Calendar reports whether the request uses calendar vocabulary.
	Calendar bool

	// Day is the midnight of the first day mentioned, valid when HasDay.
	Day    time.Time
	HasDay bool
	// Days is the number of whole days the date expression covers
	// (1 for a day, 2 for a weekend, 7 for a week).
	Days int
	// Start and End are clock times, when mentioned.
	Start *Clock
	End   *Clock
	// Duration is an explicit "for ..." duration, or zero.
	Duration time.Duration

	// Keywords are the words left once stopwords, verbs, time expressions
	// and generic calendar nouns are removed.
	Keywords []string
	// Terms are Keywords plus the generic calendar nouns, in query order.
	Terms []string
	// Title is a cleaned-up event title for create requests.
	Title string
}

// Analyze reads q relative to now. It never fails: anything it cannot read
// is left out of the analysis.
func Analyze(q string, now time.Time) Analysis {
	norm := Normalize(q)
	a := Analysis{Query: q, Normalized: norm, Now: now}
	if norm == "" {
		return a
	}

	toks := strings.Fields(norm)
	sc := newScanner(toks, now)
	sc.scan()

	a.Day, a.Days, a.HasDay = sc.day, sc.days, sc.hasDay
	a.Start, a.End, a.Duration = sc.start, sc.end, sc.duration
	a.Hint = hint(toks, norm)

	var title []string
	for i, tok := range toks {
		if calendarNouns[tok] || eventNouns[tok] {
			a.Calendar = true
		}
		if sc.used[i] {
			continue
		}
		if isVerb(tok) {
			continue
		}
		if !stopwords[tok] {
			if !calendarNouns[tok] {
				a.Keywords = append(a.Keywords, tok)
			}
			a.Terms = append(a.Terms, tok)
		}
		if !politeness[tok] || len(title) > 0 {
			title = append(title, tok)
		}
	}
	if a.Hint != "" {
		a.Calendar = true
	}
	a.Title = makeTitle(title)
	return a
}

// HasTime reports whether the query mentions a date or a clock time.
func (a Analysis) HasTime() bool {
	return a.HasDay || a.Start != nil
}

// Empty reports whether the query is blank.
func (a Analysis) Empty() bool {
	return a.Normalized == ""
}

// InDomain reports whether the query plausibly concerns the calendar.
func (a Analysis) InDomain() bool {
	return a.Calendar || a.HasTime()
}

// Window returns the whole-day window named by the query. Without a date
// it returns today.
func (a Analysis) Window() action.TimeWindow {
	if !a.HasDay {
		return action.DayWindow(a.Now)
	}
	return action.DaysWindow(a.Day, a.Days)
}

// StartTime returns the first day at the start clock, if both are known.
// A clock without a date is placed today.
func (a Analysis) StartTime() (time.Time, bool) {
	if a.Start == nil {
		return time.Time{}, false
	}
	day := a.Day
	if !a.HasDay {
		day = action.StartOfDay(a.Now)
	}
	return a.Start.On(day), true
}

// Timing derives the timing of a new event. A clock time gives a timed
// pair ending at the end clock, after the duration, or after
// DefaultDuration. A date alone gives an all-day pair covering Days.
func (a Analysis) Timing() (action.Timing, error) {
	if start, ok := a.StartTime(); ok {
		end := start.Add(DefaultDuration)
		switch {
		case a.End != nil:
			end = a.End.On(start)
			if !end.After(start) {
				end = end.AddDate(0, 0, 1)
			}
		case a.Duration > 0:
			end = start.Add(a.Duration)
		}
		return action.TimedPair(start, end)
	}
	if a.HasDay {
		return action.DatePair(a.Day, a.Day.AddDate(0, 0, a.Days))
	}
	return action.Timing{}, action.ErrInvalidTiming
}

// Split divides an update request at its first " to " into the part that
// identifies the event and the part that describes the change:
// "move my dentist appointment to 4pm" gives ("move my dentist appointment",
// "4pm").
func Split(q string) (target, change string, ok bool) {
	norm := Normalize(q)
	idx := strings.Index(" "+norm+" ", " to ")
	if idx < 0 {
		return norm, "", false
	}
	target = strings.TrimSpace(norm[:idx])
	change = strings.TrimSpace(norm[min(idx+3, len(norm)):])
	return target, change, change != ""
}

// Normalize lower-cases q, folds typographic apostrophes and removes
// punctuation other than the characters used in times and dates.
func Normalize(q string) string {
	q = strings.ToLower(q)
	q = strings.NewReplacer("’", "'", "‘", "'").Replace(q)
	q = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == ':' || r == '-' || r == '\'' || r == '.':
			return r
		}
		return ' '
	}, q)
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".'-")
		if f == "a.m." || f == "p.m." {
			fields[i] = f
		}
	}
	return strings.Join(strings.Fields(strings.Join(fields, " ")), " ")
}

func hint(toks []string, norm string) action.Kind {
	for _, v := range anywhereVerbs {
		for _, w := range v.words {
			for _, tok := range toks {
				if tok == w {
					return v.kind
				}
			}
		}
	}
	for _, p := range phrases {
		if hasPhrase(norm, p.phrase) {
			return p.kind
		}
	}
	for _, tok := range toks {
		if politeness[tok] {
			continue
		}
		if k, ok := leadingVerbs[tok]; ok {
			return k
		}
		break
	}
	return ""
}

func isVerb(tok string) bool {
	if _, ok := leadingVerbs[tok]; ok {
		return true
	}
	for _, v := range anywhereVerbs {
		for _, w := range v.words {
			if tok == w {
				return true
			}
		}
	}
	return false
}

// makeTitle keeps the first words of a create request that are neither
// filler nor a destination ("to my calendar").
func makeTitle(words []string) string {
	var out []string
	for i, w := range words {
		if w == "to" || w == "on" || w == "in" {
			rest := words[i+1:]
			if len(rest) > 0 && (rest[0] == "my" || rest[0] == "the") {
				break
			}
		}
		switch w {
		case "a", "an", "the", "my", "please", "for", "with":
			if len(out) == 0 {
				continue
			}
		}
		out = append(out, w)
	}
	for len(out) > 0 {
		last := out[len(out)-1]
		if !stopwords[last] {
			break
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return ""
	}
	title := strings.Join(out, " ")
	r := []rune(title)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
