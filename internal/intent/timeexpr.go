package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time without a date.
type Clock struct {
	Hour   int
	Minute int
}

// On places the clock on day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// Matches reports whether t shows this clock time in t's location.
func (c Clock) Matches(t time.Time) bool {
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

func (c Clock) String() string {
	return strconv.Itoa(c.Hour) + ":" + twoDigits(c.Minute)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

var (
	isoDateRe    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dayNumRe     = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)?$`)
	yearRe       = regexp.MustCompile(`^(\d{4})$`)
	clockRe      = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm|a\.m\.|p\.m\.)?$`)
	clockRangeRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)?-(\d{1,2})(?::(\d{2}))?(am|pm)?$`)
	numberRe     = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// scanner marks tokens consumed by time expressions so that the remaining
// words can serve as keywords and titles.
type scanner struct {
	toks []string
	used []bool
	now  time.Time

	day      time.Time
	days     int
	hasDay   bool
	start    *Clock
	end      *Clock
	duration time.Duration
}

func newScanner(toks []string, now time.Time) *scanner {
	return &scanner{toks: toks, used: make([]bool, len(toks)), now: now}
}

func (s *scanner) at(i int) string {
	if i < 0 || i >= len(s.toks) || s.used[i] {
		return ""
	}
	return s.toks[i]
}

func (s *scanner) consume(from, to int) {
	for i := from; i < to && i < len(s.used); i++ {
		s.used[i] = true
	}
}

func (s *scanner) setDay(day time.Time, n int) {
	if s.hasDay {
		return
	}
	s.day, s.days, s.hasDay = day, n, true
}

func (s *scanner) setClock(c Clock) {
	switch {
	case s.start == nil:
		s.start = &c
	case s.end == nil:
		s.end = &c
	}
}

func (s *scanner) scan() {
	// Durations first so that "for 2 hours" is not read as a 2 o'clock.
	for i := range s.toks {
		s.duration1(i)
	}
	for i := range s.toks {
		if s.used[i] {
			continue
		}
		_ = s.isoDate(i) || s.monthDate(i) || s.relativeDay(i) || s.weekend(i) || s.week(i) || s.weekday(i)
	}
	for i := range s.toks {
		if s.used[i] {
			continue
		}
		_ = s.namedClock(i) || s.clockRange(i) || s.clock(i)
	}
}

func (s *scanner) today() time.Time {
	y, m, d := s.now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.now.Location())
}

func (s *scanner) isoDate(i int) bool {
	m := isoDateRe.FindStringSubmatch(s.at(i))
	if m == nil {
		return false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return false
	}
	s.consume(i, i+1)
	s.setDay(time.Date(y, time.Month(mo), d, 0, 0, 0, 0, s.now.Location()), 1)
	s.consumePreposition(i)
	return true
}

// monthDate handles "march 14", "march 14th 2027", "14 march" and
// "14th of march". A date without a year that already passed this year
// rolls over to next year.
func (s *scanner) monthDate(i int) bool {
	if month, ok := months[s.at(i)]; ok {
		if day, ok := dayNumber(s.at(i + 1)); ok {
			end := i + 2
			year, hasYear := yearNumber(s.at(end))
			if hasYear {
				end++
			}
			return s.placeDate(i, end, month, day, year, hasYear)
		}
		return false
	}
	day, ok := dayNumber(s.at(i))
	if !ok {
		return false
	}
	j := i + 1
	if s.at(j) == "of" {
		j++
	}
	month, ok := months[s.at(j)]
	if !ok {
		return false
	}
	end := j + 1
	year, hasYear := yearNumber(s.at(end))
	if hasYear {
		end++
	}
	return s.placeDate(i, end, month, day, year, hasYear)
}

func (s *scanner) placeDate(from, to int, month time.Month, day, year int, hasYear bool) bool {
	today := s.today()
	if !hasYear {
		year = today.Year()
	}
	date := time.Date(year, month, day, 0, 0, 0, 0, s.now.Location())
	if date.Month() != month {
		return false
	}
	if !hasYear && date.Before(today) {
		date = date.AddDate(1, 0, 0)
	}
	s.consume(from, to)
	s.consumePreposition(from)
	s.setDay(date, 1)
	return true
}

func dayNumber(tok string) (int, bool) {
	m := dayNumRe.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	d, _ := strconv.Atoi(m[1])
	return d, d >= 1 && d <= 31
}

func yearNumber(tok string) (int, bool) {
	m := yearRe.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	y, _ := strconv.Atoi(m[1])
	return y, y >= 1970 && y <= 2200
}

func (s *scanner) relativeDay(i int) bool {
	var offset int
	switch s.at(i) {
	case "today", "tonight":
		offset = 0
	case "tomorrow", "tmrw", "tmr":
		offset = 1
	case "yesterday":
		offset = -1
	default:
		return false
	}
	s.consume(i, i+1)
	s.consumePreposition(i)
	s.setDay(s.today().AddDate(0, 0, offset), 1)
	return true
}

// weekend covers Saturday and Sunday. "this weekend" on a Sunday is the
// current one; "next weekend" is the one after.
func (s *scanner) weekend(i int) bool {
	if s.at(i) != "weekend" {
		return false
	}
	from := i
	next := false
	switch s.at(i - 1) {
	case "next":
		next, from = true, i-1
	case "this", "the":
		from = i - 1
	}
	today := s.today()
	sat := today.AddDate(0, 0, (int(time.Saturday)-int(today.Weekday())+7)%7)
	if today.Weekday() == time.Sunday {
		sat = today.AddDate(0, 0, -1)
	}
	if next {
		sat = sat.AddDate(0, 0, 7)
	}
	s.consume(from, i+1)
	s.consumePreposition(from)
	s.setDay(sat, 2)
	return true
}

// week covers Monday through Sunday.
func (s *scanner) week(i int) bool {
	if s.at(i) != "week" {
		return false
	}
	var offset int
	switch s.at(i - 1) {
	case "this":
		offset = 0
	case "next":
		offset = 7
	default:
		return false
	}
	today := s.today()
	monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	s.consume(i-1, i+1)
	s.consumePreposition(i - 1)
	s.setDay(monday.AddDate(0, 0, offset), 7)
	return true
}

// weekday resolves a bare or "this" weekday to the next occurrence on or
// after today, and "next <weekday>" to the first occurrence strictly after
// today.
func (s *scanner) weekday(i int) bool {
	wd, ok := weekdays[s.at(i)]
	if !ok {
		return false
	}
	from := i
	strict := false
	switch s.at(i - 1) {
	case "next":
		strict, from = true, i-1
	case "this", "coming":
		from = i - 1
	}
	today := s.today()
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	if strict && delta == 0 {
		delta = 7
	}
	s.consume(from, i+1)
	s.consumePreposition(from)
	s.setDay(today.AddDate(0, 0, delta), 1)
	return true
}

func (s *scanner) namedClock(i int) bool {
	var c Clock
	switch s.at(i) {
	case "noon", "midday":
		c = Clock{Hour: 12}
	case "midnight":
		c = Clock{}
	default:
		return false
	}
	s.consume(i, i+1)
	s.consumePreposition(i)
	s.setClock(c)
	return true
}

func (s *scanner) clockRange(i int) bool {
	m := clockRangeRe.FindStringSubmatch(s.at(i))
	if m == nil {
		return false
	}
	endMer := m[6]
	startMer := m[3]
	if startMer == "" {
		startMer = endMer
	}
	start, ok1 := makeClock(m[1], m[2], startMer, true)
	end, ok2 := makeClock(m[4], m[5], endMer, true)
	if !ok1 || !ok2 {
		return false
	}
	s.consume(i, i+1)
	s.consumePreposition(i)
	s.setClock(start)
	s.setClock(end)
	return true
}

// clock accepts "3pm", "3 pm", "15:00" and "at 3". A bare number is only a
// clock after a preposition such as "at" or "until".
func (s *scanner) clock(i int) bool {
	m := clockRe.FindStringSubmatch(s.at(i))
	if m == nil {
		return false
	}
	end := i + 1
	mer := m[3]
	if mer == "" {
		if next := s.at(i + 1); next == "am" || next == "pm" || next == "a.m." || next == "p.m." {
			mer = next
			end++
		}
	}
	prev := s.at(i - 1)
	explicit := mer != "" || m[2] != ""
	if !explicit && prev != "at" && prev != "from" && prev != "until" && prev != "till" && prev != "to" && prev != "by" {
		return false
	}
	c, ok := makeClock(m[1], m[2], mer, !explicit)
	if !ok {
		return false
	}
	s.consume(i, end)
	s.consumePreposition(i)
	s.setClock(c)
	return true
}

// makeClock builds a clock from its parts. Without a meridiem, guess treats
// 1-7 as afternoon hours.
func makeClock(hs, ms, mer string, guess bool) (Clock, bool) {
	h, err := strconv.Atoi(hs)
	if err != nil {
		return Clock{}, false
	}
	minute := 0
	if ms != "" {
		if minute, err = strconv.Atoi(ms); err != nil || minute > 59 {
			return Clock{}, false
		}
	}
	mer = strings.ReplaceAll(mer, ".", "")
	switch mer {
	case "am":
		if h < 1 || h > 12 {
			return Clock{}, false
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return Clock{}, false
		}
		if h != 12 {
			h += 12
		}
	default:
		if h > 23 {
			return Clock{}, false
		}
		if guess && h >= 1 && h <= 7 {
			h += 12
		}
	}
	return Clock{Hour: h, Minute: minute}, true
}

// duration1 handles "for 2 hours", "for an hour", "for half an hour" and
// "for 90 minutes".
func (s *scanner) duration1(i int) bool {
	if s.at(i) != "for" {
		return false
	}
	j := i + 1
	var qty float64
	switch tok := s.at(j); {
	case tok == "half":
		qty = 0.5
		j++
		if a := s.at(j); a == "an" || a == "a" {
			j++
		}
	case tok == "an" || tok == "a":
		qty = 1
		j++
	case numberRe.MatchString(tok):
		qty, _ = strconv.ParseFloat(tok, 64)
		j++
	default:
		return false
	}

	var unit time.Duration
	switch s.at(j) {
	case "hour", "hours", "hr", "hrs", "h":
		unit = time.Hour
	case "minute", "minutes", "min", "mins", "m":
		unit = time.Minute
	default:
		return false
	}
	if qty <= 0 {
		return false
	}
	s.consume(i, j+1)
	s.duration = time.Duration(qty * float64(unit))
	return true
}

// consumePreposition swallows a dangling "on", "at", "for", "from",
// "until" or "by" right before a consumed expression.
func (s *scanner) consumePreposition(i int) {
	switch s.at(i - 1) {
	case "on", "at", "for", "from", "until", "till", "by", "in":
		s.used[i-1] = true
	}
}
