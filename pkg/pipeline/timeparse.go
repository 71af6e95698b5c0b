package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ResolutionKind says how a time phrase was resolved.
type ResolutionKind int

const (
	// KindRelative is a phrase anchored on the caller's clock ("30 minutes
	// ago", "yesterday at 3pm", "at 2pm").
	KindRelative ResolutionKind = iota + 1

	// KindDate is a bare date without a time of day; it resolves to midnight.
	KindDate
)

// TimeResolution is a resolved time phrase.
type TimeResolution struct {
	Time     time.Time
	Kind     ResolutionKind
	HasClock bool
}

type period int

const (
	periodNone period = iota
	periodMorning
	periodAfternoon
	periodEvening
	periodTonight
	periodLastNight
)

var (
	nowRe     = regexp.MustCompile(`\b(just now|right now|now)\b`)
	halfAgoRe = regexp.MustCompile(`\bhalf an? hour ago\b`)
	agoRe     = regexp.MustCompile(`\b(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|fifteen|twenty|thirty|forty|forty-five)\s*(minutes?|mins?|hours?|hrs?|days?)\s+ago\b`)

	atClockRe       = regexp.MustCompile(`\b(?:at|around|about|by|from)\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?(?:[^\w:]|$)`)
	meridiemClockRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)(?:[^\w]|$)`)
	colonClockRe    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	noonRe          = regexp.MustCompile(`\b(noon|midday|lunchtime)\b`)
	midnightRe      = regexp.MustCompile(`\bmidnight\b`)

	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
	monthDayRe  = regexp.MustCompile(`\b` + monthNames + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRe  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `\.?(?:,?\s+(\d{4}))?\b`)
	weekdayRe   = regexp.MustCompile(`\b(last\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	// quantities that follow a number are not clock times ("about 20 minutes")
	unitAfterRe = regexp.MustCompile(`^\s*(minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?|ml|oz|ounces?|kg|lbs?|g|grams?|cm|inches|times|percent|%)\b`)
)

const monthNames = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "fifteen": 15,
	"twenty": 20, "thirty": 30, "forty": 40, "forty-five": 45,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ResolveTimeReference resolves a natural language time phrase against the
// caller's local time. It reports false when the phrase holds no usable time.
func ResolveTimeReference(ref string, now time.Time) (TimeResolution, bool) {
	s := strings.ToLower(strings.TrimSpace(ref))
	if s == "" {
		return TimeResolution{}, false
	}

	if halfAgoRe.MatchString(s) {
		return TimeResolution{Time: now.Add(-30 * time.Minute), Kind: KindRelative, HasClock: true}, true
	}
	if m := agoRe.FindStringSubmatch(s); m != nil {
		if d, ok := agoDuration(m[1], m[2]); ok {
			return TimeResolution{Time: now.Add(-d), Kind: KindRelative, HasClock: true}, true
		}
	}
	if nowRe.MatchString(s) {
		return TimeResolution{Time: now, Kind: KindRelative, HasClock: true}, true
	}

	day, explicitDay, dateOnly := resolveDay(s, now)
	p := detectPeriod(s)
	hour, minute, meridiem, hasClock := findClock(s)

	if p == periodLastNight {
		return resolveLastNight(now, hour, minute, meridiem, hasClock), true
	}

	if hasClock {
		hour = applyMeridiem(hour, meridiem, p, explicitDay, now)
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
		if !explicitDay && p == periodNone && t.After(now.Add(time.Hour)) {
			// a bare clock time later than now refers to yesterday
			t = t.AddDate(0, 0, -1)
		}
		return TimeResolution{Time: t, Kind: KindRelative, HasClock: true}, true
	}

	if h, ok := periodDefault(p); ok {
		t := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, now.Location())
		return TimeResolution{Time: t, Kind: KindRelative, HasClock: true}, true
	}

	if dateOnly {
		t := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		return TimeResolution{Time: t, Kind: KindDate}, true
	}

	if explicitDay {
		// "yesterday" alone keeps the current time of day
		return TimeResolution{Time: day, Kind: KindRelative}, true
	}

	return TimeResolution{}, false
}

func agoDuration(n, unit string) (time.Duration, bool) {
	count, err := strconv.Atoi(n)
	if err != nil {
		var ok bool
		if count, ok = numberWords[n]; !ok {
			return 0, false
		}
	}

	switch {
	case strings.HasPrefix(unit, "min"):
		return time.Duration(count) * time.Minute, true
	case strings.HasPrefix(unit, "h"):
		return time.Duration(count) * time.Hour, true
	case strings.HasPrefix(unit, "day"):
		return time.Duration(count) * 24 * time.Hour, true
	}
	return 0, false
}

// resolveDay returns the day the phrase points at (carrying now's clock),
// whether a day was named explicitly, and whether it was a calendar date or
// weekday rather than "today"/"yesterday".
func resolveDay(s string, now time.Time) (day time.Time, explicit, dateOnly bool) {
	if strings.Contains(s, "yesterday") {
		return now.AddDate(0, 0, -1), true, false
	}
	if strings.Contains(s, "today") {
		return now, true, false
	}
	if d, ok := parseDate(s, now); ok {
		return d, true, true
	}
	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		want := weekdays[m[2]]
		back := (int(now.Weekday()) - int(want) + 7) % 7
		if back == 0 && m[1] != "" {
			back = 7
		}
		return now.AddDate(0, 0, -back), true, true
	}
	return now, false, false
}

func parseDate(s string, now time.Time) (time.Time, bool) {
	loc := now.Location()
	clock := func(y int, mo time.Month, d int) time.Time {
		return time.Date(y, mo, d, now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), loc)
	}
	valid := func(y int, mo time.Month, d int) bool {
		t := time.Date(y, mo, d, 0, 0, 0, 0, loc)
		return t.Year() == y && t.Month() == mo && t.Day() == d
	}
	pastYear := func(mo time.Month, d int) int {
		y := now.Year()
		if time.Date(y, mo, d, 0, 0, 0, 0, loc).After(now) {
			y--
		}
		return y
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if valid(y, time.Month(mo), d) {
			return clock(y, time.Month(mo), d), true
		}
	}

	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		mo := months[m[1][:3]]
		d, _ := strconv.Atoi(m[2])
		y := pastYear(mo, d)
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
		}
		if valid(y, mo, d) {
			return clock(y, mo, d), true
		}
	}

	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo := months[m[2][:3]]
		y := pastYear(mo, d)
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
		}
		if valid(y, mo, d) {
			return clock(y, mo, d), true
		}
	}

	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		// month/day/year, as US parents write it
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
		if valid(y, time.Month(mo), d) {
			return clock(y, time.Month(mo), d), true
		}
	}

	return time.Time{}, false
}

func detectPeriod(s string) period {
	switch {
	case strings.Contains(s, "last night"), strings.Contains(s, "overnight"):
		return periodLastNight
	case strings.Contains(s, "tonight"):
		return periodTonight
	case strings.Contains(s, "morning"):
		return periodMorning
	case strings.Contains(s, "afternoon"):
		return periodAfternoon
	case strings.Contains(s, "evening"):
		return periodEvening
	}
	return periodNone
}

func periodDefault(p period) (int, bool) {
	switch p {
	case periodMorning:
		return 8, true
	case periodAfternoon:
		return 14, true
	case periodEvening:
		return 18, true
	case periodTonight:
		return 20, true
	}
	return 0, false
}

// findClock returns the first clock time in s. meridiem is "am", "pm" or "".
func findClock(s string) (hour, minute int, meridiem string, ok bool) {
	if noonRe.MatchString(s) {
		return 12, 0, "pm", true
	}
	if midnightRe.MatchString(s) {
		return 0, 0, "am", true
	}

	for _, re := range []*regexp.Regexp{meridiemClockRe, atClockRe, colonClockRe} {
		for _, idx := range re.FindAllStringSubmatchIndex(s, -1) {
			group := func(i int) string {
				if 2*i+1 >= len(idx) || idx[2*i] < 0 {
					return ""
				}
				return s[idx[2*i]:idx[2*i+1]]
			}

			mer := strings.ReplaceAll(group(3), ".", "")
			end := idx[3]
			if idx[5] > end {
				end = idx[5]
			}
			if mer == "" && unitAfterRe.MatchString(s[end:]) {
				continue
			}

			h, _ := strconv.Atoi(group(1))
			mins := 0
			if g := group(2); g != "" {
				mins, _ = strconv.Atoi(g)
			}
			if h > 23 || mins > 59 {
				continue
			}
			return h, mins, mer, true
		}
	}
	return 0, 0, "", false
}

// applyMeridiem turns a 12-hour clock reading into a 24-hour one.
func applyMeridiem(hour int, meridiem string, p period, explicitDay bool, now time.Time) int {
	switch meridiem {
	case "am":
		if hour == 12 {
			return 0
		}
		return hour
	case "pm":
		if hour < 12 {
			return hour + 12
		}
		return hour
	}

	if hour == 0 || hour > 12 {
		return hour
	}

	switch p {
	case periodMorning:
		if hour == 12 {
			return 0
		}
		return hour
	case periodAfternoon, periodEvening, periodTonight:
		if hour < 12 {
			return hour + 12
		}
		return hour
	}

	if explicitDay {
		// "yesterday at 3" means the afternoon; "yesterday at 9" the morning
		if hour < 7 {
			return hour + 12
		}
		return hour
	}

	// ambiguous: pick the most recent of the two readings that is not
	// later than now
	am, pm := hour%12, hour%12+12
	nowMinutes := now.Hour()*60 + now.Minute()
	if pm*60 <= nowMinutes {
		return pm
	}
	return am
}

// resolveLastNight places "last night" phrases on the night before now.
func resolveLastNight(now time.Time, hour, minute int, meridiem string, hasClock bool) TimeResolution {
	loc := now.Location()
	yesterday := now.AddDate(0, 0, -1)

	if !hasClock {
		t := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 21, 0, 0, 0, loc)
		return TimeResolution{Time: t, Kind: KindRelative, HasClock: true}
	}

	switch {
	case meridiem == "am" && hour == 12:
		hour = 0
	case meridiem == "pm" && hour < 12:
		hour += 12
	case meridiem == "" && hour >= 6 && hour < 12:
		// "last night at 9" is 21:00
		hour += 12
	}

	day := yesterday
	if hour < 12 {
		// small hours belong to today when today has already reached them
		day = now
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if candidate.After(now) {
			day = yesterday
		}
	}

	t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	return TimeResolution{Time: t, Kind: KindRelative, HasClock: true}
}

var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseAbsoluteTime parses a model-supplied timestamp. Values without a zone
// are read in loc.
func ParseAbsoluteTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
