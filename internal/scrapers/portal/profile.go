package portal

import (
	"attendance-backend/pkg/htmlutil"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FetchProfile reads the dashboard for the display name and the upcoming
// items. ErrSessionExpired is returned if the dashboard is the login page.
func (s *Session) FetchProfile(ctx context.Context) (Profile, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get(s.client.opts.DashboardPath)
	if err != nil {
		s.client.tel.ReportWarning(report_session_fetch_profile, fmt.Errorf("fetch: %w", err))
		return Profile{}, unavailable(err)
	}
	doc, err := s.checkPage(report_session_fetch_profile, res)
	if err != nil {
		return Profile{}, err
	}

	now := s.client.clock.Now()
	return parseProfile(doc, s.client.opts.Markup, s.Identity, now), nil
}

func parseProfile(doc *goquery.Document, markup Markup, identity string, now time.Time) Profile {
	displayName := htmlutil.Text(doc.Find(markup.Greeting).First())
	displayName = markup.GreetingPrefix.ReplaceAllString(displayName, "")
	displayName = strings.TrimRight(displayName, "!.,: ")
	if displayName == "" {
		displayName = identity
	}

	upcoming := []UpcomingItem{}
	doc.Find(markup.UpcomingItem).Each(func(_ int, item *goquery.Selection) {
		parsed, ok := parseUpcomingItem(item, markup, now)
		if ok {
			upcoming = append(upcoming, parsed)
		}
	})

	return Profile{
		DisplayName: displayName,
		Upcoming:    upcoming,
	}
}

func parseUpcomingItem(item *goquery.Selection, markup Markup, now time.Time) (UpcomingItem, bool) {
	title := htmlutil.Text(item.Find(markup.UpcomingTitle).First())
	subtitle := htmlutil.Text(item.Find(markup.UpcomingSubtitle).First())

	location := htmlutil.Text(item.Find(markup.UpcomingLocation).First())
	timeText := htmlutil.Text(item.Find(markup.UpcomingTime).First())
	if location == "" && timeText == "" {
		details := item.Find(markup.UpcomingDetail)
		if n := details.Length(); n >= 2 {
			location = htmlutil.Text(details.Eq(n - 2))
			timeText = htmlutil.Text(details.Eq(n - 1))
		}
	}

	name := title
	if name == "" {
		name = subtitle
	}
	if name == "" {
		name = htmlutil.Text(item)
	}
	if name == "" {
		return UpcomingItem{}, false
	}

	metadata := htmlutil.DataAttributes(item)
	externalId := metadata["id"]
	delete(metadata, "id")
	setIfPresent := func(key, value string) {
		if value != "" && value != name {
			metadata[key] = value
		}
	}
	setIfPresent("subtitle", subtitle)
	setIfPresent("location", location)
	setIfPresent("time", timeText)

	start, end := parseTimeRange(timeText, now)
	return UpcomingItem{
		ExternalID: externalId,
		Name:       name,
		Start:      start,
		End:        end,
		Metadata:   metadata,
	}, true
}

var (
	clockPattern = regexp.MustCompile(`(?i)(\d{1,2})[:.](\d{2})\s*([ap]\.?m\.?)?`)
	datePattern  = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})`)
)

// parseTimeRange reads "10:00 AM - 11:30 AM" style text, with an optional
// DD-MM-YYYY date that defaults to the day of now. Missing times are zero.
func parseTimeRange(text string, now time.Time) (start, end time.Time) {
	day := now
	if match := datePattern.FindString(text); match != "" {
		parsed, err := ParseDate(match, now.Location())
		if err == nil {
			day = parsed
		}
		text = strings.Replace(text, match, "", 1)
	}

	clocks := clockPattern.FindAllStringSubmatch(text, 2)
	if len(clocks) > 0 {
		start = clockOn(day, clocks[0])
	}
	if len(clocks) > 1 {
		end = clockOn(day, clocks[1])
		// a range written without meridiem on the start ("10:00 - 11:30 AM")
		if clocks[0][3] == "" && clocks[1][3] != "" && !end.IsZero() {
			afternoon := start.Add(12 * time.Hour)
			if start.Hour() < 12 && afternoon.Before(end) {
				start = afternoon
			}
		}
	}
	return start, end
}

func clockOn(day time.Time, match []string) time.Time {
	hour, err := strconv.Atoi(match[1])
	if err != nil {
		return time.Time{}
	}
	minute, err := strconv.Atoi(match[2])
	if err != nil {
		return time.Time{}
	}

	meridiem := strings.ToLower(strings.ReplaceAll(match[3], ".", ""))
	switch {
	case meridiem == "pm" && hour < 12:
		hour += 12
	case meridiem == "am" && hour == 12:
		hour = 0
	}
	if hour > 23 || minute > 59 {
		return time.Time{}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
