package portal

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseAttendanceNoTable(t *testing.T) {
	rows, err := parseAttendance(`<div id="attendance-report"><p>nothing here</p></div>`, DefaultMarkup())
	require.NoError(t, err)
	require.Equal(t, []RawRow{}, rows)

	rows, err = parseAttendance("", DefaultMarkup())
	require.NoError(t, err)
	require.Equal(t, []RawRow{}, rows)
}

func TestParseAttendanceBareRows(t *testing.T) {
	// no thead and no tbody, the header uses th cells
	fragment := `<table>
		<tr><th>Subject</th><th>%</th><th>Ratio</th></tr>
		<tr><td> Data  Structures </td><td>80</td><td>8/10</td></tr>
		<tr><td>Only two</td><td>cells</td></tr>
	</table>`

	rows, err := parseAttendance(fragment, DefaultMarkup())
	require.NoError(t, err)
	diff := cmp.Diff([]RawRow{
		{Subject: "Data Structures", Present: 8, Total: 10, Percent: 80, PercentObserved: true},
	}, rows)
	require.Empty(t, diff)
}

func TestParseAttendanceHeaderCellSubjects(t *testing.T) {
	fragment := `<table>
		<thead><tr><td>Subject</td><td>%</td><td>Ratio</td></tr></thead>
		<tbody>
			<tr><th>Maths</th><td>80%</td><td>8/10</td></tr>
			<tr><th>Total</th><th></th><th>8/10</th></tr>
		</tbody>
	</table>`

	rows, err := parseAttendance(fragment, DefaultMarkup())
	require.NoError(t, err)
	diff := cmp.Diff([]RawRow{
		{Subject: "Maths", Present: 8, Total: 10, Percent: 80, PercentObserved: true},
	}, rows)
	require.Empty(t, diff)
}

func TestParseAttendanceLoginPage(t *testing.T) {
	fragment := `<form action="/login"><input name="username"><input type="password" name="password"></form>`

	rows, err := parseAttendance(fragment, DefaultMarkup())
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Nil(t, rows)
}

func TestParseAttendancePrefersContainer(t *testing.T) {
	fragment := `
		<table class="legend"><tr><td>a</td><td>b</td><td>1/1</td></tr></table>
		<div class="table-responsive">
			<table><tr><td>Networks</td><td>101</td><td>5/ 6</td></tr></table>
		</div>`

	rows, err := parseAttendance(fragment, DefaultMarkup())
	require.NoError(t, err)
	diff := cmp.Diff([]RawRow{
		{Subject: "Networks", Present: 5, Total: 6, Percent: 83.33},
	}, rows)
	require.Empty(t, diff, "out of range percentages are derived")
}

func TestExtractFragment(t *testing.T) {
	testCases := []struct {
		body     string
		expected string
	}{
		{body: `{"html": "<table></table>"}`, expected: "<table></table>"},
		{body: `{"status": "ok", "payload": {"report": "<div>x</div>"}}`, expected: "<div>x</div>"},
		{body: `{"status": "ok"}`, expected: ""},
		{body: `"<p>quoted</p>"`, expected: "<p>quoted</p>"},
		{body: `<table><tr><td>raw</td></tr></table>`, expected: `<table><tr><td>raw</td></tr></table>`},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, extractFragment([]byte(test.body)), test.body)
	}
}

func TestParsePercent(t *testing.T) {
	testCases := []struct {
		text     string
		value    float64
		observed bool
	}{
		{text: "75.86 %", value: 75.86, observed: true},
		{text: "66.666", value: 66.67, observed: true},
		{text: " 100% ", value: 100, observed: true},
		{text: "NaN", observed: false},
		{text: "-5", observed: false},
		{text: "", observed: false},
		{text: "N/A", observed: false},
	}

	for _, test := range testCases {
		value, observed := parsePercent(test.text)
		require.Equal(t, test.observed, observed, test.text)
		require.Equal(t, test.value, value, test.text)
	}
}

func TestParseTimeRange(t *testing.T) {
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	day := func(d, h, m int) time.Time {
		return time.Date(2026, time.March, d, h, m, 0, 0, time.UTC)
	}

	testCases := []struct {
		text  string
		start time.Time
		end   time.Time
	}{
		{text: "10:00 AM - 11:30 AM", start: day(3, 10, 0), end: day(3, 11, 30)},
		{text: "05-03-2026 13:15-14:00", start: day(5, 13, 15), end: day(5, 14, 0)},
		{text: "1:00 - 2:30 PM", start: day(3, 13, 0), end: day(3, 14, 30)},
		{text: "12:00 a.m.", start: day(3, 0, 0)},
		{text: "TBA"},
		{text: ""},
	}

	for _, test := range testCases {
		start, end := parseTimeRange(test.text, now)
		require.Equal(t, test.start, start, test.text)
		require.Equal(t, test.end, end, test.text)
	}
}

func TestParseProfileFallbacks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><p>no greeting</p></body></html>`))
	require.NoError(t, err)

	profile := parseProfile(doc, DefaultMarkup(), "21BCE1001", time.Now())
	require.Equal(t, "21BCE1001", profile.DisplayName)
	require.NotNil(t, profile.Upcoming)
	require.Len(t, profile.Upcoming, 0)

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(`<div id="greeting">Hello Hilary Smith</div>`))
	require.NoError(t, err)
	require.Equal(t, "Hilary Smith", parseProfile(doc, DefaultMarkup(), "x", time.Now()).DisplayName)
}

func TestFormatDate(t *testing.T) {
	date := time.Date(2026, time.February, 7, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "07-02-2026", FormatDate(date))

	parsed, err := ParseDate("07-02-2026", time.UTC)
	require.NoError(t, err)
	require.Equal(t, date, parsed)

	_, err = ParseDate("2026-02-07", time.UTC)
	require.Error(t, err)
}
