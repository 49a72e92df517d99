package portal

import (
	"attendance-backend/internal/calc"
	"attendance-backend/pkg/htmlutil"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FetchAttendanceTable opens the attendance page, then posts the date range
// to the report endpoint and parses the returned fragment. Zero dates are
// replaced by DefaultFrom and today. A report without a table is an empty
// result, not an error.
func (s *Session) FetchAttendanceTable(ctx context.Context, from, to time.Time) ([]RawRow, error) {
	opts := s.client.opts
	now := s.client.clock.Now()
	if from.IsZero() {
		from = DefaultFrom(now.Location())
	}
	if to.IsZero() {
		to = now
	}

	res, err := s.http.R().
		SetContext(ctx).
		Get(opts.AttendancePagePath)
	if err != nil {
		s.client.tel.ReportWarning(report_session_fetch_attendance, fmt.Errorf("fetch page: %w", err))
		return nil, unavailable(err)
	}
	doc, err := s.checkPage(report_session_fetch_attendance, res)
	if err != nil {
		return nil, err
	}

	fields := htmlutil.HiddenInputs(doc.Selection)
	fields[opts.FromField] = FormatDate(from)
	fields[opts.ToField] = FormatDate(to)

	s.client.tel.ReportDebug("query attendance", s.Identity, fields[opts.FromField], fields[opts.ToField])

	res, err = s.http.R().
		SetContext(ctx).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetHeader("accept", "application/json, text/javascript, */*; q=0.01").
		SetFormData(fields).
		Post(opts.AttendanceQueryPath)
	if err != nil {
		s.client.tel.ReportWarning(report_session_fetch_attendance, fmt.Errorf("query report: %w", err))
		return nil, unavailable(err)
	}
	status := res.StatusCode()
	switch {
	case status >= 500:
		err := fmt.Errorf("report returned %s", res.Status())
		s.client.tel.ReportWarning(report_session_fetch_attendance, err)
		return nil, unavailable(err)
	case status == 401 || status == 403:
		return nil, expired(fmt.Errorf("report returned %s", res.Status()))
	case status >= 300:
		err := fmt.Errorf("report returned %s", res.Status())
		s.client.tel.ReportBroken(report_session_fetch_attendance, err)
		return nil, err
	}

	fragment := extractFragment(res.Body())
	rows, err := parseAttendance(fragment, opts.Markup)
	if errors.Is(err, ErrSessionExpired) {
		return nil, err
	}
	if err != nil {
		s.client.tel.ReportBroken(report_session_fetch_attendance, fmt.Errorf("parse report: %w", err))
		return nil, err
	}
	return rows, nil
}

// extractFragment returns the html inside a json report response. Responses
// that are not json are assumed to be the html itself.
func extractFragment(body []byte) string {
	var decoded any
	err := json.Unmarshal(body, &decoded)
	if err != nil {
		return string(body)
	}

	if object, ok := decoded.(map[string]any); ok {
		for _, key := range []string{"html", "data", "d", "result"} {
			if value, ok := object[key].(string); ok {
				return value
			}
		}
	}
	return findMarkup(decoded)
}

// findMarkup walks a decoded json value for the first string that looks
// like markup.
func findMarkup(value any) string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, "<") {
			return v
		}
	case []any:
		for _, item := range v {
			if found := findMarkup(item); found != "" {
				return found
			}
		}
	case map[string]any:
		for _, item := range v {
			if found := findMarkup(item); found != "" {
				return found
			}
		}
	}
	return ""
}

func parseAttendance(fragment string, markup Markup) ([]RawRow, error) {
	rows := []RawRow{}
	if !strings.Contains(fragment, "<") {
		return rows, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	// an expired session can answer the report itself with the login page
	if doc.Find(markup.LoginSignature).Length() > 0 {
		return nil, expired(fmt.Errorf("report served the login page"))
	}

	container := doc.Find(markup.ResultContainer)
	table := container.Find("table").First()
	if table.Length() == 0 {
		table = container.Filter("table").First()
	}
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	if table.Length() == 0 {
		return rows, nil
	}

	// the html parser inserts a tbody around bare rows, so rows inside a
	// thead are never visited. A row of only th cells is a header.
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() < 3 || cells.Filter("td").Length() == 0 {
			return
		}
		subject := htmlutil.Text(cells.Eq(0))
		if subject == "" {
			return
		}

		row := RawRow{Subject: subject}
		ratio := markup.RatioPattern.FindStringSubmatch(htmlutil.Text(cells.Eq(2)))
		if ratio != nil {
			present, presentErr := strconv.Atoi(ratio[1])
			total, totalErr := strconv.Atoi(ratio[2])
			if presentErr == nil && totalErr == nil {
				row.Present = present
				row.Total = total
			}
		}

		percent, ok := parsePercent(htmlutil.Text(cells.Eq(1)))
		if ok {
			row.Percent = percent
			row.PercentObserved = true
		} else {
			row.Percent = calc.Percent(row.Present, row.Total)
		}
		rows = append(rows, row)
	})
	return rows, nil
}

func parsePercent(text string) (float64, bool) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	if text == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || value < 0 || value > 100 {
		return 0, false
	}
	return math.Round(value*100) / 100, true
}
