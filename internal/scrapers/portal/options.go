package portal

import (
	"regexp"
	"time"
)

// Markup holds every selector and pattern the client depends on. When the
// portal changes its markup this is the only thing that should need to change.
type Markup struct {
	// LoginForm is the form holding the password field on the login page.
	LoginForm string
	// LoginSignature matches something only the login page has, finding it
	// on an authenticated page means the session expired.
	LoginSignature string
	// RejectionMarker matches the error the login page shows for bad credentials.
	RejectionMarker *regexp.Regexp

	Greeting       string
	GreetingPrefix *regexp.Regexp

	UpcomingItem     string
	UpcomingTitle    string
	UpcomingSubtitle string
	UpcomingLocation string
	UpcomingTime     string
	// UpcomingDetail is used when UpcomingLocation and UpcomingTime are not
	// present, the last two matches are read as location and time.
	UpcomingDetail string

	ResultContainer string
	RatioPattern    *regexp.Regexp
}

func DefaultMarkup() Markup {
	return Markup{
		LoginForm:       "form:has(input[type=password])",
		LoginSignature:  "input[type=password]",
		RejectionMarker: regexp.MustCompile(`(?i)invalid\s+(user\s*name|password)`),

		Greeting:       ".welcome-name, .user-name, #greeting, .greeting",
		GreetingPrefix: regexp.MustCompile(`(?i)^(welcome(\s+back)?|hello|hi)\b[\s,!:]*`),

		UpcomingItem:     ".upcoming li, ul.upcoming-list > li",
		UpcomingTitle:    ".title, h4, h5, strong",
		UpcomingSubtitle: ".subtitle, small, p",
		UpcomingLocation: ".location",
		UpcomingTime:     ".time",
		UpcomingDetail:   "span",

		ResultContainer: "#attendance-report, .attendance-report, .table-responsive",
		RatioPattern:    regexp.MustCompile(`(\d+)\s*/\s*(\d+)`),
	}
}

type Options struct {
	BaseUrl string

	LoginPath           string
	DashboardPath       string
	AttendancePagePath  string
	AttendanceQueryPath string

	IdentityField string
	SecretField   string
	FromField     string
	ToField       string

	// Markup defaults to DefaultMarkup() when its LoginSignature is empty.
	Markup Markup

	// Bypass wraps the transport with cloudflare-bp-go.
	Bypass            bool
	RequestsPerSecond float64
	Timeout           time.Duration
	UserAgent         string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

func (o Options) withDefaults() Options {
	setDefault := func(value *string, fallback string) {
		if *value == "" {
			*value = fallback
		}
	}
	setDefault(&o.LoginPath, "/login")
	setDefault(&o.DashboardPath, "/dashboard")
	setDefault(&o.AttendancePagePath, "/attendance")
	setDefault(&o.AttendanceQueryPath, "/attendance/report")
	setDefault(&o.IdentityField, "username")
	setDefault(&o.SecretField, "password")
	setDefault(&o.FromField, "fromDate")
	setDefault(&o.ToField, "toDate")
	setDefault(&o.UserAgent, defaultUserAgent)

	if o.Markup.LoginSignature == "" {
		o.Markup = DefaultMarkup()
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second * 30
	}
	return o
}

// DateLayout is the portal's DD-MM-YYYY date format.
const DateLayout = "02-01-2006"

// DefaultFrom is the lower bound of the attendance report when none is given.
func DefaultFrom(loc *time.Location) time.Time {
	return time.Date(2000, time.January, 1, 0, 0, 0, 0, loc)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, loc)
}
