// Package portal scrapes the academic portal. It knows the login handshake,
// the dashboard and the attendance report, and nothing about how the
// results are stored.
package portal

import (
	"attendance-backend/internal/components/assert"
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/telemetry"
	"attendance-backend/pkg/htmlutil"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_authenticate      = "client.authenticate"
	report_session_fetch_profile    = "session.fetch-profile"
	report_session_fetch_attendance = "session.fetch-attendance"
)

// Client holds the portal configuration, every Authenticate call gets its
// own cookie jar and rate limiter.
type Client struct {
	opts    Options
	baseUrl *url.URL
	clock   chrono.API
	tel     telemetry.API
}

func NewClient(opts Options, clock chrono.API, tel telemetry.API) (*Client, error) {
	assert.NotNil(clock)
	assert.NotNil(tel)

	opts = opts.withDefaults()
	parsed, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	return &Client{
		opts:    opts,
		baseUrl: parsed,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("portal", tel),
	}, nil
}

type noFollowKey struct{}

// withoutRedirects makes the request return the 30x response itself instead
// of following it.
func withoutRedirects(ctx context.Context) context.Context {
	return context.WithValue(ctx, noFollowKey{}, true)
}

var noFollowPolicy = resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
	if _, ok := req.Context().Value(noFollowKey{}).(bool); ok {
		return http.ErrUseLastResponse
	}
	return nil
})

func (c *Client) newHttp() (*resty.Client, error) {
	httpClient := resty.New()
	httpClient.SetBaseURL(c.opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if c.opts.Bypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeader("user-agent", c.opts.UserAgent)
	httpClient.SetRedirectPolicy(
		noFollowPolicy,
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(c.baseUrl.Hostname()),
	)
	httpClient.SetTimeout(c.opts.Timeout)

	// the burst is the same as the rate so no request is ever dropped, only delayed
	burst := int(c.opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(c.opts.RequestsPerSecond), burst)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, c.tel)
	return httpClient, nil
}

// Session is an authenticated cookie jar for one identity.
type Session struct {
	Identity string

	http   *resty.Client
	client *Client
}

func parseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Authenticate performs the login handshake. The login page is fetched, its
// hidden fields are posted back along with the credentials and the response
// is classified:
//   - 30x is a success, the redirect is followed once so the portal can set
//     its session cookies.
//   - 200 is a rejection if it carries the rejection marker, otherwise a success.
//   - anything else is a rejection.
//
// Transport failures and server errors on the login page are ErrUnavailable.
func (c *Client) Authenticate(ctx context.Context, identity, secret string) (*Session, error) {
	httpClient, err := c.newHttp()
	if err != nil {
		return nil, err
	}

	res, err := httpClient.R().
		SetContext(ctx).
		Get(c.opts.LoginPath)
	if err != nil {
		c.tel.ReportWarning(report_client_authenticate, fmt.Errorf("login page request: %w", err))
		return nil, unavailable(err)
	}
	if res.StatusCode() >= 400 {
		err := fmt.Errorf("login page returned %s", res.Status())
		c.tel.ReportWarning(report_client_authenticate, err)
		return nil, unavailable(err)
	}
	doc, err := parseDocument(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("parse login page: %w", err))
		return nil, unavailable(err)
	}

	markup := c.opts.Markup
	form := doc.Find(markup.LoginForm).First()
	if form.Length() == 0 {
		form = doc.Selection
	}
	fields := htmlutil.HiddenInputs(form)
	fields[c.opts.IdentityField] = identity
	fields[c.opts.SecretField] = secret

	action := c.opts.LoginPath
	if value, ok := form.Attr("action"); ok && value != "" {
		action = c.resolve(res.RawResponse.Request.URL, value)
	}

	res, err = httpClient.R().
		SetContext(withoutRedirects(ctx)).
		SetFormData(fields).
		Post(action)
	if err != nil {
		c.tel.ReportWarning(report_client_authenticate, fmt.Errorf("login request: %w", err))
		return nil, unavailable(err)
	}

	switch status := res.StatusCode(); {
	case status >= 300 && status < 400:
		location, err := res.RawResponse.Location()
		if err != nil {
			c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("redirect without location: %w", err))
			return nil, rejected(err)
		}
		_, err = httpClient.R().
			SetContext(withoutRedirects(ctx)).
			Get(location.String())
		if err != nil {
			c.tel.ReportWarning(report_client_authenticate, fmt.Errorf("follow login redirect: %w", err))
			return nil, unavailable(err)
		}
	case status == http.StatusOK:
		if markup.RejectionMarker.Match(res.Body()) {
			c.tel.ReportDebug("login rejected by portal", identity)
			return nil, rejected(fmt.Errorf("portal reported invalid credentials"))
		}
	default:
		return nil, rejected(fmt.Errorf("login returned %s", res.Status()))
	}

	c.tel.ReportDebug("authenticated", identity)
	return &Session{
		Identity: identity,
		http:     httpClient,
		client:   c,
	}, nil
}

func (c *Client) resolve(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil {
		base = c.baseUrl
	}
	return base.ResolveReference(parsed).String()
}

// checkPage classifies the response of a page that needs a session.
func (s *Session) checkPage(id string, res *resty.Response) (*goquery.Document, error) {
	status := res.StatusCode()
	switch {
	case status >= 500:
		err := fmt.Errorf("%s returned %s", res.Request.URL, res.Status())
		s.client.tel.ReportWarning(id, err)
		return nil, unavailable(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, expired(fmt.Errorf("%s returned %s", res.Request.URL, res.Status()))
	case status >= 300:
		err := fmt.Errorf("%s returned %s", res.Request.URL, res.Status())
		s.client.tel.ReportBroken(id, err)
		return nil, err
	}

	doc, err := parseDocument(res.Body())
	if err != nil {
		s.client.tel.ReportBroken(id, fmt.Errorf("parse: %w", err))
		return nil, err
	}
	if doc.Find(s.client.opts.Markup.LoginSignature).Length() > 0 {
		return nil, expired(fmt.Errorf("%s served the login page", res.Request.URL))
	}
	return doc, nil
}
