// Package portaltest runs an in-process imitation of the academic portal
// for tests. It serves the same login handshake, dashboard and attendance
// report that the portal client expects.
package portaltest

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

//go:embed testdata/*.html
var testdata embed.FS

var pages = template.Must(template.ParseFS(testdata, "testdata/login.html", "testdata/dashboard.html", "testdata/attendance.html"))

// Fixture returns the raw contents of a file under testdata.
func Fixture(name string) string {
	content, err := testdata.ReadFile("testdata/" + name)
	if err != nil {
		panic(err)
	}
	return string(content)
}

const sessionCookie = "portal_session"

type Account struct {
	Identity    string
	Secret      string
	DisplayName string
}

type Server struct {
	*httptest.Server

	mutex        sync.Mutex
	accounts     map[string]Account
	sessions     map[string]string
	report       string
	loginStatus  int
	reportStatus int
	lastQuery    url.Values
	gate         chan struct{}

	loginAttempts atomic.Int64
}

// NewServer starts a portal that accepts the given accounts and answers the
// attendance report with report.html.
func NewServer(accounts ...Account) *Server {
	s := &Server{
		accounts: map[string]Account{},
		sessions: map[string]string{},
	}
	for _, account := range accounts {
		s.accounts[account.Identity] = account
	}
	s.SetReportFragment(Fixture("report.html"))

	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/home", s.handleHome)
	mux.HandleFunc("/dashboard", s.requireSession(s.handleDashboard))
	mux.HandleFunc("/attendance", s.requireSession(s.handleAttendancePage))
	mux.HandleFunc("/attendance/report", s.requireSession(s.handleReport))
	s.Server = httptest.NewServer(mux)
	return s
}

// SetReport sets the raw body of the report endpoint.
func (s *Server) SetReport(body string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.report = body
}

// SetReportFragment serves fragment wrapped in the json envelope the real
// portal uses.
func (s *Server) SetReportFragment(fragment string) {
	body, err := json.Marshal(map[string]any{
		"status": "ok",
		"html":   fragment,
	})
	if err != nil {
		panic(err)
	}
	s.SetReport(string(body))
}

// SetLoginStatus makes the login post answer with status instead of
// running the handshake, 0 restores the normal behavior.
func (s *Server) SetLoginStatus(status int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.loginStatus = status
}

// SetReportStatus makes the report endpoint answer with status, 0 restores
// the normal behavior.
func (s *Server) SetReportStatus(status int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reportStatus = status
}

// ExpireSessions forgets every session, the next authenticated page is
// answered with the login page.
func (s *Server) ExpireSessions() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions = map[string]string{}
}

// Block holds every login post until the returned function is called.
func (s *Server) Block() (release func()) {
	gate := make(chan struct{})
	s.mutex.Lock()
	s.gate = gate
	s.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mutex.Lock()
			s.gate = nil
			s.mutex.Unlock()
			close(gate)
		})
	}
}

func (s *Server) LoginAttempts() int64 {
	return s.loginAttempts.Load()
}

// LastQuery is the form of the last report query.
func (s *Server) LastQuery() url.Values {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastQuery
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("content-type", "text/html; charset=utf-8")
	err := pages.ExecuteTemplate(w, name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, message string) {
	s.render(w, "login.html", map[string]any{
		"Error": message,
		"Nonce": uuid.NewString(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		http.SetCookie(w, &http.Cookie{Name: "portal_pre", Value: "1", Path: "/"})
		s.renderLogin(w, "")
		return
	}

	s.loginAttempts.Add(1)

	s.mutex.Lock()
	gate := s.gate
	status := s.loginStatus
	s.mutex.Unlock()
	if gate != nil {
		<-gate
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := r.Cookie("portal_pre"); err != nil ||
		r.PostForm.Get("__VIEWSTATE") == "" ||
		r.PostForm.Get("__EVENTVALIDATION") == "" {
		s.renderLogin(w, "Your session has timed out, please try again.")
		return
	}

	identity := r.PostForm.Get("username")
	s.mutex.Lock()
	account, ok := s.accounts[identity]
	s.mutex.Unlock()
	if !ok || account.Secret != r.PostForm.Get("password") {
		s.renderLogin(w, "Invalid Username or Password")
		return
	}

	token := uuid.NewString()
	s.mutex.Lock()
	s.sessions[token] = identity
	s.mutex.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/"})
	http.Redirect(w, r, "/home", http.StatusFound)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "portal_home", Value: "1", Path: "/"})
	w.Write([]byte("<html><body>redirecting</body></html>"))
}

func (s *Server) requireSession(next func(w http.ResponseWriter, r *http.Request, account Account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			s.renderLogin(w, "")
			return
		}
		s.mutex.Lock()
		identity, ok := s.sessions[cookie.Value]
		account := s.accounts[identity]
		s.mutex.Unlock()
		if !ok {
			s.renderLogin(w, "")
			return
		}
		next(w, r, account)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request, account Account) {
	s.render(w, "dashboard.html", account)
}

func (s *Server) handleAttendancePage(w http.ResponseWriter, _ *http.Request, _ Account) {
	s.render(w, "attendance.html", map[string]any{"Nonce": uuid.NewString()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, _ Account) {
	if r.Method != http.MethodPost || r.Header.Get("x-requested-with") != "XMLHttpRequest" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	s.lastQuery = r.PostForm
	status := s.reportStatus
	report := s.report
	s.mutex.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.PostForm.Get("pageState") == "" {
		http.Error(w, "missing page state", http.StatusBadRequest)
		return
	}

	w.Header().Set("content-type", "application/json")
	w.Write([]byte(report))
}
