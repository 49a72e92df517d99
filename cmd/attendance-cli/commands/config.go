package commands

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/configutil"
	"attendance-backend/internal/components/serviceutil"
	"attendance-backend/internal/components/telemetry"
	"attendance-backend/internal/db"
	"attendance-backend/internal/scheduler"
	"attendance-backend/internal/scrapers/portal"
	"attendance-backend/internal/store"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type PortalConfig struct {
	BaseUrl string `json:"base_url"`

	LoginPath           string `json:"login_path"`
	DashboardPath       string `json:"dashboard_path"`
	AttendancePagePath  string `json:"attendance_page_path"`
	AttendanceQueryPath string `json:"attendance_query_path"`

	IdentityField string `json:"identity_field"`
	SecretField   string `json:"secret_field"`
	FromField     string `json:"from_field"`
	ToField       string `json:"to_field"`

	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
}

func (c PortalConfig) Options() portal.Options {
	return portal.Options{
		BaseUrl:             c.BaseUrl,
		LoginPath:           c.LoginPath,
		DashboardPath:       c.DashboardPath,
		AttendancePagePath:  c.AttendancePagePath,
		AttendanceQueryPath: c.AttendanceQueryPath,
		IdentityField:       c.IdentityField,
		SecretField:         c.SecretField,
		FromField:           c.FromField,
		ToField:             c.ToField,
		Bypass:              c.CloudflareBypass,
		RequestsPerSecond:   c.RequestsPerSecond,
		Timeout:             time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

type Config struct {
	Database db.Config    `json:"database"`
	Portal   PortalConfig `json:"portal"`
	// Timezone is the IANA zone "today" is computed in, empty means UTC.
	Timezone string `json:"timezone"`
	// WaitSeconds bounds how long scrape waits for a cycle, 0 means 30.
	WaitSeconds int              `json:"wait_seconds"`
	Telemetry   telemetry.Config `json:"telemetry"`
}

func (c Config) Wait() time.Duration {
	if c.WaitSeconds <= 0 {
		return time.Second * 30
	}
	return time.Duration(c.WaitSeconds) * time.Second
}

// env is everything a command needs, built from the config.
type env struct {
	config    Config
	clock     chrono.StandardImpl
	tel       telemetry.API
	database  *sql.DB
	store     store.Store
	scheduler *scheduler.Scheduler

	otel telemetry.Telemetry
}

func (e env) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := e.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to shutdown telemetry", "err", err)
	}
	e.database.Close()
}

// loadConfig reads --config as given, or searches the working directory and
// its parents for the default name when the flag was not set.
func loadConfig() Config {
	read := configutil.ReadRecursively[Config]
	if rootCmd.PersistentFlags().Changed("config") {
		read = configutil.ReadConfig[Config]
	}
	config, err := read(*configPath)
	if err != nil {
		serviceutil.Fatal(fmt.Sprintf("failed to read config %s", *configPath), err)
	}
	return config
}

// openEnv opens the store and, when withPortal is set, the portal client
// and the scheduler.
func openEnv(ctx context.Context, withPortal bool) env {
	config := loadConfig()

	clock, err := chrono.NewStandardImpl(config.Timezone)
	if err != nil {
		serviceutil.Fatal("failed to load timezone", err)
	}

	otel, err := telemetry.Setup(ctx, "attendance-cli", config.Telemetry)
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	var tel telemetry.API = telemetry.SlogAPI{}
	if otel.MeterProvider != nil {
		tel = telemetry.NewMeteredAPI(tel)
		if config.Telemetry.PerfStats {
			telemetry.InstrumentPerfStats(ctx, tel)
		}
	}

	slog.Debug("opening database...")
	database, err := db.Open(config.Database)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	e := env{
		config:   config,
		clock:    clock,
		tel:      tel,
		database: database,
		store:    store.New(database, tel),
		otel:     otel,
	}
	if !withPortal {
		return e
	}

	client, err := portal.NewClient(config.Portal.Options(), clock, tel)
	if err != nil {
		serviceutil.Fatal("failed to create portal client", err)
	}
	orchestrator := acquisition.New(acquisition.FromClient(client), e.store, clock, tel)
	e.scheduler = scheduler.New(orchestrator, clock, tel)
	return e
}
