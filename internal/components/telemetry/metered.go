package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeteredAPI forwards every report to an inner API and mirrors counts and
// breakages into otel instruments on the global meter provider.
type MeteredAPI struct {
	inner    API
	broken   metric.Int64Counter
	warnings metric.Int64Counter
	counts   metric.Int64Gauge
}

func NewMeteredAPI(inner API) MeteredAPI {
	meter := otel.Meter("attendance-backend/telemetry")
	broken, _ := meter.Int64Counter("reports.broken")
	warnings, _ := meter.Int64Counter("reports.warning")
	counts, _ := meter.Int64Gauge("reports.count")
	return MeteredAPI{
		inner:    inner,
		broken:   broken,
		warnings: warnings,
		counts:   counts,
	}
}

func (m MeteredAPI) ReportBroken(id string, params ...any) {
	m.broken.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportBroken(id, params...)
}

func (m MeteredAPI) ReportWarning(id string, params ...any) {
	m.warnings.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportWarning(id, params...)
}

func (m MeteredAPI) ReportDebug(msg string, params ...any) {
	m.inner.ReportDebug(msg, params...)
}

func (m MeteredAPI) ReportCount(id string, count int64) {
	m.counts.Record(context.Background(), count, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportCount(id, count)
}
