package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

var tracer = otel.Tracer("attendance-backend/telemetry")

type instrumentResty struct {
	tel       API
	idcounter *uint64
}

// InstrumentResty hooks a resty client so every request is reported as a
// debug line and recorded as a span on the global tracer provider.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	i := instrumentResty{tel: tel, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// startTime does not need chrono, only the difference between two
	// monotonic readings is used.
	startTime time.Time
	span      trace.Span
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)

	ctx, span := tracer.Start(
		req.Context(),
		req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
		),
	)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
		span:      span,
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	rc, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}

	rc.span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode()))
	if res.StatusCode() >= 500 {
		rc.span.SetStatus(codes.Error, res.Status())
	}
	rc.span.End()

	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	rc, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		i.tel.ReportDebug(report_resty_response, req.Method, req.URL, err)
		return
	}

	rc.span.RecordError(err)
	rc.span.SetStatus(codes.Error, "request failed")
	rc.span.End()

	// network failures against the portal are expected from time to time,
	// callers decide whether it is broken.
	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		req.Method,
		req.URL,
		time.Since(rc.startTime).String(),
		err,
	)
}
