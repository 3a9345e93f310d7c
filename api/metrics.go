package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "boardly/api"

// moveRequestMetrics collects per-request timings for the move endpoint and
// emits them as a trace span plus one structured log line.
type moveRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration  time.Duration
	planDuration  time.Duration
	patchCount    int
	duplicate     bool
	errorStage    string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "tasks.move")
	return &moveRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *moveRequestMetrics) ObservePlan(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.planDuration = duration
}

func (m *moveRequestMetrics) SetPatchCount(count int) {
	if count < 0 {
		count = 0
	}
	m.patchCount = count
}

func (m *moveRequestMetrics) SetDuplicate(duplicate bool) {
	m.duplicate = duplicate
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int("move.patches", m.patchCount),
			attribute.Bool("move.duplicate", m.duplicate),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("move.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    "/api/tasks/:id/move",
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
		"patches":  m.patchCount,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.planDuration > 0 {
		fields["plan_ms"] = durationToMillis(m.planDuration)
	}
	if m.duplicate {
		fields["duplicate"] = true
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("move.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
