package http

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Worker owns one connection from framing to close. It is never reused.
type Worker struct {
	conn   *Conn
	router *Router
	logger *slog.Logger
	inst   *instruments
}

// Run frames a single request, answers it and closes the connection. A
// stream that does not frame into a request is closed without a response.
func (w *Worker) Run(ctx context.Context) {
	defer w.conn.Close()

	req, err := ReadRequest(ctx, w.conn)
	if err != nil {
		w.inst.dropped.Add(ctx, 1)
		if errors.Is(err, ErrEmptyRequest) {
			w.logger.Debug("connection closed unused", "remote", w.conn.RemoteAddr())
		} else {
			w.logger.Warn("dropping request", "remote", w.conn.RemoteAddr(), "error", err)
		}
		return
	}
	req.ID = uuid.NewString()

	ctx, span := tracer.Start(ctx, req.Method+" "+req.Resource.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Resource.Path),
			attribute.String("request.id", req.ID),
			attribute.Int("http.request.body.size", len(req.Body)),
		))
	defer span.End()
	req = req.WithContext(ctx)

	res := w.router.Respond(req)

	payload, err := res.Serialize(req.Method)
	if err != nil {
		w.logger.Error("producing response body", "request_id", req.ID, "path", req.Resource.Path, "error", err)
		span.RecordError(err)

		res = w.router.errorPage(req, StatusInternalServerError)
		payload, err = res.Serialize(req.Method)
		if err != nil {
			w.logger.Error("producing error page", "request_id", req.ID, "error", err)
			w.inst.dropped.Add(ctx, 1)
			return
		}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", res.Status))
	if res.Status >= StatusInternalServerError {
		span.SetStatus(codes.Error, StatusText(res.Status))
	}
	w.inst.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.Int("http.response.status_code", res.Status),
	))

	if err := w.conn.Send(payload); err != nil {
		w.logger.Debug("writing response", "request_id", req.ID, "remote", w.conn.RemoteAddr(), "error", err)
		return
	}

	w.logger.Info("request served",
		"request_id", req.ID,
		"remote", w.conn.RemoteAddr(),
		"method", req.Method,
		"path", req.Resource.Path,
		"status", res.Status,
	)
}
