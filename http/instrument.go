package http

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/freekieb7/loam/http"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

type instruments struct {
	activeWorkers metric.Int64UpDownCounter
	requests      metric.Int64Counter
	dropped       metric.Int64Counter
}

func newInstruments() instruments {
	var inst instruments
	var err error

	inst.activeWorkers, err = meter.Int64UpDownCounter("http.server.active_workers",
		metric.WithDescription("Workers currently owning a connection"),
		metric.WithUnit("{worker}"))
	if err != nil {
		otel.Handle(err)
	}

	inst.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Requests answered, by method and status"),
		metric.WithUnit("{request}"))
	if err != nil {
		otel.Handle(err)
	}

	inst.dropped, err = meter.Int64Counter("http.server.dropped",
		metric.WithDescription("Connections closed without a response"),
		metric.WithUnit("{connection}"))
	if err != nil {
		otel.Handle(err)
	}

	return inst
}
