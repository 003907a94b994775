package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording tracer provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("calendar_read_event").
		WithService(ServiceCalendar).
		WithOperation(OperationGet).
		WithAccount("work").
		WithResource("event", "evt-1").
		WithReadOnly(true).
		Build()

	got := make(map[string]any)
	for _, attr := range attrs {
		got[string(attr.Key)] = attr.Value.AsInterface()
	}

	want := map[string]any{
		SpanAttrTool:         "calendar_read_event",
		SpanAttrService:      "calendar",
		SpanAttrOperation:    "get",
		SpanAttrAccount:      "work",
		SpanAttrResourceType: "event",
		SpanAttrResourceID:   "evt-1",
		SpanAttrReadOnly:     true,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("calendar_list_calendars").
		WithAccount("").
		WithResource("", "").
		Build()

	if len(attrs) != 1 {
		t.Errorf("expected only the tool attribute, got %d", len(attrs))
	}
}

func TestSpanNames(t *testing.T) {
	sr := recordSpans(t)
	ctx := context.Background()

	_, span := StartResolveSpan(ctx, "cycle-1")
	span.End()
	_, span = StartGatherSpan(ctx, "search_events")
	span.End()
	_, span = StartGoogleAPISpan(ctx, ServiceCalendar, OperationList)
	span.End()
	_, span = StartToolSpan(ctx, "calendar_resolve_request")
	span.End()

	ended := sr.Ended()
	want := []string{"agent.resolve", "agent.gather.search_events", "google.calendar.list", "tool.calendar_resolve_request"}
	if len(ended) != len(want) {
		t.Fatalf("got %d spans, want %d", len(ended), len(want))
	}
	for i, name := range want {
		if ended[i].Name() != name {
			t.Errorf("span %d = %q, want %q", i, ended[i].Name(), name)
		}
	}

	var cycle string
	for _, kv := range ended[0].Attributes() {
		if string(kv.Key) == SpanAttrCycle {
			cycle = kv.Value.AsString()
		}
	}
	if cycle != "cycle-1" {
		t.Errorf("resolve span cycle attribute = %q", cycle)
	}
}

func TestSpanStatus(t *testing.T) {
	sr := recordSpans(t)
	ctx := context.Background()

	_, failed := StartSpan(ctx, "failed")
	SetSpanError(failed, errors.New("upstream unavailable"))
	failed.End()

	_, ok := StartSpan(ctx, "ok")
	SetSpanError(ok, nil)
	SetSpanSuccess(ok)
	AddSpanEvent(ok, "facts_recorded")
	ok.End()

	ended := sr.Ended()
	if ended[0].Status().Code != codes.Error {
		t.Errorf("failed span status = %v", ended[0].Status().Code)
	}
	if ended[1].Status().Code != codes.Ok {
		t.Errorf("ok span status = %v", ended[1].Status().Code)
	}
	if len(ended[1].Events()) != 1 {
		t.Errorf("expected one span event, got %d", len(ended[1].Events()))
	}
}

func TestSpanContext(t *testing.T) {
	if GetTraceID(context.Background()) != "" || GetSpanID(context.Background()) != "" || SpanContextString(context.Background()) != "" {
		t.Error("expected empty identifiers without a span")
	}

	recordSpans(t)
	ctx, span := StartSpan(context.Background(), "with-span")
	defer span.End()

	if len(GetTraceID(ctx)) != 32 {
		t.Errorf("trace ID = %q", GetTraceID(ctx))
	}
	if len(GetSpanID(ctx)) != 16 {
		t.Errorf("span ID = %q", GetSpanID(ctx))
	}
	if SpanContextString(ctx) == "" {
		t.Error("expected a span context string")
	}
}
