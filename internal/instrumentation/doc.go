// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for noon.
//
// # Metrics
//
// Resolution:
//   - noon_resolutions_total{kind,status}: resolution cycles by emitted action kind
//   - noon_resolution_duration_seconds: wall time of a cycle
//   - noon_round_trips: gathering round trips per cycle
//   - noon_router_decisions_total{decision}: empty, out_of_scope or loop
//   - noon_gather_calls_total{tool,status}: information-gathering tool calls
//
// Calendar port and surfaces:
//   - google_api_operations_total / google_api_operation_duration_seconds
//   - http_requests_total / http_request_duration_seconds
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds
//
// A nil *Metrics records nothing, so components can be built without a
// provider in tests.
//
// # Tracing
//
// Spans are created for a resolution cycle (agent.resolve), each gathering
// call inside it (agent.gather.<tool>), every Google Calendar request
// (google.calendar.<operation>) and MCP tool invocations (tool.<name>).
//
// # Configuration
//
// DefaultConfig reads the environment:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: noon)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordRouterDecision(ctx, instrumentation.RouterDecisionLoop)
package instrumentation
