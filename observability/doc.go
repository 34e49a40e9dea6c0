// Package observability provides OpenTelemetry tracing and metrics
// integration for tilekit processes.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("tilekit"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanTileCompute)
//	defer span.End()
//
// Metrics:
//
//	cfg := observability.DefaultMeterConfig("tilekit")
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("tilekit"))
//	metrics.RecordOperation(ctx, "tilekit", "run", "ok", duration)
//
// Health Checks:
//
//	health := observability.NewServiceHealth("tilekit", "1.0.0")
//	health.AddComponent(checker.CheckHealth(ctx))
package observability
