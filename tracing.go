// Copyright 2026 Clanwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clanwatch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// setupTracing configures the global tracer provider. Spans are exported
// over OTLP HTTP by default, configurable via the standard
// OTEL_EXPORTER_OTLP_* env vars, with optional stdout output for
// debugging.
func (s *Syncer) setupTracing() error {
	ctx := context.Background()
	var opts []sdktrace.TracerProviderOption
	if s.config.tracingStdout {
		stdoutExporter, err := stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(stdoutExporter))
	}
	otlpExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, sdktrace.WithBatcher(otlpExporter))
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("clanwatch"),
		),
	)
	if err != nil {
		return err
	}
	opts = append(opts, sdktrace.WithResource(res))
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	s.shutdownFuncs = append(s.shutdownFuncs, tp.Shutdown)
	return nil
}
