package otel

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
)

// GinMiddleware returns gin middleware that traces every HTTP request with
// the order API tracer provider.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithTracerProvider(GetTracerProvider(ServiceOrderAPI)),
		otelgin.WithPropagators(otel.GetTextMapPropagator()),
	)
}
