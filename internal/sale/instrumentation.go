package sale

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "pos.sale"

// startCheckoutSpan cria um span para uma etapa do checkout
func startCheckoutSpan(ctx context.Context, step string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "checkout."+step)

	span.SetAttributes(attribute.String("checkout.step", step), attribute.String("component", "sale-orchestrator"))
	span.SetAttributes(attrs...)
	return ctx, span
}

func failSpan(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// saleMetrics agrupa os instrumentos do orquestrador
type saleMetrics struct {
	checkouts metric.Int64Counter
	amount    metric.Float64Histogram
	cancelled metric.Int64Counter
}

func newSaleMetrics(logger *zap.Logger) saleMetrics {
	meter := otel.Meter(instrumentationName)

	checkouts, err := meter.Int64Counter("pos.checkout.total",
		metric.WithDescription("Checkouts by outcome"))
	if err != nil {
		logger.Warn("❌ Failed to create checkout counter", zap.Error(err))
	}
	amount, err := meter.Float64Histogram("pos.sale.amount",
		metric.WithDescription("Committed sale totals"))
	if err != nil {
		logger.Warn("❌ Failed to create sale amount histogram", zap.Error(err))
	}
	cancelled, err := meter.Int64Counter("pos.sale.cancelled",
		metric.WithDescription("Cancelled sales"))
	if err != nil {
		logger.Warn("❌ Failed to create cancellation counter", zap.Error(err))
	}
	return saleMetrics{checkouts: checkouts, amount: amount, cancelled: cancelled}
}

func (m saleMetrics) recordCheckout(ctx context.Context, outcome string) {
	if m.checkouts != nil {
		m.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m saleMetrics) recordAmount(ctx context.Context, amount float64, method string) {
	if m.amount != nil {
		m.amount.Record(ctx, amount, metric.WithAttributes(attribute.String("payment_method", method)))
	}
}

func (m saleMetrics) recordCancellation(ctx context.Context) {
	if m.cancelled != nil {
		m.cancelled.Add(ctx, 1)
	}
}
