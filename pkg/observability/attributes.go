package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// App Ops semantic convention attributes.
var (
	AttrOp      = attribute.Key("appops.op")
	AttrCall    = attribute.Key("appops.call")
	AttrMode    = attribute.Key("appops.mode")
	AttrScope   = attribute.Key("appops.scope")
	AttrUID     = attribute.Key("appops.uid")
	AttrPackage = attribute.Key("appops.package")

	AttrHTTPRoute  = attribute.Key("http.route")
	AttrHTTPMethod = attribute.Key("http.method")
)

// DecisionAttributes describes one check/note/start evaluation.
func DecisionAttributes(call, op, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCall.String(call),
		AttrOp.String(op),
		AttrMode.String(mode),
	}
}

// SubjectAttributes describes the (op, uid, package) a span is about.
func SubjectAttributes(op string, uid int, pkg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOp.String(op),
		AttrUID.Int(uid),
		AttrPackage.String(pkg),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}

func attributeClass(class string) attribute.KeyValue {
	return attribute.String("appops.watch.class", class)
}
