package telemetry

import (
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// form fields that are never copied into span attributes
var redactedFields = map[string]bool{
	"pw":       true,
	"pw0":      true,
	"password": true,
}

// longest response body kept on a span
const maxBodyAttribute = 4096

func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := otel.Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(onAfterResponse)
	client.OnError(onError)
}

func formAttributes(form url.Values) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for key, values := range form {
		value := fmt.Sprint(values)
		if redactedFields[key] {
			value = "<redacted>"
		}
		attrs = append(attrs, attribute.String(fmt.Sprintf("request/form: %s", key), value))
	}
	return attrs
}

func onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	body := res.String()
	if len(body) > maxBodyAttribute {
		body = body[:maxBodyAttribute]
	}

	span.SetAttributes(
		attribute.String("http.request.method", res.Request.Method),
		attribute.String("url.full", res.Request.URL),
		attribute.Int("http.response.status_code", res.StatusCode()),
		attribute.String("response/body", body),
	)
	span.SetAttributes(formAttributes(res.Request.FormData)...)
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}
	return nil
}

func onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL),
	)
	span.SetAttributes(formAttributes(req.FormData)...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
