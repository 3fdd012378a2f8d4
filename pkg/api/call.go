package api

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
	"github.com/jowharshamshiri/GoZaparoo/pkg/protocol"
)

// call is the shared primitive behind every typed method. Errors are logged
// here, once, with the operation name and returned unchanged.
func (c *Client) call(ctx context.Context, operation, method string, params any, onSubmit func(*protocol.Call)) (models.CallResult, error) {
	ctx, span := c.tracer.Start(ctx, "zaparoo."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		),
	)
	defer span.End()

	result, err := c.await(ctx, method, params, onSubmit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error(operation+" API call failed:", "method", method, "error", err)
		return result, err
	}
	if result.IsCancelled() {
		span.SetAttributes(attribute.Bool("zaparoo.cancelled", true))
	}
	return result, nil
}

func (c *Client) await(ctx context.Context, method string, params any, onSubmit func(*protocol.Call)) (models.CallResult, error) {
	call, err := c.Submit(method, params)
	if err != nil {
		return models.CallResult{}, err
	}
	if onSubmit != nil {
		onSubmit(call)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("rpc.jsonrpc.request_id", call.ID))

	result, err := call.Wait(ctx)
	if err != nil {
		result = c.abandon(call, err)
	}
	if result.Status == models.StatusError {
		return result, result.Err
	}
	return result, nil
}

func invoke[T any](ctx context.Context, c *Client, operation, method string, params any) (Reply[T], error) {
	var reply Reply[T]
	result, err := c.call(ctx, operation, method, params, nil)
	if err != nil {
		return reply, err
	}
	if result.IsCancelled() {
		reply.Cancelled = true
		return reply, nil
	}
	if err := result.Decode(&reply.Value); err != nil {
		err = fmt.Errorf("failed to decode %s result: %w", method, err)
		c.logger.Error(operation+" API call failed:", "method", method, "error", err)
		return reply, err
	}
	return reply, nil
}

func invokeVoid(ctx context.Context, c *Client, operation, method string, params any, onSubmit func(*protocol.Call)) (Reply[struct{}], error) {
	var reply Reply[struct{}]
	result, err := c.call(ctx, operation, method, params, onSubmit)
	if err != nil {
		return reply, err
	}
	reply.Cancelled = result.IsCancelled()
	return reply, nil
}
