// Package services implements the request pipeline between the transports
// and the engine guard.
//
// CheckService validates a check request with go-playground/validator,
// submits it to the guard and maps the engine result to the v1 wire shape.
// Failures come back unchanged so the transports can map them through the
// shared error handler:
//
//	*errors.RequestError     400 BAD_PAYLOAD
//	engine InvalidInput      400
//	engine Timeout           503 with Retry-After
//	engine Overloaded        503 with Retry-After
//	engine.ErrCanceled       503 REQUEST_CANCELLED
//	engine EngineFault       500
//
// Each request moves through received, validated, queued, in flight and
// completed or failed. Every step is logged at debug level and carries the
// request's trace id.
//
// HealthService answers healthy only while the resource is loaded and the
// guard still admits work.
package services
