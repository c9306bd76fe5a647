// Package http implements the HTTP handlers of the worker. Handlers stay
// thin: they parse the request, call a service and render the result or hand
// the error to the shared RFC 7807 error handler.
//
// Routes served by this package:
//
//	GET  /              HTML test page naming the loaded language
//	POST /, /check      check text (JSON, form or raw text body)
//	GET  /health        200 when loaded and accepting work, else 503
//	GET  /health/live   process liveness
//	GET  /health/ready  readiness for orchestrators
//	GET  /version       build information
package http
