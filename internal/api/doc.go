// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts external clients to the internal
// application services, translating HTTP concerns to business operations
// and mapping service errors to safe responses.
package api
