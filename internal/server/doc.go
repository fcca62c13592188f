// Package server wraps a Fiber application behind a configuration façade.
// New builds the app from a validated config; Configure then runs the setup
// steps once, in a fixed order, registering named middleware that callers
// can later disable through RemoveMiddleware. Route handlers are added on
// App() after Configure returns.
package server
