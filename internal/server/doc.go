/*
Package server hosts the relay's HTTP server and its middleware chain.

# Middleware Chain Order

Server.New installs the middleware in this order:
 1. RequestIDMiddleware keeps a client-supplied UUID or generates one
 2. LoggingMiddleware logs each request with fields added via AddLogField/AddError
 3. CORSMiddleware answers preflight requests from the review UI
 4. TimeoutMiddleware sets a deadline, except for Config.StreamPaths and event-stream requests
 5. Recoverer turns handler panics into 500 responses
 6. OTel instrumentation (OpenTelemetry)

# Context Keys

  - RequestIDKey: string UUID for the request
  - logFieldsKey: extra attributes for the completion log line

# Example Usage

	srv := server.New(server.Config{Port: 3000}, logger)
	handler.RegisterRoutes(srv.Router)
	go srv.Start()
	...
	srv.Shutdown(ctx)
*/
package server
