// Package httpclient is a declarative HTTP client built around tasks.
//
// A request is declared once, as an Endpoint or any Request implementation,
// and executed by a Task. Every attempt of a task resolves the request
// against a configuration snapshot, runs it through the request
// interceptors, sends it exactly once and hands the outcome to a chain of
// response interceptors that decide whether to continue, fail or retry.
//
// # Features
//
//   - Task lifecycle with legal-transition enforcement and ordered state
//     notifications (created, running, intercepting, suspended, cancelled,
//     completed)
//   - Single-flight execution: concurrent callers of Task.Response share
//     one attempt
//   - Pluggable status validation, authentication with token refresh and
//     retry policies with instant, fixed, exponential and backoff-based
//     delays
//   - Redirection and caching decisions routed to the owning task
//   - OpenTelemetry tracing and metrics per task and per wire attempt
//   - Circuit breaking, rate limiting, response caching (memory or Redis)
//     and fetch coalescing in the transport
//
// # Quick Start
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("my-service"),
//	)
//
//	resp, err := client.Do(ctx, httpclient.NewEndpoint("GetUser").
//	    Path("/users/{id}").
//	    PathParam("id", "42"))
//	if err != nil {
//	    return err
//	}
//	var user User
//	err = resp.Decode(&user)
//
// # Tasks
//
// Client.DataTask and Client.DownloadTask create tasks without starting
// them. Response starts the task and waits; Suspend, Resume and Cancel
// control it while it runs:
//
//	task := client.DownloadTask(httpclient.NewEndpoint("Export").Path("/export.csv"))
//	task.Resume()
//	// ...
//	log.Printf("%.0f%% done", task.Progress().Fraction()*100)
//	resp, err := task.Response(ctx)
//	defer os.Remove(resp.FilePath())
//
// # Configuration
//
// Tasks read their behaviour from a Configuration, an immutable bag of
// typed values. The client's options set the base bag, each task copies
// it and each attempt takes a snapshot:
//
//	task.Configure(func(cfg httpclient.Configuration) httpclient.Configuration {
//	    return httpclient.With(cfg, httpclient.TimeoutKey, time.Second)
//	})
//
// Transport settings come from the Config presets: DefaultConfig,
// HighThroughputConfig, LowLatencyConfig and ConservativeConfig. Both can be
// loaded from YAML with LoadConfig.
//
// # Interceptors
//
// The response chain runs in a fixed order: status validator, general
// interceptor, authenticator, retry policy. The authenticator and the
// retry policy only run when the attempt failed or answered 401. A retry
// from any stage ends the pass; otherwise a failure wins over continue.
//
//	client := httpclient.New(
//	    httpclient.WithAuthenticator(httpclient.NewBearerAuthenticator(load, refresh)),
//	    httpclient.WithRetryPolicy(httpclient.NewRetryPolicy(3, httpclient.ExponentialStrategy(100*time.Millisecond, 2, true))),
//	)
//
// The retry policy is the only bound on the number of attempts. A policy
// that always retries retries forever.
//
// # Errors
//
// Task errors are *Error values. Match the kind with errors.Is:
//
//	switch {
//	case errors.Is(err, httpclient.ErrUnauthorized):
//	case errors.Is(err, httpclient.ErrUnacceptableStatus):
//	case errors.Is(err, httpclient.ErrCancelled):
//	}
//
// # Observability
//
// Every task opens an "httpclient.task" span with one event per retry, and
// every wire attempt opens a client span with DNS, connect and TLS events.
// Metrics follow the OpenTelemetry HTTP client conventions plus task level
// instruments (duration, attempts, state transitions, cache lookups,
// breaker state). Providers default to the global ones:
//
//	client := httpclient.New(
//	    httpclient.WithTracerProvider(tp),
//	    httpclient.WithMeterProvider(mp),
//	)
package httpclient
