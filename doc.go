// Package tabfetch turns resource-oriented web service APIs into columnar
// datasets. It reads a resource's blank schema synopsis, resolves it into a
// typed schema, pages through the resource's records, and writes them as
// Arrow IPC streams, Parquet files or ndjson.
//
// # Architecture
//
// A run flows through five layers:
//
// 1. transport fetches synopses and record pages over HTTP, handling
// authentication and transient retries.
//
// 2. schema resolves a synopsis into an ordered, typed schema: scalar kinds
// derived from the service's format hints, multilingual values and grouped
// associations as nested element schemas.
//
// 3. record parses each page, XML or JSON, into schema-checked raw trees
// that preserve every literal exactly as the service sent it.
//
// 4. columnar coerces trees into typed rows and hands them to one of two
// interchangeable runtimes: arrowcol (arrow-go) or parquetcol (parquet-go).
// One fetched page becomes one output batch.
//
// 5. engine drives the whole pipeline with a bounded prefetch window,
// strict page ordering, and clean cancellation at page boundaries.
//
// # Quick Start
//
//	client, _ := transport.New(transport.Config{
//		Endpoint: "https://shop.example/api",
//		Key:      os.Getenv("WS_KEY"),
//	})
//	synopsis, _ := client.FetchSynopsis(ctx, "products")
//	s, _ := schema.Resolve("products", synopsis)
//	desc, _ := query.NewBuilder(s).Build()
//
//	backend, _ := columnar.Lookup("arrow-go")
//	e, _ := engine.New(client, 100, 2)
//	summary, _ := e.Run(ctx, "products", s, desc, engine.Target{
//		Backend: backend,
//		Options: columnar.Options{Format: columnar.FormatArrowStream},
//		Out:     f,
//	})
//
// The tabfetch command in cmd/tabfetch wraps the same flow with a CLI.
package tabfetch
