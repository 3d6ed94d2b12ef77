// Package urbanobservatory is a client and collector for the Newcastle Urban
// Observatory sensor API.
//
// # Architecture
//
// The module is structured into several packages:
//   - api: REST client for entities, feeds, summaries and timeseries
//   - models: Shared data structures
//   - config: YAML, .env and environment configuration
//   - smoke: Checks that the live service answers every client operation
//   - scheduler: Cron-driven polling with deduplication and a circuit breaker
//   - sink: Stdout and InfluxDB destinations for polled readings
//   - database: TimescaleDB storage for polled readings
//   - store: Bounded in-memory history served by the status server
//   - server: Health, metrics and buffered readings over HTTP
//
// Key Features
//
//   - Historic Timeseries:
//     GetTimeseries fetches the readings of one timeseries between two
//     instants with a single GET request. Results keep the service order and
//     never contain readings outside the requested window.
//
//   - Error Taxonomy:
//     Every client error matches exactly one of api.ErrInvalidQuery,
//     api.ErrNetwork, api.ErrRemote or api.ErrParse. The client never retries.
//
//   - Polling:
//     The poller asks for a sliding window on every tick and forwards only
//     readings it has not emitted before.
//
// Example Usage
//
//	client, err := api.NewClient(api.Config{Timeout: 10 * time.Second}, logger)
//	if err != nil {
//	    return err
//	}
//	res, err := client.GetTimeseries(ctx, "bd0cc46d-ba2e-4924-a66e-b032d7ca33a5", start, end)
//	if errors.Is(err, api.ErrRemote) {
//	    // the service rejected the request
//	}
//
// For more information about specific packages, see their respective
// documentation.
package urbanobservatory
