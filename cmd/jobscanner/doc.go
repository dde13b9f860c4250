// Package main hosts the government job portal scanner.
//
// Architecture overview:
//   - Scan pipeline: internal/scan fans a keyword set out over the configured portals with a bounded
//     errgroup. Each (portal, keyword) task runs one adapter from internal/adapter: static pages are
//     fetched with Colly and scanned with goquery, keyword-driven portals template the keyword into
//     the URL, and dynamic portals drive a headless Chrome search through chromedp. Linked PDFs are
//     downloaded and searched by internal/document.
//   - Failure isolation: every task yields an Outcome. Network, parse and automation failures are
//     classified and logged; they never abort sibling tasks, they only contribute no records.
//   - One-shot mode: -keywords runs a single scan, prints a summary table and optionally writes the
//     CSV export (govt_jobs.csv layout) with -out.
//   - Service mode: -serve starts the chi HTTP API. Scans are queued in memory, executed by a worker
//     pool, kept in the in-memory scan store and optionally exported as CSV to a memory, local or
//     GCS sink.
//   - Configuration & plumbing: Viper loads config from file and JOBSCAN_* env vars; zap provides
//     structured logging; Prometheus metrics are served on /metrics.
//
// Quick checklist:
//   - One scan: go run ./cmd/jobscanner -config config.yaml -keywords "data,analytics,ai" -out results.csv
//   - Service: go run ./cmd/jobscanner -config config.yaml -serve
//   - Dynamic portals need JOBSCAN_HEADLESS_ENABLED=true and a local Chrome.
package main
