// Package main hosts the perm-crawler entrypoint.
//
// Architecture overview:
//   - Source: internal/source builds the grid query for one posting day and page, sends the latest
//     harvested cookie through the Colly-based getter, and validates the JSON envelope.
//   - Pipeline: internal/ingest walks every page of a day, normalizes rows (internal/normalize) and
//     upserts employers and cases (internal/upsert). The first bad row aborts the day; a range crawl
//     logs the failure and moves on to the next day.
//   - Persistence & fanout: Postgres via pgxpool is the storage of record. Raw pages are optionally
//     archived to local disk or GCS, and crawl lifecycle events are optionally published to Pub/Sub.
//   - Reporting: internal/report derives the latest posting day summary and pushes it to OneSignal.
//   - Cookies: `harvest` drives Chrome through chromedp; `serve` also accepts cookie drops on POST /v1/cookies.
//
// Quick checklist:
//   - Configure env vars: PERM_DB_DSN, PERM_AUTH_API_KEY, PERM_NOTIFY_APP_ID / PERM_NOTIFY_API_KEY,
//     PERM_EVENTS_* and PERM_ARCHIVE_* when those side channels are wanted.
//   - Run locally: go run . migrate, then harvest, then latest or between 2024-01-01 2024-01-08.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/perm-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
