// Package metrics exposes ingestion counters via expvar.
package metrics

import (
	"expvar"
	"net/http"
)

var (
	PagesFetched          = expvar.NewInt("fpds_pages_fetched")
	PagesFromCache        = expvar.NewInt("fpds_pages_from_cache")
	FetchRetries          = expvar.NewInt("fpds_fetch_retries")
	FetchFailures         = expvar.NewInt("fpds_fetch_failures")
	EntriesParsed         = expvar.NewInt("fpds_entries_parsed")
	EntriesSkipped        = expvar.NewInt("fpds_entries_skipped")
	EntriesDuplicate      = expvar.NewInt("fpds_entries_duplicate")
	ActionsSaved          = expvar.NewInt("fpds_actions_saved")
	DimensionsCreated     = expvar.NewInt("fpds_dimensions_created")
	BatchFailures         = expvar.NewInt("fpds_batch_failures")
	BackfillDaysCompleted = expvar.NewInt("fpds_backfill_days_completed")
	BackfillDaysFailed    = expvar.NewInt("fpds_backfill_days_failed")
)

// Serve exposes /debug/vars on addr. It blocks until the listener fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	return http.ListenAndServe(addr, mux)
}
