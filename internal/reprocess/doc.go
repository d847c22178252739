// Package reprocess re-runs analysis over stored transcripts.
//
// A Registry tracks which subjects are being reprocessed and whether a bulk
// sweep is running. Trigger handles one subject and quietly skips when that
// subject (or a bulk sweep) is already busy; Bulk sweeps many records and
// refuses with services.ErrBusy while another sweep runs. Every lock taken
// is released on all return paths.
package reprocess
