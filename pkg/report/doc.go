// Package report accumulates the step log of a browser test run and renders
// it into a self-contained run directory:
//
//	reports/run_20240102_150405/
//	  report.md
//	  report.json
//	  screenshots/<label>_20240102_150407.png
//
// A Reporter is append-only while the run is in progress. Complete finalizes
// it exactly once; afterwards the report is immutable and further calls are
// no-ops.
package report
