// Package browser drives a single Playwright page on behalf of a test
// session.
//
// An Executor turns high-level actions (navigate, click, fill, hover,
// verify, screenshot) into primitive page operations, records every
// outcome as a step in a report.Reporter, and captures a screenshot for
// each failure. Mutating actions return errors so the orchestration layer
// can route failures for diagnosis; verifications return booleans.
//
// Selector-based actions run a fixed ladder of selector strategies derived
// from the target (literal, text, aria-label, title, test id), stopping at
// the first that works. Click additionally falls back to one forced click.
//
// The Page interface isolates the executor from Playwright so it can be
// exercised with fakes; Launch returns a Session backed by a real Chromium.
package browser
