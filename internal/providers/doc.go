// Package providers is grounded on the teacher's internal/attributes
// package: both pre-compile expr-lang programs against a small
// evaluation environment once at load time, then run them repeatedly
// against per-event data. Glob matching uses gobwas/glob, the library
// DataDog-datadog-agent's tagger package uses for the same kind of
// pattern-list matching.
package providers
