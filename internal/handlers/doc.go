// Package handlers is grounded on the teacher's internal/eventprocessor
// package: one constructor per event kind, closing over the shared
// state it updates, returned as a plain function value rather than a
// struct with a dispatch method.
package handlers
