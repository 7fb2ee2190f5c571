// Package metrics has no direct teacher ancestor (the teacher forwards
// straight to OTel spans); its series-map command/query shape is
// grounded on internal/procmeta.Manager's RWMutex-guarded map pattern,
// generalized from one map to typed instruments.
package metrics
