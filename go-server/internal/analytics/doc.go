// Package analytics turns a slice of click events into the time-bucketed
// series and leaderboards served by the analytics endpoint.
//
// Hourly buckets are always computed on UTC-truncated timestamps and are the
// single source for coarser granularity: daily counts are obtained by moving
// each hour bucket into the display location and summing per local calendar
// date. Truncating to UTC days directly would misplace clicks that fall near
// a local midnight.
//
// Everything in this package is pure; storage access lives in the service
// layer.
package analytics
