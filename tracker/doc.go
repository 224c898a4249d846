// Package tracker records per-channel sync outcomes and decides when the
// failure pattern warrants operator attention. Two independent signals
// raise an alert: a run of consecutive failures, or too many failures
// inside a rolling time window.
package tracker
