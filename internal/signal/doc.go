// Package signal defines the closed set of monitored session signals, their
// tri-state values, and the immutable Snapshot the arbiter evaluates.
//
// Unset is the zero value of every slot and means "no reading yet"; it is
// never interpreted as a violation. Sources own their slots exclusively and
// write them through handles issued by the arbiter.
package signal
