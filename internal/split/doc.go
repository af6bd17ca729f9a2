// Package split implements the equal-split calculator of the dashboard.
//
// Every participant reports what they paid. The total is divided equally,
// and each participant's net position is paid minus share. Participants with
// a negative position owe money to those with a positive one; Settle pairs
// them up into transfers, each of which becomes one debt on the backend.
package split
