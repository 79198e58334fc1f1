// Package counter turns presence transitions into per-user counter updates.
//
// A transition says which channel a user just entered (or nil when they left
// voice entirely). Entering an increment channel adds one to the user's count;
// entering a decrement channel subtracts one unless that would go below zero,
// in which case the event is dropped. A channel found in both registries (only
// possible in files written before dual registration was rejected) counts as
// an increment channel.
//
// The machine keeps no memory between events. Everything it knows comes from
// the store, and the read-modify-write of each count runs inside
// store.Store.UpdateUser.
package counter
