// ABOUTME: Read-side queries over the password ledger
// ABOUTME: Numbered listing in insertion order and the most prolific contributor

// Package ledger answers questions about the password ledger. Writes go
// through store.Store; this package only reads.
package ledger

import (
	"github.com/FaCsaba/SmellyBot/internal/schema"
)

// Contributor is a user and how many ledger entries they authored.
type Contributor struct {
	UserID schema.UserID
	Count  int
}

// MostProlific returns the user with the most entries. Ties go to whichever
// user appears first in the ledger. ok is false for an empty ledger.
func MostProlific(entries []schema.PasswordEntry) (Contributor, bool) {
	counts := make(map[schema.UserID]int)
	var order []schema.UserID
	for _, e := range entries {
		if _, seen := counts[e.UserID]; !seen {
			order = append(order, e.UserID)
		}
		counts[e.UserID]++
	}

	var best Contributor
	for _, id := range order {
		if counts[id] > best.Count {
			best = Contributor{UserID: id, Count: counts[id]}
		}
	}
	return best, len(order) > 0
}

// Line is one numbered ledger entry for display.
type Line struct {
	Number int
	Entry  schema.PasswordEntry
}

// Numbered returns the entries with 1-based positions in insertion order.
func Numbered(entries []schema.PasswordEntry) []Line {
	lines := make([]Line, len(entries))
	for i, e := range entries {
		lines[i] = Line{Number: i + 1, Entry: e}
	}
	return lines
}
