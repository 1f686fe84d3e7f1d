// Package auctionclock computes auction end times. Functions are pure: the
// caller supplies every timestamp, the package never reads the wall clock.
package auctionclock

import "time"

// ExtensionWindow is the anti-sniping window: a bid landing within this span
// of the auction end postpones the end.
const ExtensionWindow = 3 * time.Minute

// CheckExtension returns the auction end after applying the anti-sniping rule
// to a bid placed at bidAt. A bid within the final window moves the end to
// bidAt + window; extensions compound without a cap. The result is never
// earlier than the current end.
func CheckExtension(auctionEnd, bidAt time.Time) time.Time {
	if bidAt.Before(auctionEnd.Add(-ExtensionWindow)) {
		return auctionEnd
	}
	extended := bidAt.Add(ExtensionWindow)
	if extended.Before(auctionEnd) {
		return auctionEnd
	}
	return extended
}

// HasExpired reports whether the auction is over at now.
func HasExpired(auctionEnd, now time.Time) bool {
	return !now.Before(auctionEnd)
}
