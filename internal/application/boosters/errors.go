package boosters

import "errors"

var (
	ErrListingNotFound     = errors.New("Listing not found")
	ErrNotOwner            = errors.New("Unauthorized booster change")
	ErrUnknownBooster      = errors.New("Unknown booster code")
	ErrListingNotBoostable = errors.New("Boosters can only be changed on draft or active listings")
)
