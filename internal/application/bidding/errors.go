package bidding

import "errors"

var (
	ErrListingNotFound   = errors.New("Listing not found")
	ErrListingNotActive  = errors.New("Listing is not active")
	ErrNotAuction        = errors.New("Listing is not an auction")
	ErrNotFixedPrice     = errors.New("Listing is not a fixed-price offer")
	ErrAuctionEnded      = errors.New("Auction has already ended")
	ErrBidTooLow         = errors.New("Bid is below the minimum acceptable amount")
	ErrSelfBid           = errors.New("Sellers cannot bid on their own listing")
	ErrQuantityExhausted = errors.New("No units remaining")
)
