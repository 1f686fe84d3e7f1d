package listings

import "errors"

var (
	ErrListingNotFound      = errors.New("Listing not found")
	ErrNotOwner             = errors.New("Unauthorized listing edit")
	ErrNotEditable          = errors.New("Listing is not editable")
	ErrInvalidTransition    = errors.New("Invalid listing state transition")
	ErrPriceFieldsLocked    = errors.New("Price, buy-now price, auction end and supply flags are locked because bids exist")
	ErrSupplyFlagConflict   = errors.New("Only one of fullset, only-box, only-papers, only-all-links may be set")
	ErrMissingRequiredField = errors.New("Missing required field")
	ErrInvalidCondition     = errors.New("Invalid listing condition")
	ErrUnknownBooster       = errors.New("Unknown booster code")
)
