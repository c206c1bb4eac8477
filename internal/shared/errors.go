package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Identity errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrScopeChanged     = fmt.Errorf("identity scope changed")

	// Remote store errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrListNotFound       = fmt.Errorf("list not found")
	ErrSongNotFound       = fmt.Errorf("song not found")
	ErrCardNotFound       = fmt.Errorf("card not found")

	// Engine errors
	ErrDraftNotFound = fmt.Errorf("no such draft")
	ErrInvalidOrder  = fmt.Errorf("invalid item order")
	ErrDuplicateItem = fmt.Errorf("item already in list")
	ErrPromoting     = fmt.Errorf("draft is already being saved")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
