package core

import "errors"

// ErrEmptyQuery is returned by runners when the query is empty or blank.
// Runners validate this before any pipeline work starts.
var ErrEmptyQuery = errors.New("query must be a non-empty string")
