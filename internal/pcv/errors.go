package pcv

import "errors"

// Precondition and outcome errors surfaced by the orchestrator. Handlers map
// these to HTTP codes; everything else is a remote or transport failure.
var (
	ErrSiteAndNameRequired = errors.New("site_name and name are required")
	ErrSourceRequired      = errors.New("either file or manual is required to create a pre-change validation")
	ErrBothSources         = errors.New("file and manual are mutually exclusive")
	ErrFileNotFound        = errors.New("change file not found")
	ErrInvalidManual       = errors.New("manual change list is not a valid JSON list")
	ErrConflict            = errors.New("pre-change validation already exists with a different configuration file")
	ErrWaitTimeout         = errors.New("timed out waiting for pre-change validation to finish")
)
