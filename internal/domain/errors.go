package domain

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrAvatarRequired            = errors.New("avatar required")
	ErrRunInProgress             = errors.New("generation run already in progress")
	ErrUnsupportedGenerationType = errors.New("unsupported generation type")
	ErrSubmission                = errors.New("engine submission failed")
	ErrGenerationTimeout         = errors.New("generation timed out")
	ErrResultRetrieval           = errors.New("result retrieval failed")
)
