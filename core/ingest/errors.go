package ingest

import (
	"errors"

	"clipfm/core/resolver"
)

// Failure taxonomy for ingestion runs. Resolver failures are re-exported
// so callers match the whole taxonomy against one package.
var (
	ErrInvalidInput          = resolver.ErrInvalidInput
	ErrUnsupportedSource     = resolver.ErrUnsupportedSource
	ErrUnresolvableContentID = resolver.ErrUnresolvableContentID

	ErrQuotaExceeded          = errors.New("track limit reached, delete some tracks to add new ones")
	ErrDownloadProducedNoFile = errors.New("downloader did not produce an output file")
	ErrDurationExceeded       = errors.New("audio exceeds the maximum duration")
	ErrNotFound               = errors.New("track not found")
)
