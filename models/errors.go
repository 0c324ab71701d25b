package models

import "errors"

var (
	// ErrWorkspaceMissing is returned when the input workspace of a run does not exist.
	ErrWorkspaceMissing = errors.New("input workspace missing")

	// ErrParseFailure means the extraction step failed as a whole.
	ErrParseFailure = errors.New("document extraction failed")

	// ErrStoreFailure covers connection-level failures talking to the vector store.
	ErrStoreFailure = errors.New("vector store unavailable")

	ErrCollectionNotFound = errors.New("collection not found")

	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrTenantNotFound is returned for writes to an unprovisioned tenant when
	// automatic tenant creation is disabled.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrUnsupportedProperty is returned for filters on properties that are not indexed.
	ErrUnsupportedProperty = errors.New("unsupported filter property")

	ErrIngestionInProgress = errors.New("ingestion already running for tenant")

	ErrUnknownIngestion = errors.New("unknown ingestion handle")

	// ErrEmbeddingFailure means the embedding model could not vectorise a
	// batch. It fails the whole write rather than the batch's objects.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrNothingIndexed is returned when a non-empty batch was written and
	// the store accepted none of it.
	ErrNothingIndexed = errors.New("no chunks were indexed")

	// ErrEmptyInput is returned for blank queries and empty summary batches.
	ErrEmptyInput = errors.New("empty input")
)
