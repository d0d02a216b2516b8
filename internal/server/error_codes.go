package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeMissingRequired   = 1009
	ErrCodeInvalidMode       = 1011
	ErrCodeInvalidTree       = 1012
	ErrCodeInvalidCollection = 1013
	ErrCodeEmptyDeleteList   = 1015

	// Domain state (2xxx)
	ErrCodeDocumentNotFound        = 2001
	ErrCodeBlobNotFound            = 2003
	ErrCodePreviewGenerationFailed = 2201

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal              = 4001
	ErrCodeStoreFailure          = 4002
	ErrCodeImportFailed          = 4004
	ErrCodeBlobStoreWriteFailed  = 4006
	ErrCodeDocumentUpdateFailed  = 4007
	ErrCodeReferenceUpdateFailed = 4008
	ErrCodeBlobDeleteFailed      = 4009
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 404:
		return ErrCodeDocumentNotFound
	case 422:
		return ErrCodePreviewGenerationFailed
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
