package errors

import "net/http"

// HTTPStatus maps a code to the HTTP status the API surface renders.
// Unknown codes map to 500 so new codes fail loudly instead of leaking 200s.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeAlreadyExists,
		CodeBookshelfNameTaken,
		CodeBookshelfInvalidTransition,
		CodeBookshelfBasementReserved,
		CodeBookAlreadyInBasement,
		CodeBookNotInBasement,
		CodeBookSoftDeleted,
		CodeBookMoveTargetIsBasement,
		CodeBookRestoreTargetMissing,
		CodeBookLibraryMismatch,
		CodeBookCoverRequiresStable,
		CodeBlockNotSoftDeleted:
		return http.StatusConflict
	case CodeMediaQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeValidation,
		CodeLibraryNameEmpty,
		CodeLibraryNameTooLong,
		CodeBookshelfNameEmpty,
		CodeBookshelfNameTooLong,
		CodeBookshelfInvalidStatus,
		CodeBookTitleEmpty,
		CodeBookTitleTooLong,
		CodeBookInvalidStatus,
		CodeBookInvalidMaturity,
		CodeBookInvalidCoverIcon,
		CodeBlockContentInvalid,
		CodeBlockOrderInvalid,
		CodeChronicleInvalidEventType,
		CodeChronicleMissingBookID:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusFor resolves the status for any error, defaulting to 500.
func HTTPStatusFor(err error) int {
	if domainErr, ok := AsError(err); ok {
		return domainErr.Code.HTTPStatus()
	}
	return http.StatusInternalServerError
}
