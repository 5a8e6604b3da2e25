// Package errors provides structured error handling for the content engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Library errors
	CodeLibraryNameEmpty   Code = "LIBRARY_NAME_EMPTY"
	CodeLibraryNameTooLong Code = "LIBRARY_NAME_TOO_LONG"

	// Bookshelf errors
	CodeBookshelfNameEmpty         Code = "BOOKSHELF_NAME_EMPTY"
	CodeBookshelfNameTooLong       Code = "BOOKSHELF_NAME_TOO_LONG"
	CodeBookshelfNameTaken         Code = "BOOKSHELF_NAME_TAKEN"
	CodeBookshelfBasementReserved  Code = "BOOKSHELF_BASEMENT_RESERVED"
	CodeBookshelfInvalidStatus     Code = "BOOKSHELF_INVALID_STATUS"
	CodeBookshelfInvalidTransition Code = "BOOKSHELF_INVALID_STATUS_TRANSITION"

	// Book errors
	CodeBookTitleEmpty           Code = "BOOK_TITLE_EMPTY"
	CodeBookTitleTooLong         Code = "BOOK_TITLE_TOO_LONG"
	CodeBookInvalidStatus        Code = "BOOK_INVALID_STATUS"
	CodeBookInvalidMaturity      Code = "BOOK_INVALID_MATURITY"
	CodeBookInvalidCoverIcon     Code = "BOOK_INVALID_COVER_ICON"
	CodeBookCoverRequiresStable  Code = "BOOK_COVER_REQUIRES_STABLE_MATURITY"
	CodeBookLibraryMismatch      Code = "BOOK_LIBRARY_MISMATCH"
	CodeBookAlreadyInBasement    Code = "BOOK_ALREADY_IN_BASEMENT"
	CodeBookNotInBasement        Code = "BOOK_NOT_IN_BASEMENT"
	CodeBookSoftDeleted          Code = "BOOK_SOFT_DELETED"
	CodeBookMoveTargetIsBasement Code = "BOOK_MOVE_TARGET_IS_BASEMENT"
	CodeBookRestoreTargetMissing Code = "BOOK_RESTORE_TARGET_MISSING"

	// Block errors
	CodeBlockContentInvalid Code = "BLOCK_CONTENT_INVALID"
	CodeBlockOrderInvalid   Code = "BLOCK_ORDER_INVALID"
	CodeBlockNotSoftDeleted Code = "BLOCK_NOT_SOFT_DELETED"

	// Chronicle errors
	CodeChronicleInvalidEventType Code = "CHRONICLE_INVALID_EVENT_TYPE"
	CodeChronicleMissingBookID    Code = "CHRONICLE_MISSING_BOOK_ID"

	// Access errors
	CodeForbidden Code = "FORBIDDEN"

	// Validation errors
	CodeValidation Code = "VALIDATION"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// Media errors
	CodeMediaQuotaExceeded Code = "MEDIA_QUOTA_EXCEEDED"
)
