package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/wordloom/wordloom/internal/storage"
)

// MaxCoverSizeBytes caps cover uploads at 10 MiB.
const MaxCoverSizeBytes = 10 << 20

// Outcome classifies the result of a cover upload. Upload use cases report
// outcomes instead of raising; only infrastructure surprises surface as errors.
type Outcome int

const (
	// OutcomeSuccess means the cover was stored and bound.
	OutcomeSuccess Outcome = iota
	// OutcomeNotFound means the target library does not exist.
	OutcomeNotFound
	// OutcomeForbidden means the actor does not own the library.
	OutcomeForbidden
	// OutcomeRejectedEmpty means the upload carried no bytes.
	OutcomeRejectedEmpty
	// OutcomeRejectedMIME means the content type is not an accepted image kind.
	OutcomeRejectedMIME
	// OutcomeRejectedTooLarge means the upload exceeds MaxCoverSizeBytes.
	OutcomeRejectedTooLarge
	// OutcomeStorageSaveFailed means the file store rejected the bytes.
	OutcomeStorageSaveFailed
	// OutcomeMediaValidationFailed means the upload metadata is unusable
	// (missing filename, or one that escapes the media root).
	OutcomeMediaValidationFailed
	// OutcomeQuotaExceeded means the library's media byte budget is spent.
	OutcomeQuotaExceeded
	// OutcomeMediaOperationFailed means the media row could not be written.
	OutcomeMediaOperationFailed
	// OutcomeUpdateFailed means the library row could not be rebound.
	OutcomeUpdateFailed
)

// String returns the stable label for an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeRejectedEmpty:
		return "rejected_empty"
	case OutcomeRejectedMIME:
		return "rejected_mime"
	case OutcomeRejectedTooLarge:
		return "rejected_too_large"
	case OutcomeStorageSaveFailed:
		return "storage_save_failed"
	case OutcomeMediaValidationFailed:
		return "media_validation_failed"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeMediaOperationFailed:
		return "media_operation_failed"
	case OutcomeUpdateFailed:
		return "update_failed"
	default:
		return "unknown"
	}
}

// UploadCoverInput carries one multipart cover upload.
type UploadCoverInput struct {
	LibraryID string
	Filename  string
	MIME      string
	Data      []byte
}

// UploadCoverResult reports the outcome plus the media id on success.
type UploadCoverResult struct {
	Outcome Outcome
	MediaID string
}

// coverExtensions maps accepted MIME types to canonical file extensions.
var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// extensionMIMEs infers a MIME type when the upload carries none.
var extensionMIMEs = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// normalizeCoverMIME resolves the effective MIME type: the declared type,
// the image/jpg alias, or an extension fallback when the type is missing.
func normalizeCoverMIME(declared, filename string) (string, bool) {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if mime == "image/jpg" {
		mime = "image/jpeg"
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = extensionMIMEs[strings.ToLower(filepath.Ext(filename))]
	}
	if _, ok := coverExtensions[mime]; !ok {
		return "", false
	}
	return mime, true
}

// validCoverFilename rejects names that are empty or would escape the media
// root. The stored path is derived from the media id; this guards only the
// client-provided name kept for downloads.
func validCoverFilename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return true
}

// UploadLibraryCover stores a cover image and binds it to the library. The
// side-effect order is fixed: authorize, validate, save file, insert media
// row, bind. Post-save failures delete the file again.
func (s *Service) UploadLibraryCover(ctx context.Context, input UploadCoverInput) (UploadCoverResult, error) {
	lib, err := s.stores.Libraries.GetLibrary(ctx, input.LibraryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return UploadCoverResult{Outcome: OutcomeNotFound}, nil
		}
		return UploadCoverResult{}, err
	}
	if err := s.authorizeLibrary(ctx, lib); err != nil {
		return UploadCoverResult{Outcome: OutcomeForbidden}, nil
	}

	if len(input.Data) == 0 {
		return UploadCoverResult{Outcome: OutcomeRejectedEmpty}, nil
	}
	if len(input.Data) > MaxCoverSizeBytes {
		return UploadCoverResult{Outcome: OutcomeRejectedTooLarge}, nil
	}
	mime, ok := normalizeCoverMIME(input.MIME, input.Filename)
	if !ok {
		return UploadCoverResult{Outcome: OutcomeRejectedMIME}, nil
	}
	if !validCoverFilename(input.Filename) {
		return UploadCoverResult{Outcome: OutcomeMediaValidationFailed}, nil
	}

	if quota := s.cfg.MaxLibraryMediaBytes; quota > 0 {
		used, err := s.stores.Media.MediaBytesByLibrary(ctx, lib.ID)
		if err != nil {
			return UploadCoverResult{}, fmt.Errorf("sum media bytes: %w", err)
		}
		if used+int64(len(input.Data)) > quota {
			return UploadCoverResult{Outcome: OutcomeQuotaExceeded}, nil
		}
	}

	mediaID, err := s.newID()
	if err != nil {
		return UploadCoverResult{}, fmt.Errorf("generate media id: %w", err)
	}

	name := fmt.Sprintf("covers/%s/%s%s", lib.ID, mediaID, coverExtensions[mime])
	path, err := s.files.Save(ctx, name, input.Data)
	if err != nil {
		log.Printf("cover upload: save failed for library %s: %v", lib.ID, err)
		return UploadCoverResult{Outcome: OutcomeStorageSaveFailed}, nil
	}

	media := storage.Media{
		ID:        mediaID,
		LibraryID: lib.ID,
		Filename:  input.Filename,
		MIME:      mime,
		SizeBytes: int64(len(input.Data)),
		Path:      path,
		CreatedAt: s.now().UTC(),
	}
	if err := s.stores.Media.PutMedia(ctx, media); err != nil {
		log.Printf("cover upload: media row failed for library %s: %v", lib.ID, err)
		_ = s.files.Delete(ctx, path)
		return UploadCoverResult{Outcome: OutcomeMediaOperationFailed}, nil
	}

	lib.CoverMediaID = mediaID
	lib.UpdatedAt = s.now().UTC()
	if err := s.stores.Libraries.PutLibrary(ctx, lib); err != nil {
		log.Printf("cover upload: bind failed for library %s: %v", lib.ID, err)
		_ = s.stores.Media.DeleteMedia(ctx, mediaID)
		_ = s.files.Delete(ctx, path)
		return UploadCoverResult{Outcome: OutcomeUpdateFailed}, nil
	}

	return UploadCoverResult{Outcome: OutcomeSuccess, MediaID: mediaID}, nil
}
