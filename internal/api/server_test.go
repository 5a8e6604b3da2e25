package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wordloom/wordloom/internal/app"
	"github.com/wordloom/wordloom/internal/chronicle"
	"github.com/wordloom/wordloom/internal/eventbus"
	"github.com/wordloom/wordloom/internal/platform/filestore"
	"github.com/wordloom/wordloom/internal/search"
	"github.com/wordloom/wordloom/internal/storage/sqlite"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlite.Open(filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	bus, err := eventbus.New(store.DB(), eventbus.TxModeSavepoint)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	files, err := filestore.NewDisk(filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	svc := app.NewService(
		app.Config{EnforceOwnerCheck: true},
		app.Stores{
			Libraries:   store,
			Bookshelves: store,
			Books:       store,
			Blocks:      store,
			Basement:    store,
			Media:       store,
			Tags:        store,
			Chronicle:   store,
		},
		files, chronicle.NewRecorder(store), bus,
	)
	svc.RegisterCascades(bus)
	search.NewIndexer(store, store, store, store).Register(bus)

	router := fiber.New()
	NewServer(svc, store.Ping).Register(router)
	return router
}

func doJSON(t *testing.T, router *fiber.App, method, path, userID string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := router.Test(req, int(5*time.Second/time.Millisecond))
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, raw
}

func decodeJSON(t *testing.T, raw []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode response %s: %v", raw, err)
	}
}

func TestLibraryLifecycleOverHTTP(t *testing.T) {
	router := newTestApp(t)

	resp, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/libraries", "user-1", fiber.Map{"name": "Home"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, raw)
	}
	var lib LibraryResponse
	decodeJSON(t, raw, &lib)
	if lib.BasementBookshelfID == "" {
		t.Fatal("created library has no basement shelf")
	}

	resp, raw = doJSON(t, router, fiber.MethodGet, "/api/v1/libraries/"+lib.ID, "user-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get status = %d, body %s", resp.StatusCode, raw)
	}

	resp, raw = doJSON(t, router, fiber.MethodGet, "/api/v1/libraries/"+lib.ID, "user-2", nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("foreign get status = %d, body %s", resp.StatusCode, raw)
	}
	var apiErr ErrorResponse
	decodeJSON(t, raw, &apiErr)
	if apiErr.Code != "FORBIDDEN" {
		t.Fatalf("error code = %q, want FORBIDDEN", apiErr.Code)
	}

	resp, raw = doJSON(t, router, fiber.MethodPatch, "/api/v1/libraries/"+lib.ID, "user-1", fiber.Map{"name": "Home Office"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("patch status = %d, body %s", resp.StatusCode, raw)
	}
	decodeJSON(t, raw, &lib)
	if lib.Name != "Home Office" {
		t.Fatalf("name = %q, want %q", lib.Name, "Home Office")
	}

	resp, _ = doJSON(t, router, fiber.MethodDelete, "/api/v1/libraries/"+lib.ID, "user-1", nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
}

func TestValidationErrorsRenderDetails(t *testing.T) {
	router := newTestApp(t)

	resp, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/libraries", "user-1", fiber.Map{"name": ""})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var apiErr ErrorResponse
	decodeJSON(t, raw, &apiErr)
	if apiErr.Code != "VALIDATION" {
		t.Fatalf("code = %q, want VALIDATION", apiErr.Code)
	}
	if _, ok := apiErr.Details["Name"]; !ok {
		t.Fatalf("details = %v, want Name entry", apiErr.Details)
	}
}

func TestBasementAdminFlowOverHTTP(t *testing.T) {
	router := newTestApp(t)

	_, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/libraries", "user-1", fiber.Map{"name": "Home"})
	var lib LibraryResponse
	decodeJSON(t, raw, &lib)

	_, raw = doJSON(t, router, fiber.MethodPost, "/api/v1/bookshelves", "user-1", fiber.Map{"library_id": lib.ID, "name": "Ideas"})
	var shelf BookshelfResponse
	decodeJSON(t, raw, &shelf)

	_, raw = doJSON(t, router, fiber.MethodPost, "/api/v1/books", "user-1", fiber.Map{"bookshelf_id": shelf.ID, "title": "Draft"})
	var b BookResponse
	decodeJSON(t, raw, &b)

	resp, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/admin/books/"+b.ID+"/move-to-basement", "user-1", fiber.Map{
		"basement_bookshelf_id": lib.BasementBookshelfID,
		"reason":                "cleanup",
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("move status = %d, body %s", resp.StatusCode, raw)
	}
	var snapshot BasementBookResponse
	decodeJSON(t, raw, &snapshot)
	if snapshot.Title != "Draft" {
		t.Fatalf("snapshot title = %q, want Draft", snapshot.Title)
	}

	resp, raw = doJSON(t, router, fiber.MethodGet, fmt.Sprintf("/api/v1/admin/libraries/%s/basement/books?skip=0&limit=10", lib.ID), "user-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list status = %d, body %s", resp.StatusCode, raw)
	}

	resp, raw = doJSON(t, router, fiber.MethodPost, "/api/v1/admin/books/"+b.ID+"/restore-from-basement", "user-1", fiber.Map{})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("restore status = %d, body %s", resp.StatusCode, raw)
	}
	var restored BookResponse
	decodeJSON(t, raw, &restored)
	if restored.BookshelfID != shelf.ID {
		t.Fatalf("restored shelf = %q, want %q", restored.BookshelfID, shelf.ID)
	}

	resp, raw = doJSON(t, router, fiber.MethodDelete, "/api/v1/admin/books/"+b.ID, "user-1", nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("hard delete of live book status = %d, body %s", resp.StatusCode, raw)
	}
}

func TestCoverUploadOverHTTP(t *testing.T) {
	router := newTestApp(t)

	_, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/libraries", "user-1", fiber.Map{"name": "Home"})
	var lib LibraryResponse
	decodeJSON(t, raw, &lib)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="cover.png"`}
	header["Content-Type"] = []string{"image/png"}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/libraries/"+lib.ID+"/cover", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-ID", "user-1")
	resp, err := router.Test(req, int(5*time.Second/time.Millisecond))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, body)
	}

	var result struct {
		Outcome string `json:"outcome"`
		MediaID string `json:"media_id"`
	}
	decodeJSON(t, body, &result)
	if result.Outcome != "success" || result.MediaID == "" {
		t.Fatalf("result = %+v, want success with media id", result)
	}
}

func TestBlockEndpointsOverHTTP(t *testing.T) {
	router := newTestApp(t)

	_, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/libraries", "user-1", fiber.Map{"name": "Home"})
	var lib LibraryResponse
	decodeJSON(t, raw, &lib)
	_, raw = doJSON(t, router, fiber.MethodPost, "/api/v1/bookshelves", "user-1", fiber.Map{"library_id": lib.ID, "name": "Ideas"})
	var shelf BookshelfResponse
	decodeJSON(t, raw, &shelf)
	_, raw = doJSON(t, router, fiber.MethodPost, "/api/v1/books", "user-1", fiber.Map{"bookshelf_id": shelf.ID, "title": "Draft"})
	var b BookResponse
	decodeJSON(t, raw, &b)

	resp, raw := doJSON(t, router, fiber.MethodPost, "/api/v1/blocks", "user-1", fiber.Map{"book_id": b.ID, "content": "hello"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create block status = %d, body %s", resp.StatusCode, raw)
	}
	var blk BlockResponse
	decodeJSON(t, raw, &blk)

	resp, raw = doJSON(t, router, fiber.MethodDelete, "/api/v1/blocks/"+blk.ID, "user-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("soft delete status = %d, body %s", resp.StatusCode, raw)
	}

	resp, raw = doJSON(t, router, fiber.MethodPost, "/api/v1/blocks/"+blk.ID+"/restore", "user-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("restore status = %d, body %s", resp.StatusCode, raw)
	}

	resp, raw = doJSON(t, router, fiber.MethodGet, "/api/v1/books/"+b.ID+"/events?event_types=block_created", "user-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("events status = %d, body %s", resp.StatusCode, raw)
	}
	var events struct {
		Data []EventResponse `json:"data"`
	}
	decodeJSON(t, raw, &events)
	if len(events.Data) != 1 {
		t.Fatalf("block_created events = %d, want 1", len(events.Data))
	}
}
