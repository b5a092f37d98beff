package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestFiberErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Validation("insufficient_stock", "insufficient stock"), http.StatusBadRequest, "insufficient_stock"},
		{"not found", NotFound("batch_not_found", "batch %s not found", "x"), http.StatusNotFound, "batch_not_found"},
		{"conflict", Conflict("rfid_in_use", "rfid in use"), http.StatusConflict, "rfid_in_use"},
		{"integrity 400", Integrity(http.StatusBadRequest, "weight_mismatch", "mismatch"), http.StatusBadRequest, "weight_mismatch"},
		{"integrity 500", Integrity(http.StatusInternalServerError, "reference_mapping_missing", "missing"), http.StatusInternalServerError, "reference_mapping_missing"},
		{"wrapped", fmt.Errorf("split: %w", Conflict("grade_already_stored", "stored")), http.StatusConflict, "grade_already_stored"},
		{"fiber", fiber.NewError(fiber.StatusBadRequest, "invalid request body"), http.StatusBadRequest, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
			app.Get("/", func(c *fiber.Ctx) error { return tc.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status %d, want %d", resp.StatusCode, tc.status)
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] == "" {
				t.Fatal("missing error message")
			}
			if _, ok := body["details"]; !ok {
				t.Fatal("missing details field")
			}
			if body["code"] != tc.code {
				t.Fatalf("code %q, want %q", body["code"], tc.code)
			}
		})
	}
}

func TestUnexpectedErrorHidesCause(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
	app.Get("/", func(c *fiber.Ctx) error {
		return fmt.Errorf("save sub-batch 2024-05-01-0001-N-0001-S: %w", errors.New("UNIQUE constraint failed: sub_batches.batch_number"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body := string(raw); strings.Contains(body, "UNIQUE") || strings.Contains(body, "sub_batches") {
		t.Fatalf("response leaks the cause: %s", body)
	}
}

func TestWithDetailsCopies(t *testing.T) {
	base := Validation("insufficient_stock", "insufficient stock")
	withDetails := base.WithDetails("requested %s kg", "30.00")
	if base.Details != "" {
		t.Fatal("WithDetails mutated the original error")
	}
	if withDetails.Error() != "insufficient stock: requested 30.00 kg" {
		t.Fatalf("unexpected message %q", withDetails.Error())
	}
	if !Is(withDetails, KindValidation) || CodeOf(withDetails) != "insufficient_stock" {
		t.Fatal("details copy lost kind or code")
	}
}
