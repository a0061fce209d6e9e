package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/mkleiven/rowwise/internal/kernels"
)

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListKernels(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	rec := doJSON(t, e, http.MethodGet, "/v1/kernels", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp KernelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "kernel.list" {
		t.Fatalf("object = %q", resp.Object)
	}
	wantTotal := len(kernels.Names(kernels.Batched)) + len(kernels.Names(kernels.Grouped))
	if len(resp.Kernels) != wantTotal {
		t.Fatalf("listed %d kernels, want %d", len(resp.Kernels), wantTotal)
	}
	for _, info := range resp.Kernels {
		if info.TileK != 128 || info.ClusterK != 1 {
			t.Fatalf("kernel %s: tile_k=%d cluster_k=%d, want 128 and 1", info.Name, info.TileK, info.ClusterK)
		}
		if info.Schedule != "pingpong" && info.Schedule != "cooperative" {
			t.Fatalf("kernel %s: schedule %q", info.Name, info.Schedule)
		}
	}
}

func TestListKernelsByKind(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	rec := doJSON(t, e, http.MethodGet, "/v1/kernels?kind=grouped", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp KernelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Kernels) != len(kernels.Names(kernels.Grouped)) {
		t.Fatalf("listed %d grouped kernels, want %d", len(resp.Kernels), len(kernels.Names(kernels.Grouped)))
	}
	for _, info := range resp.Kernels {
		if info.Kind != "grouped" {
			t.Fatalf("kernel %s has kind %q", info.Name, info.Kind)
		}
	}

	badRec := doJSON(t, e, http.MethodGet, "/v1/kernels?kind=fused", "")
	if badRec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: status %d body=%s", badRec.Code, badRec.Body.String())
	}
}

func TestSelectBatched(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/select/batched", `{"b":4,"m":8,"n":4096,"k":4096}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp SelectionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "kernel.selection" || resp.Kind != "batched" {
		t.Fatalf("object=%q kind=%q", resp.Object, resp.Kind)
	}
	if resp.Kernel.Name != "f8f8bf16_rowwise_batched_64_32_128_2_1_1_t" {
		t.Fatalf("kernel = %q", resp.Kernel.Name)
	}
	if !strings.HasPrefix(resp.ID, "sel_") {
		t.Fatalf("id = %q", resp.ID)
	}
	// grid: ceil(4096/32) x ceil(8/64) x 4, pingpong block of 256.
	if resp.Grid != (Extent{X: 128, Y: 1, Z: 4}) {
		t.Fatalf("grid = %+v", resp.Grid)
	}
	if resp.Block != (Extent{X: 256, Y: 1, Z: 1}) {
		t.Fatalf("block = %+v", resp.Block)
	}
}

func TestSelectBatchedValidation(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/select/batched", `{"b":0,"m":8,"n":64,"k":64}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "must be positive") {
		t.Fatalf("body: %s", rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/select/batched", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", rec.Code)
	}
}

func TestSelectGrouped(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	body := `{"shapes":[{"m":64,"n":512,"k":512},{"m":128,"n":1024,"k":512}]}`
	rec := doJSON(t, e, http.MethodPost, "/v1/select/grouped", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp SelectionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "grouped" {
		t.Fatalf("kind = %q", resp.Kind)
	}
	// Selection runs on component maxima: m=128, n=1024, k=512.
	want := kernels.SelectGrouped(128, 1024, 512).Name
	if resp.Kernel.Name != want {
		t.Fatalf("kernel = %q, want %q", resp.Kernel.Name, want)
	}
	if resp.Grid.Z != 2 {
		t.Fatalf("grid z = %d, want group count 2", resp.Grid.Z)
	}
}

func TestSelectGroupedValidation(t *testing.T) {
	t.Parallel()

	e := NewEcho()

	rec := doJSON(t, e, http.MethodPost, "/v1/select/grouped", `{"shapes":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty shapes: status %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/select/grouped", `{"shapes":[{"m":4,"n":256,"k":512}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("shallow n: status %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "below grouped kernel minimum") {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestSelectGroupedOverride(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	override := kernels.Names(kernels.Grouped)[0]
	body := `{"shapes":[{"m":4,"n":512,"k":512}],"kernel":"` + override + `"}`
	rec := doJSON(t, e, http.MethodPost, "/v1/select/grouped", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp SelectionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kernel.Name != override {
		t.Fatalf("kernel = %q, want override %q", resp.Kernel.Name, override)
	}

	missing := `{"shapes":[{"m":4,"n":512,"k":512}],"kernel":"f8f8bf16_rowwise_grouped_1_2_128_1_1_1_t"}`
	rec = doJSON(t, e, http.MethodPost, "/v1/select/grouped", missing)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown kernel: status %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "f8f8bf16_rowwise_grouped_1_2_128_1_1_1_t") {
		t.Fatalf("error should name the kernel: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := NewEcho()
	rec := doJSON(t, e, http.MethodGet, "/v1/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q", resp.Status)
	}
	if !strings.Contains(resp.Backends, "host") {
		t.Fatalf("backends = %q, missing host", resp.Backends)
	}
}
