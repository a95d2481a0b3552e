package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/DRSN-tech/visual-matcher/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatchUC struct {
	lastReq  *usecase.MatchReq
	res      *usecase.MatchRes
	err      error
	stats    *usecase.CatalogStats
	statsErr error
}

func (f *fakeMatchUC) Match(_ context.Context, req *usecase.MatchReq) (*usecase.MatchRes, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeMatchUC) Categories() []string {
	return domain.Categories()
}

func (f *fakeMatchUC) CatalogStats(context.Context) (*usecase.CatalogStats, error) {
	return f.stats, f.statsErr
}

func newTestRouter(t *testing.T, uc usecase.MatchUC) http.Handler {
	t.Helper()

	c := &cfg.Config{
		Http:   &cfg.HTTPConfig{MaxRequestSize: 64 << 10, AllowedOrigins: []string{"*"}},
		Match:  &cfg.MatchCfg{TopK: 1, DefaultMinScore: 0.5},
		Images: &cfg.ImagesCfg{MaxBytes: 32 << 10},
	}

	mux := chi.NewRouter()
	NewRouter(mux, logger.NewNopLogger()).Init(uc, metrics.NewPrometheus().Handler(), c)
	return mux
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "shoe.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestMatch_Upload(t *testing.T) {
	uc := &fakeMatchUC{res: usecase.NewMatchRes([]domain.MatchResult{
		domain.NewMatchResult(*domain.NewProduct("Red shoe", "Leather", "https://cdn/red.jpg", "Shoes", ""), 0.91),
	}, "clip", false)}
	router := newTestRouter(t, uc)

	body, contentType := multipartBody(t, map[string]string{"category": "Shoes", "min_score": "0.75"}, []byte("\x89PNG\r\n\x1a\nfake"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[MatchResponse](t, rec)
	assert.False(t, resp.NoMatch)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Red shoe", resp.Results[0].Name)
	assert.InDelta(t, 0.91, resp.Results[0].Score, 1e-9)

	require.NotNil(t, uc.lastReq.Image)
	assert.Equal(t, "image/png", uc.lastReq.Image.MimeType)
	assert.Equal(t, "Shoes", uc.lastReq.Category)
	assert.InDelta(t, 0.75, uc.lastReq.MinScore, 1e-9)
}

func TestMatch_URLDefaults(t *testing.T) {
	uc := &fakeMatchUC{res: usecase.NewMatchRes(nil, "clip", true)}
	router := newTestRouter(t, uc)

	form := url.Values{"image_url": {"https://example.com/cap.jpg"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[],"no_match":true}`, rec.Body.String())

	assert.Nil(t, uc.lastReq.Image)
	assert.Equal(t, "https://example.com/cap.jpg", uc.lastReq.ImageURL)
	assert.Equal(t, domain.AllCategories, uc.lastReq.Category)
	assert.InDelta(t, 0.5, uc.lastReq.MinScore, 1e-9)
}

func TestMatch_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		ucErr       error
		wantCode    int
	}{
		{"wrong content type", "text/plain", "hello", nil, http.StatusBadRequest},
		{"bad min_score", "application/x-www-form-urlencoded", "image_url=https://a/b.jpg&min_score=abc", nil, http.StatusBadRequest},
		{"min_score out of range", "application/x-www-form-urlencoded", "image_url=https://a/b.jpg&min_score=1.5", nil, http.StatusBadRequest},
		{"min_score precision", "application/x-www-form-urlencoded", "image_url=https://a/b.jpg&min_score=0.555", nil, http.StatusBadRequest},
		{"body too large", "application/x-www-form-urlencoded", "image_url=" + strings.Repeat("a", 70<<10), nil, http.StatusRequestEntityTooLarge},
		{"no image", "application/x-www-form-urlencoded", "category=Shoes", e.Wrap("MatchUseCase.Match", e.ErrNoImage), http.StatusBadRequest},
		{"decode failure", "application/x-www-form-urlencoded", "image_url=https://a/b.jpg", e.ErrImageDecodeFailure, http.StatusUnprocessableEntity},
		{"empty catalog", "application/x-www-form-urlencoded", "image_url=https://a/b.jpg", e.Wrap("op", e.ErrEmptyCatalog), http.StatusServiceUnavailable},
		{"dimension mismatch", "application/x-www-form-urlencoded", "image_url=https://a/b.jpg", e.ErrDimensionMismatch, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeMatchUC{err: tt.ucErr, res: usecase.NewMatchRes(nil, "", false)})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/match", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestCategoriesAndHealth(t *testing.T) {
	uc := &fakeMatchUC{stats: &usecase.CatalogStats{Total: 5, Valid: 4, Dim: 512}}
	router := newTestRouter(t, uc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Categories(), decodeBody[CategoriesResponse](t, rec).Categories)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 4, health.Valid)

	uc.statsErr = fmt.Errorf("load: %w", e.ErrCatalogMisaligned)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseMinScore(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr error
	}{
		{"", 0.5, nil},
		{"0", 0, nil},
		{"1", 1, nil},
		{" 0.75 ", 0.75, nil},
		{"0.500", 0.5, nil},
		{"0.555", 0, e.ErrMinScorePrecision},
		{"-0.1", 0, e.ErrInvalidMinScore},
		{"1.01", 0, e.ErrInvalidMinScore},
		{"half", 0, e.ErrInvalidMinScore},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMinScore(tt.in, 0.5)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestToHTTPResponse_HidesInternals(t *testing.T) {
	code, msg := ToHTTPResponse(errors.New("pgx: connection refused to 10.0.0.5"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, e.ErrInternalServerError.Error(), msg)
}

func TestServer_StopIsNotAnError(t *testing.T) {
	srv := NewServer(http.NotFoundHandler(), &cfg.HTTPConfig{Port: "0"})
	assert.Equal(t, ":0", srv.Addr())

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	require.NoError(t, srv.Stop(context.Background()))
	assert.NoError(t, <-done)
}
