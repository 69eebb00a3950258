package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/api/auth"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/config"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

type mockDataStore struct {
	products  map[uint]*model.Product
	keywords  map[uint]*model.Keyword
	history   []model.RankObservation
	sales     []model.Sale
	userCount int64
}

func newMockDataStore() *mockDataStore {
	return &mockDataStore{
		products: map[uint]*model.Product{},
		keywords: map[uint]*model.Keyword{},
	}
}

func (m *mockDataStore) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (m *mockDataStore) GetProductForUser(ctx context.Context, id, userID uint) (*model.Product, error) {
	p, ok := m.products[id]
	if !ok || p.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (m *mockDataStore) GetProducts(ctx context.Context, userID uint) ([]model.Product, error) {
	var out []model.Product
	for _, p := range m.products {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockDataStore) CreateProduct(ctx context.Context, p *model.Product) error {
	p.ID = uint(len(m.products) + 1)
	m.products[p.ID] = p
	return nil
}

func (m *mockDataStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	m.products[p.ID] = p
	return nil
}

func (m *mockDataStore) DeleteProduct(ctx context.Context, id, userID uint) error {
	delete(m.products, id)
	return nil
}

func (m *mockDataStore) GetKeyword(ctx context.Context, id uint) (*model.Keyword, error) {
	kw, ok := m.keywords[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return kw, nil
}

func (m *mockDataStore) GetKeywordsByUser(ctx context.Context, userID uint) ([]model.Keyword, error) {
	var out []model.Keyword
	for _, kw := range m.keywords {
		if kw.UserID == userID {
			out = append(out, *kw)
		}
	}
	return out, nil
}

func (m *mockDataStore) GetKeywordsByProduct(ctx context.Context, productID, userID uint) ([]model.Keyword, error) {
	var out []model.Keyword
	for _, kw := range m.keywords {
		if kw.ProductID == productID && kw.UserID == userID {
			out = append(out, *kw)
		}
	}
	return out, nil
}

func (m *mockDataStore) CountKeywordsByUser(ctx context.Context, userID uint) (int64, error) {
	return m.userCount, nil
}

func (m *mockDataStore) DeleteKeyword(ctx context.Context, id, userID uint) error {
	delete(m.keywords, id)
	return nil
}

func (m *mockDataStore) GetRankHistory(ctx context.Context, keywordID uint, limit int) ([]model.RankObservation, error) {
	return m.history, nil
}

func (m *mockDataStore) CreateSales(ctx context.Context, sales []model.Sale) error {
	m.sales = append(m.sales, sales...)
	return nil
}

type mockRankService struct {
	refreshFn func(ctx context.Context, keywordID uint) (*model.RankObservation, error)
	addFn     func(ctx context.Context, userID, productID uint, phrase string, opts rank.QueryOptions) (*model.Keyword, error)
	bulkFn    func(ctx context.Context, userID uint) (*rank.BulkRefreshResult, error)
	statsFn   func(ctx context.Context, userID uint) (*rank.RankStats, error)
}

func (m *mockRankService) RefreshKeywordRank(ctx context.Context, keywordID uint) (*model.RankObservation, error) {
	return m.refreshFn(ctx, keywordID)
}

func (m *mockRankService) AddKeyword(ctx context.Context, userID, productID uint, phrase string, opts rank.QueryOptions) (*model.Keyword, error) {
	return m.addFn(ctx, userID, productID, phrase, opts)
}

func (m *mockRankService) RefreshAllKeywords(ctx context.Context, userID uint) (*rank.BulkRefreshResult, error) {
	return m.bulkFn(ctx, userID)
}

func (m *mockRankService) UserRankStats(ctx context.Context, userID uint) (*rank.RankStats, error) {
	return m.statsFn(ctx, userID)
}

func newTestServer(st DataStore, ranks RankService) *Server {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{}
	cfg.App.MaxKeywordsUser = 50
	cfg.Security.JWTSecret = testJWTSecret

	r := gin.New()
	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: r,
		auth:   auth.NewHandler(nil, testJWTSecret, logger),
		store:  st,
		ranks:  ranks,
	}
	s.registerRoutes()
	return s
}

func bearerToken(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": "seller",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, s *Server, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	s := newTestServer(newMockDataStore(), &mockRankService{})

	w := doRequest(t, s, http.MethodGet, "/keywords", "", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRefreshKeyword_ConflictReturns409(t *testing.T) {
	st := newMockDataStore()
	st.keywords[5] = &model.Keyword{ID: 5, UserID: 7, Phrase: "algebra task cards"}
	ranks := &mockRankService{
		refreshFn: func(ctx context.Context, keywordID uint) (*model.RankObservation, error) {
			return nil, fmt.Errorf("keyword 5: %w", rank.ErrAlreadyRefreshing)
		},
	}
	s := newTestServer(st, ranks)

	w := doRequest(t, s, http.MethodPost, "/keywords/5/refresh", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", w.Code, w.Body.String())
	}
}

func TestRefreshKeyword_ReturnsObservation(t *testing.T) {
	st := newMockDataStore()
	st.keywords[5] = &model.Keyword{ID: 5, UserID: 7, Phrase: "algebra task cards"}
	pos := 12
	ranks := &mockRankService{
		refreshFn: func(ctx context.Context, keywordID uint) (*model.RankObservation, error) {
			return &model.RankObservation{KeywordID: keywordID, Position: &pos, Mode: "live", FetchedAt: time.Now()}, nil
		},
	}
	s := newTestServer(st, ranks)

	w := doRequest(t, s, http.MethodPost, "/keywords/5/refresh", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Position *int   `json:"position"`
		Mode     string `json:"mode"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Position == nil || *resp.Position != 12 {
		t.Errorf("position = %v, want 12", resp.Position)
	}
	if resp.Mode != "live" {
		t.Errorf("mode = %q, want live", resp.Mode)
	}
}

func TestRefreshKeyword_OtherUsersKeywordIs404(t *testing.T) {
	st := newMockDataStore()
	st.keywords[5] = &model.Keyword{ID: 5, UserID: 99, Phrase: "algebra task cards"}
	s := newTestServer(st, &mockRankService{})

	w := doRequest(t, s, http.MethodPost, "/keywords/5/refresh", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCreateKeyword_LimitReached(t *testing.T) {
	st := newMockDataStore()
	st.products[3] = &model.Product{ID: 3, UserID: 7, Title: "Algebra Task Cards"}
	st.userCount = 50
	s := newTestServer(st, &mockRankService{})

	body := strings.NewReader(`{"product_id": 3, "phrase": "algebra task cards"}`)
	w := doRequest(t, s, http.MethodPost, "/keywords", bearerToken(t, 7), body, "application/json")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body %s", w.Code, w.Body.String())
	}
}

func TestCreateKeyword_OK(t *testing.T) {
	st := newMockDataStore()
	st.products[3] = &model.Product{ID: 3, UserID: 7, Title: "Algebra Task Cards"}
	ranks := &mockRankService{
		addFn: func(ctx context.Context, userID, productID uint, phrase string, opts rank.QueryOptions) (*model.Keyword, error) {
			return &model.Keyword{ID: 10, UserID: userID, ProductID: productID, Phrase: phrase, Country: "us", Device: "desktop"}, nil
		},
	}
	s := newTestServer(st, ranks)

	body := strings.NewReader(`{"product_id": 3, "phrase": "algebra task cards"}`)
	w := doRequest(t, s, http.MethodPost, "/keywords", bearerToken(t, 7), body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp keywordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 10 || resp.Phrase != "algebra task cards" {
		t.Errorf("unexpected keyword: %+v", resp)
	}
}

func TestKeywordHistory_IncludesChange(t *testing.T) {
	st := newMockDataStore()
	st.keywords[5] = &model.Keyword{ID: 5, UserID: 7, Phrase: "algebra task cards"}
	p1, p2 := 20, 14
	st.history = []model.RankObservation{
		{KeywordID: 5, Position: &p1, Mode: "live", FetchedAt: time.Now().Add(-time.Hour)},
		{KeywordID: 5, Position: &p2, Mode: "live", FetchedAt: time.Now()},
	}
	s := newTestServer(st, &mockRankService{})

	w := doRequest(t, s, http.MethodGet, "/keywords/5/history", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		History []historyEntry `json:"history"`
		Change  int            `json:"change"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(resp.History))
	}
	if resp.Change != 6 {
		t.Errorf("change = %d, want 6", resp.Change)
	}
}

func TestScoreText(t *testing.T) {
	s := newTestServer(newMockDataStore(), &mockRankService{})

	body := strings.NewReader(`{
		"title": "Algebra Task Cards for Middle School Math Practice",
		"description": "Students learn algebra with these printable task cards. Perfect for classroom practice and review. Each set covers essential skill areas for middle school math.",
		"keywords": "algebra,task cards"
	}`)
	w := doRequest(t, s, http.MethodPost, "/seo/score", bearerToken(t, 7), body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Overall int `json:"overall_score"`
		Title   struct {
			Score int `json:"score"`
		} `json:"title"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Title.Score != 100 {
		t.Errorf("title score = %d, want 100", resp.Title.Score)
	}
	if resp.Overall == 0 {
		t.Error("overall score missing")
	}
}

func TestProductSEO_NotFound(t *testing.T) {
	s := newTestServer(newMockDataStore(), &mockRankService{})

	w := doRequest(t, s, http.MethodGet, "/products/42/seo", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func csvUpload(t *testing.T, csvBody string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "sales.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(csvBody)); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestImportSales_PartialSuccess(t *testing.T) {
	st := newMockDataStore()
	st.products[1] = &model.Product{ID: 1, UserID: 7, Title: "Algebra Task Cards"}
	st.products[2] = &model.Product{ID: 2, UserID: 7, Title: "Fraction Games Bundle"}
	s := newTestServer(st, &mockRankService{})

	csvBody := "Product,Date,Units,Revenue\n" +
		"Algebra Task Cards,2026-03-01,2,$7.50\n" +
		"Volcano Science Kit,2026-03-02,1,4.00\n" +
		"Fraction Games Bundle,2026-03-03,1,not-a-number\n"
	body, contentType := csvUpload(t, csvBody, nil)

	w := doRequest(t, s, http.MethodPost, "/sales/import", bearerToken(t, 7), body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp importResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Imported != 1 {
		t.Errorf("imported = %d, want 1", resp.Imported)
	}
	if resp.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", resp.Skipped)
	}
	if len(resp.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(resp.Failures))
	}

	if len(st.sales) != 1 {
		t.Fatalf("saved %d sales, want 1", len(st.sales))
	}
	sale := st.sales[0]
	if sale.ProductID != 1 || sale.Units != 2 || sale.Revenue != 750 {
		t.Errorf("unexpected sale: %+v", sale)
	}
}

func TestImportSales_CustomColumnMapping(t *testing.T) {
	st := newMockDataStore()
	st.products[1] = &model.Product{ID: 1, UserID: 7, Title: "Algebra Task Cards"}
	s := newTestServer(st, &mockRankService{})

	csvBody := "Item Name,Sold On,Qty,Earnings\n" +
		"algebra task cards,01/15/2026,3,12.00\n"
	body, contentType := csvUpload(t, csvBody, map[string]string{
		"product_column": "Item Name",
		"date_column":    "Sold On",
		"units_column":   "Qty",
		"revenue_column": "Earnings",
	})

	w := doRequest(t, s, http.MethodPost, "/sales/import", bearerToken(t, 7), body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp importResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Imported != 1 || resp.Skipped != 0 {
		t.Errorf("imported/skipped = %d/%d, want 1/0", resp.Imported, resp.Skipped)
	}
	if len(st.sales) != 1 || st.sales[0].Revenue != 1200 {
		t.Fatalf("unexpected sales: %+v", st.sales)
	}
}

func TestImportSales_UnknownProductColumn(t *testing.T) {
	st := newMockDataStore()
	s := newTestServer(st, &mockRankService{})

	body, contentType := csvUpload(t, "Date,Units\n2026-01-01,1\n", nil)
	w := doRequest(t, s, http.MethodPost, "/sales/import", bearerToken(t, 7), body, contentType)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", w.Code, w.Body.String())
	}
}

func TestBulkRefresh_ReportsPartialSuccess(t *testing.T) {
	ranks := &mockRankService{
		bulkFn: func(ctx context.Context, userID uint) (*rank.BulkRefreshResult, error) {
			return &rank.BulkRefreshResult{
				Total:     3,
				Refreshed: 2,
				Skipped:   0,
				Failures:  []rank.RefreshFailure{{KeywordID: 9, Phrase: "fraction games", Reason: "provider timeout"}},
			}, nil
		},
	}
	s := newTestServer(newMockDataStore(), ranks)

	w := doRequest(t, s, http.MethodPost, "/refresh", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp rank.BulkRefreshResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || resp.Refreshed != 2 || len(resp.Failures) != 1 {
		t.Errorf("unexpected result: %+v", resp)
	}
}

func TestRankStats(t *testing.T) {
	ranks := &mockRankService{
		statsFn: func(ctx context.Context, userID uint) (*rank.RankStats, error) {
			return &rank.RankStats{TotalKeywords: 4, Improved: 2, Declined: 1, TopTen: 1, AverageRank: 18.5}, nil
		},
	}
	s := newTestServer(newMockDataStore(), ranks)

	w := doRequest(t, s, http.MethodGet, "/stats/ranks", bearerToken(t, 7), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp rank.RankStats
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalKeywords != 4 || resp.AverageRank != 18.5 {
		t.Errorf("unexpected stats: %+v", resp)
	}
}

func TestProductCRUD(t *testing.T) {
	st := newMockDataStore()
	s := newTestServer(st, &mockRankService{})
	token := bearerToken(t, 7)

	body := strings.NewReader(`{"title": "Algebra Task Cards", "url": "https://mystore.com/algebra", "keywords": "algebra,math", "price": 4.5}`)
	w := doRequest(t, s, http.MethodPost, "/products", token, body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var created productResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created product has no id")
	}

	w = doRequest(t, s, http.MethodGet, fmt.Sprintf("/products/%d", created.ID), token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/products/%d", created.ID), token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if _, ok := st.products[created.ID]; ok {
		t.Error("product still present after delete")
	}
}
