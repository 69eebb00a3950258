package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type productRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	URL         string  `json:"url" binding:"required"`
	Keywords    string  `json:"keywords"` // comma-separated
	Price       float64 `json:"price"`
}

type productResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Keywords    string    `json:"keywords"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		URL:         p.URL,
		Keywords:    p.Keywords,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (s *Server) handleListProducts(c *gin.Context) {
	userID := getUserID(c)
	products, err := s.store.GetProducts(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list products failed"})
		return
	}

	out := make([]productResponse, 0, len(products))
	for i := range products {
		out = append(out, toProductResponse(&products[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetProduct(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	product, err := s.store.GetProductForUser(c.Request.Context(), id, getUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		s.logger.Error("get product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get product failed"})
		return
	}
	c.JSON(http.StatusOK, toProductResponse(product))
}

func (s *Server) handleCreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := model.Product{
		UserID:      getUserID(c),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		URL:         strings.TrimSpace(req.URL),
		Keywords:    req.Keywords,
		Price:       req.Price,
	}
	if err := s.store.CreateProduct(c.Request.Context(), &product); err != nil {
		s.logger.Error("create product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create product failed"})
		return
	}
	c.JSON(http.StatusCreated, toProductResponse(&product))
}

func (s *Server) handleUpdateProduct(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := s.store.GetProductForUser(c.Request.Context(), id, getUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		s.logger.Error("get product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get product failed"})
		return
	}

	product.Title = strings.TrimSpace(req.Title)
	product.Description = req.Description
	product.URL = strings.TrimSpace(req.URL)
	product.Keywords = req.Keywords
	product.Price = req.Price
	if err := s.store.UpdateProduct(c.Request.Context(), product); err != nil {
		s.logger.Error("update product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update product failed"})
		return
	}
	c.JSON(http.StatusOK, toProductResponse(product))
}

func (s *Server) handleDeleteProduct(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteProduct(c.Request.Context(), id, getUserID(c)); err != nil {
		s.logger.Error("delete product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete product failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// importFailure is one CSV row that could not be imported.
type importFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importResult struct {
	Imported int             `json:"imported"`
	Skipped  int             `json:"skipped"`
	Failures []importFailure `json:"failures,omitempty"`
}

// handleImportSales ingests a CSV of sales rows. The caller names the
// columns to read; the product column is free text matched against the
// user's catalog. Bad rows are reported, never abort the import.
//
// POST /sales/import (multipart: file, product_column, date_column,
// units_column, revenue_column)
func (s *Server) handleImportSales(c *gin.Context) {
	userID := getUserID(c)

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing csv file"})
		return
	}
	defer file.Close()

	cols := columnMapping{
		product: c.PostForm("product_column"),
		date:    c.PostForm("date_column"),
		units:   c.PostForm("units_column"),
		revenue: c.PostForm("revenue_column"),
	}
	cols.applyDefaults()

	products, err := s.store.GetProducts(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("load catalog failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load catalog failed"})
		return
	}
	catalog := make([]rank.CatalogEntry, 0, len(products))
	for _, p := range products {
		catalog = append(catalog, rank.CatalogEntry{ID: p.ID, Title: p.Title})
	}

	result, sales, err := parseSalesCSV(file, cols, catalog, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(sales) > 0 {
		if err := s.store.CreateSales(c.Request.Context(), sales); err != nil {
			s.logger.Error("save sales failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save sales failed"})
			return
		}
	}

	s.logger.Info("sales import finished",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
	)
	c.JSON(http.StatusOK, result)
}

type columnMapping struct {
	product string
	date    string
	units   string
	revenue string
}

func (m *columnMapping) applyDefaults() {
	if m.product == "" {
		m.product = "product"
	}
	if m.date == "" {
		m.date = "date"
	}
	if m.units == "" {
		m.units = "units"
	}
	if m.revenue == "" {
		m.revenue = "revenue"
	}
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", time.RFC3339}

func parseSalesCSV(r io.Reader, cols columnMapping, catalog []rank.CatalogEntry, userID uint) (importResult, []model.Sale, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows, validated per row

	header, err := reader.Read()
	if err != nil {
		return importResult{}, nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	productIdx, ok := idx[strings.ToLower(cols.product)]
	if !ok {
		return importResult{}, nil, fmt.Errorf("column %q not found in header", cols.product)
	}
	dateIdx, hasDate := idx[strings.ToLower(cols.date)]
	unitsIdx, hasUnits := idx[strings.ToLower(cols.units)]
	revenueIdx, hasRevenue := idx[strings.ToLower(cols.revenue)]

	var result importResult
	var sales []model.Sale
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Skipped++
			result.Failures = append(result.Failures, importFailure{Row: row, Reason: "malformed row"})
			metrics.ImportRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		fail := func(reason string) {
			result.Skipped++
			result.Failures = append(result.Failures, importFailure{Row: row, Reason: reason})
			metrics.ImportRowsTotal.WithLabelValues("skipped").Inc()
		}

		if productIdx >= len(record) {
			fail("missing product column")
			continue
		}
		productID, matched := rank.MatchProduct(record[productIdx], catalog)
		if !matched {
			fail(fmt.Sprintf("no product matches %q", strings.TrimSpace(record[productIdx])))
			continue
		}

		sale := model.Sale{UserID: userID, ProductID: productID, Units: 1}

		if hasDate && dateIdx < len(record) && strings.TrimSpace(record[dateIdx]) != "" {
			d, err := parseDate(record[dateIdx])
			if err != nil {
				fail(fmt.Sprintf("bad date %q", strings.TrimSpace(record[dateIdx])))
				continue
			}
			sale.Date = d
		} else {
			sale.Date = time.Now()
		}

		if hasUnits && unitsIdx < len(record) && strings.TrimSpace(record[unitsIdx]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(record[unitsIdx]))
			if err != nil || n < 0 {
				fail(fmt.Sprintf("bad units %q", strings.TrimSpace(record[unitsIdx])))
				continue
			}
			sale.Units = n
		}

		if hasRevenue && revenueIdx < len(record) && strings.TrimSpace(record[revenueIdx]) != "" {
			cents, err := parseMoney(record[revenueIdx])
			if err != nil {
				fail(fmt.Sprintf("bad revenue %q", strings.TrimSpace(record[revenueIdx])))
				continue
			}
			sale.Revenue = cents
		}

		sales = append(sales, sale)
		result.Imported++
		metrics.ImportRowsTotal.WithLabelValues("imported").Inc()
	}
	return result, sales, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseMoney converts a decimal amount, optionally with a leading
// currency sign, to cents.
func parseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("unrecognized amount %q", s)
	}
	return int64(v*100 + 0.5), nil
}
