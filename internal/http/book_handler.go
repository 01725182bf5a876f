package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type BookCatalog interface {
	GetBook(ctx context.Context, id int64) (*domain.Book, error)
	ListBooks(ctx context.Context, filter domain.BookFilter) ([]*domain.Book, error)
}

type BookHandler struct {
	catalog BookCatalog
	stock   store.Ledger
	timeout time.Duration
	log     *zap.Logger
}

func NewBookHandler(catalog BookCatalog, stock store.Ledger, timeout time.Duration, log *zap.Logger) *BookHandler {
	return &BookHandler{
		catalog: catalog,
		stock:   stock,
		timeout: timeout,
		log:     log.Named("books-http"),
	}
}

type BookResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Publisher    string `json:"publisher"`
	YearReleased int    `json:"year_released"`
	Genre        string `json:"genre"`
	Price        int64  `json:"price"`
}

type BookDetailResponse struct {
	BookResponse
	Stock     int32 `json:"stock"`
	Available bool  `json:"available"`
}

type BooksResponse struct {
	Books []BookResponse `json:"books"`
}

func convertBook(b *domain.Book) BookResponse {
	return BookResponse{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		Publisher:    b.Publisher,
		YearReleased: b.YearReleased,
		Genre:        b.Genre,
		Price:        b.Price,
	}
}

func bookIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "book_id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_book_id", "book_id must be a positive integer")
		return 0, false
	}
	return id, true
}

// GET /api/v1/books
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	books, err := h.catalog.ListBooks(ctx, domain.BookFilter{
		Title:        q.Get("title"),
		Author:       q.Get("author"),
		Publisher:    q.Get("publisher"),
		YearReleased: q.Get("year_released"),
		Genre:        q.Get("genre"),
	})
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	res := make([]BookResponse, len(books))
	for i, b := range books {
		res[i] = convertBook(b)
	}

	respondJSON(w, http.StatusOK, &BooksResponse{Books: res})
}

// GET /api/v1/books/{book_id}
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}

	book, err := h.catalog.GetBook(ctx, id)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	res := BookDetailResponse{BookResponse: convertBook(book)}
	rec, err := h.stock.GetStock(ctx, id)
	switch {
	case err == nil:
		res.Stock = rec.Stock
		res.Available = rec.Available()
	case errors.Is(err, domain.ErrNotFound):
		// no inventory record yet: not available
	default:
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}
