package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// Lookup resolves a book id to its catalog entry. Retired books do not resolve.
type Lookup interface {
	GetBook(ctx context.Context, id int64) (*domain.Book, error)
}

type RepoInterface interface {
	Lookup
	ListBooks(ctx context.Context, filter domain.BookFilter) ([]*domain.Book, error)
	Close() error
	RunMigrations(string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// a single connection keeps ":memory:" databases shared between queries
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const bookColumns = `id, title, author, publisher, year_released, genre, price, created_at`

func (r *Repository) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ? AND lifecycle = 'active'`

	b := &domain.Book{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.Publisher,
		&b.YearReleased,
		&b.Genre,
		&b.Price,
		&b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, domain.Persistence("query book", err)
	}
	return b, nil
}

func (r *Repository) ListBooks(ctx context.Context, filter domain.BookFilter) ([]*domain.Book, error) {
	var (
		conds = []string{"lifecycle = 'active'"}
		args  []any
	)
	like := func(column, value string) {
		if value == "" {
			return
		}
		conds = append(conds, fmt.Sprintf("LOWER(CAST(%s AS TEXT)) LIKE ?", column))
		args = append(args, "%"+strings.ToLower(value)+"%")
	}
	like("title", filter.Title)
	like("author", filter.Author)
	like("publisher", filter.Publisher)
	like("year_released", filter.YearReleased)
	like("genre", filter.Genre)

	query := `SELECT ` + bookColumns + ` FROM books WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	books := make([]*domain.Book, 0)
	for rows.Next() {
		b := &domain.Book{}
		err := rows.Scan(
			&b.ID,
			&b.Title,
			&b.Author,
			&b.Publisher,
			&b.YearReleased,
			&b.Genre,
			&b.Price,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return books, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
