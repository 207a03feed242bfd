package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/internal/books"
	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage/local"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var requiredColumns = []string{"title", "author", "isbn", "quantity"}

func newImportBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-books <file.csv>",
		Short: "Bulk-create books from a CSV with title,author,isbn,quantity[,description,category] columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			inputs, err := parseBookCSV(f)
			if err != nil {
				return err
			}

			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				svc, err := catalogService(e)
				if err != nil {
					return err
				}
				report, err := svc.Import(ctx, inputs)
				for _, book := range report.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "created  %s  %s\n", book.ISBN, book.Title)
				}
				for _, isbn := range report.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped  %s  (already in catalog)\n", isbn)
				}
				if err != nil {
					return fmt.Errorf("import stopped after %d books: %w", len(report.Created), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d skipped\n", len(report.Created), len(report.Skipped))
				return nil
			})
		},
	}
}

// catalogService builds the book service. Imports never carry covers, so
// the store only has to exist.
func catalogService(e *env) (books.Service, error) {
	store, err := local.New(e.cfg.Storage.LocalDir, e.cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	conn := e.db.DB()
	return books.NewService(books.ServiceParams{
		Tx:       e.db,
		Repo:     books.NewRepository(conn),
		LoanRepo: loans.NewRepository(conn),
		HoldRepo: holds.NewRepository(conn),
		Ledger:   inventory.NewLedger(conn),
		Store:    store,
		Logger:   e.logg,
	})
}

// parseBookCSV reads a header row followed by one book per row. Column order
// is free; unknown columns are ignored.
func parseBookCSV(r io.Reader) ([]books.BookInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if missing := lo.Filter(requiredColumns, func(col string, _ int) bool {
		_, ok := index[col]
		return !ok
	}); len(missing) > 0 {
		return nil, fmt.Errorf("csv missing columns: %s", strings.Join(missing, ", "))
	}

	field := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	optional := func(row []string, col string) *string {
		if v := field(row, col); v != "" {
			return &v
		}
		return nil
	}

	var inputs []books.BookInput
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		quantity, err := strconv.Atoi(field(row, "quantity"))
		if err != nil || quantity < 0 {
			return nil, fmt.Errorf("line %d: quantity must be a non-negative integer", line)
		}
		input := books.BookInput{
			Title:       field(row, "title"),
			Author:      field(row, "author"),
			ISBN:        field(row, "isbn"),
			Quantity:    quantity,
			Description: optional(row, "description"),
			Category:    optional(row, "category"),
		}
		if input.Title == "" || input.Author == "" || input.ISBN == "" {
			return nil, fmt.Errorf("line %d: title, author and isbn are required", line)
		}
		inputs = append(inputs, input)
	}
	if len(inputs) == 0 {
		return nil, errors.New("csv has no book rows")
	}
	return inputs, nil
}
