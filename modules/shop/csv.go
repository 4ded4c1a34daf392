package shop

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	domain "github.com/example/shop-monolith/domain/shop"
)

// CSVFields are the columns of the product CSV, in order.
var CSVFields = []string{"name", "description", "price", "discount"}

// CSVFilename is the attachment name of the product download.
const CSVFilename = "products-export.csv"

// DownloadCSV writes every product matching filter as CSV with a header row.
func (s *Service) DownloadCSV(ctx context.Context, filter domain.ProductFilter) ([]byte, error) {
	products, err := s.products.All(ctx, filter)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVFields); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, p := range products {
		record := []string{
			p.Name,
			p.Description,
			p.Price.StringFixed(2),
			strconv.Itoa(int(p.Discount)),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadCSV creates one product per CSV row, owned by actor. Columns are
// matched by the header row. Either every row is stored or none is.
func (s *Service) UploadCSV(ctx context.Context, actor *account.Actor, r io.Reader) ([]domain.Product, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}

	inputs, err := parseProductsCSV(r)
	if err != nil {
		return nil, err
	}

	fields := make([]domain.ProductFields, 0, len(inputs))
	for i, in := range inputs {
		if err := toValidationError(in.Validate()); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, prefixFields(verr, fmt.Sprintf("row %d: ", i+2))
			}
			return nil, err
		}
		fields = append(fields, in.fields())
	}

	return s.products.CreateMany(ctx, fields, actor.ID)
}

func parseProductsCSV(r io.Reader) ([]ProductInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"file": err.Error()}}
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, &ValidationError{Fields: map[string]string{"file": "missing name column"}}
	}

	cell := func(record []string, column string) string {
		i, ok := columns[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var inputs []ProductInput
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ValidationError{Fields: map[string]string{"file": err.Error()}}
		}

		in := ProductInput{
			Name:        cell(record, "name"),
			Description: cell(record, "description"),
			Price:       json.Number(cell(record, "price")),
		}
		if d := cell(record, "discount"); d != "" {
			discount, err := strconv.Atoi(d)
			if err != nil {
				return nil, &ValidationError{Fields: map[string]string{
					fmt.Sprintf("row %d: discount", line): "must be a whole number",
				}}
			}
			in.Discount = discount
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func prefixFields(verr *ValidationError, prefix string) *ValidationError {
	fields := make(map[string]string, len(verr.Fields))
	for k, v := range verr.Fields {
		fields[prefix+k] = v
	}
	return &ValidationError{Fields: fields}
}
