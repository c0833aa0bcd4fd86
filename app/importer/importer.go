// Package importer ingests spreadsheet files (xlsx or csv) into a user's
// book catalog: it discovers columns from the header row, validates each
// data row, skips duplicates of books the owner already has, and creates
// the survivors in one batch.
package importer

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

const (
	maxFieldLen = 255
	maxISBNLen  = 13

	// Duplicate reasons reported in Result.Duplicates.
	ReasonISBN        = "ISBN"
	ReasonTitleAuthor = "Name+Author"
)

type Result struct {
	Created    []BookSummary `json:"created"`
	Duplicates []Duplicate   `json:"duplicates"`
	Errors     []RowError    `json:"errors"`
	TotalRows  int           `json:"total_rows"`
}

type BookSummary struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type Duplicate struct {
	Row    int    `json:"row"`
	Book   string `json:"book"`
	Reason string `json:"reason"`
}

// RowError aggregates every rule a row violated into one message. Row 0
// marks a file-level failure.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type bookRepository interface {
	CreateBatch(ctx context.Context, books []*entity.Book) error
	ExistsByISBNForOwner(ctx context.Context, ownerID uint64, isbn string) (bool, error)
	ExistsByTitleAuthorForOwner(ctx context.Context, ownerID uint64, title, author string) (bool, error)
}

type Importer struct {
	bookRepo bookRepository
	now      func() time.Time
}

func New(bookRepo bookRepository) *Importer {
	return &Importer{bookRepo: bookRepo, now: time.Now}
}

// Ingest processes the file and reports per-row outcomes. File-level
// failures (unreadable format, missing mandatory columns) surface as a
// single row-0 error; the error return is reserved for storage failures.
func (imp *Importer) Ingest(ctx context.Context, file io.Reader, filename string, ownerID uint64) (*Result, error) {
	result := &Result{
		Created:    []BookSummary{},
		Duplicates: []Duplicate{},
		Errors:     []RowError{},
	}

	rows, err := readRows(file, filename)
	if err != nil {
		result.Errors = append(result.Errors, RowError{
			Row:     0,
			Message: fmt.Sprintf("could not process the file: %s", err.Error()),
		})
		return result, nil
	}
	if len(rows) == 0 {
		result.Errors = append(result.Errors, RowError{
			Row:     0,
			Message: "the file is empty",
		})
		return result, nil
	}

	columns := discoverColumns(rows[0])
	if _, ok := columns[fieldTitle]; !ok {
		return missingColumnsResult(result), nil
	}
	if _, ok := columns[fieldAuthor]; !ok {
		return missingColumnsResult(result), nil
	}

	var pending []*entity.Book
	seen := newBatchIndex()
	now := imp.now()

	// Row numbers are reported 1-indexed with the header as row 1.
	for i, row := range rows[1:] {
		rowNum := i + 2
		if blankRow(row) {
			continue
		}
		result.TotalRows++

		data, rowErrs := validateRow(row, columns, rowNum)
		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, RowError{
				Row:     rowNum,
				Message: strings.Join(rowErrs, "; "),
			})
			continue
		}

		reason, err := imp.duplicateReason(ctx, ownerID, data, seen)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			result.Duplicates = append(result.Duplicates, Duplicate{
				Row:    rowNum,
				Book:   data.title + " - " + data.author,
				Reason: reason,
			})
			continue
		}

		seen.add(data)
		pending = append(pending, data.toBook(ownerID, now))
	}

	if len(pending) > 0 {
		if err := imp.bookRepo.CreateBatch(ctx, pending); err != nil {
			return nil, err
		}
		for _, book := range pending {
			result.Created = append(result.Created, BookSummary{
				Title:  book.Title,
				Author: book.Author,
			})
		}
		logrus.WithFields(logrus.Fields{
			"owner_id": ownerID,
			"created":  len(pending),
		}).Info("Bulk import batch created")
	}

	return result, nil
}

// duplicateReason checks the owner's persisted catalog and the rows already
// queued from this same file. ISBN wins over the name+author pair.
func (imp *Importer) duplicateReason(ctx context.Context, ownerID uint64, data rowData, seen *batchIndex) (string, error) {
	if data.isbn != "" {
		if seen.hasISBN(data.isbn) {
			return ReasonISBN, nil
		}
		exists, err := imp.bookRepo.ExistsByISBNForOwner(ctx, ownerID, data.isbn)
		if err != nil {
			return "", err
		}
		if exists {
			return ReasonISBN, nil
		}
	}

	if seen.hasTitleAuthor(data.title, data.author) {
		return ReasonTitleAuthor, nil
	}
	exists, err := imp.bookRepo.ExistsByTitleAuthorForOwner(ctx, ownerID, data.title, data.author)
	if err != nil {
		return "", err
	}
	if exists {
		return ReasonTitleAuthor, nil
	}

	return "", nil
}

type field string

const (
	fieldTitle       field = "title"
	fieldAuthor      field = "author"
	fieldPublisher   field = "publisher"
	fieldISBN        field = "isbn"
	fieldDescription field = "description"
)

var headerSynonyms = map[field][]string{
	fieldTitle:       {"nombre", "titulo", "title", "libro", "name"},
	fieldAuthor:      {"autor", "author", "escritor"},
	fieldPublisher:   {"editorial", "publisher", "editora"},
	fieldISBN:        {"isbn"},
	fieldDescription: {"descripcion", "description", "comentario", "comentarios"},
}

// discoverColumns maps logical fields to column indexes by normalized
// header text. Column order in the file is irrelevant.
func discoverColumns(header []string) map[field]int {
	columns := make(map[field]int)
	for idx, cell := range header {
		normalized := normalizeHeader(cell)
		if normalized == "" {
			continue
		}
		for f, synonyms := range headerSynonyms {
			if _, taken := columns[f]; taken {
				continue
			}
			for _, synonym := range synonyms {
				if normalized == synonym {
					columns[f] = idx
					break
				}
			}
		}
	}
	return columns
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeHeader lowercases, trims and folds accented characters so
// "Título" matches "titulo".
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return folded
}

type rowData struct {
	title       string
	author      string
	publisher   string
	isbn        string
	description string
}

func validateRow(row []string, columns map[field]int, rowNum int) (rowData, []string) {
	var data rowData
	var errs []string

	title := strings.TrimSpace(cell(row, columns, fieldTitle))
	switch {
	case title == "":
		errs = append(errs, fmt.Sprintf("row %d: the 'Name' field is required", rowNum))
	// Limits count characters, not bytes: the columns are utf8mb4 and an
	// accented title occupies more bytes than characters.
	case utf8.RuneCountInString(title) > maxFieldLen:
		errs = append(errs, fmt.Sprintf("row %d: the name exceeds %d characters", rowNum, maxFieldLen))
	default:
		data.title = title
	}

	author := strings.TrimSpace(cell(row, columns, fieldAuthor))
	switch {
	case author == "":
		errs = append(errs, fmt.Sprintf("row %d: the 'Author' field is required", rowNum))
	case utf8.RuneCountInString(author) > maxFieldLen:
		errs = append(errs, fmt.Sprintf("row %d: the author exceeds %d characters", rowNum, maxFieldLen))
	default:
		data.author = author
	}

	if publisher := strings.TrimSpace(cell(row, columns, fieldPublisher)); publisher != "" {
		if utf8.RuneCountInString(publisher) > maxFieldLen {
			errs = append(errs, fmt.Sprintf("row %d: the publisher exceeds %d characters", rowNum, maxFieldLen))
		} else {
			data.publisher = publisher
		}
	}

	if isbn := normalizeISBN(cell(row, columns, fieldISBN)); isbn != "" {
		if utf8.RuneCountInString(isbn) > maxISBNLen {
			errs = append(errs, fmt.Sprintf("row %d: the ISBN exceeds %d characters", rowNum, maxISBNLen))
		} else {
			data.isbn = isbn
		}
	}

	if description := strings.TrimSpace(cell(row, columns, fieldDescription)); description != "" {
		data.description = description
	}

	return data, errs
}

func (d rowData) toBook(ownerID uint64, now time.Time) *entity.Book {
	book := &entity.Book{
		OwnerID:   ownerID,
		Title:     d.title,
		Author:    d.author,
		State:     entity.BookStateAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d.publisher != "" {
		book.Publisher = sql.NullString{String: d.publisher, Valid: true}
	}
	if d.isbn != "" {
		book.ISBN = sql.NullString{String: d.isbn, Valid: true}
	}
	if d.description != "" {
		book.Description = sql.NullString{String: d.description, Valid: true}
	}
	return book
}

// batchIndex tracks rows already queued from the current file so an exact
// repeat inside one upload is flagged as a duplicate instead of tripping
// the unique ISBN constraint at batch time.
type batchIndex struct {
	isbns        map[string]struct{}
	titleAuthors map[string]struct{}
}

func newBatchIndex() *batchIndex {
	return &batchIndex{
		isbns:        make(map[string]struct{}),
		titleAuthors: make(map[string]struct{}),
	}
}

func (b *batchIndex) add(d rowData) {
	if d.isbn != "" {
		b.isbns[d.isbn] = struct{}{}
	}
	b.titleAuthors[titleAuthorKey(d.title, d.author)] = struct{}{}
}

func (b *batchIndex) hasISBN(isbn string) bool {
	_, ok := b.isbns[isbn]
	return ok
}

func (b *batchIndex) hasTitleAuthor(title, author string) bool {
	_, ok := b.titleAuthors[titleAuthorKey(title, author)]
	return ok
}

func titleAuthorKey(title, author string) string {
	return strings.ToLower(title) + "\x00" + strings.ToLower(author)
}

func cell(row []string, columns map[field]int, f field) string {
	idx, ok := columns[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func normalizeISBN(isbn string) string {
	isbn = strings.TrimSpace(isbn)
	isbn = strings.ReplaceAll(isbn, "-", "")
	return strings.ReplaceAll(isbn, " ", "")
}

func missingColumnsResult(result *Result) *Result {
	result.Errors = append(result.Errors, RowError{
		Row:     0,
		Message: "the mandatory 'Name' and 'Author' columns were not found in the first row",
	})
	return result
}

// readRows loads the whole file as rows of strings. The format is chosen by
// extension: .xlsx or .csv.
func readRows(file io.Reader, filename string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return readXLSX(file)
	case ".csv":
		return readCSV(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q (only .xlsx and .csv are accepted)", filepath.Ext(filename))
	}
}

func readXLSX(file io.Reader) ([][]string, error) {
	workbook, err := excelize.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("the workbook has no sheets")
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func readCSV(file io.Reader) ([][]string, error) {
	reader := csv.NewReader(stripBOM(file))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return rows, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(file io.Reader) io.Reader {
	buffered := make([]byte, 3)
	n, _ := io.ReadFull(file, buffered)
	head := buffered[:n]
	if bytes.Equal(head, utf8BOM) {
		return file
	}
	return io.MultiReader(bytes.NewReader(head), file)
}
