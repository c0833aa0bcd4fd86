package importer_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shelfcircle/shelfcircle/app/entity"
	"github.com/shelfcircle/shelfcircle/app/importer"
)

// fakeBookRepo simulates the owner's persisted catalog and records batch
// inserts.
type fakeBookRepo struct {
	isbns        map[string]bool
	titleAuthors map[string]bool
	batches      [][]*entity.Book
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{
		isbns:        make(map[string]bool),
		titleAuthors: make(map[string]bool),
	}
}

func (r *fakeBookRepo) CreateBatch(_ context.Context, books []*entity.Book) error {
	r.batches = append(r.batches, books)
	for _, book := range books {
		if book.ISBN.Valid {
			r.isbns[book.ISBN.String] = true
		}
		r.titleAuthors[strings.ToLower(book.Title+"|"+book.Author)] = true
	}
	return nil
}

func (r *fakeBookRepo) ExistsByISBNForOwner(_ context.Context, _ uint64, isbn string) (bool, error) {
	return r.isbns[isbn], nil
}

func (r *fakeBookRepo) ExistsByTitleAuthorForOwner(_ context.Context, _ uint64, title, author string) (bool, error) {
	return r.titleAuthors[strings.ToLower(title+"|"+author)], nil
}

func csvFile(lines ...string) *bytes.Reader {
	return bytes.NewReader([]byte(strings.Join(lines, "\n")))
}

func TestIngest_CSVHappyPath(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	file := csvFile(
		"Nombre,Autor,Editorial,ISBN,Descripcion",
		"Rayuela,Julio Cortázar,Cátedra,978-84-376-0494-7,Edición anotada",
		"Ficciones,Jorge Luis Borges,,,",
	)

	result, err := imp.Ingest(context.Background(), file, "libros.csv", 1)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Duplicates)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "Rayuela", result.Created[0].Title)

	require.Len(t, repo.batches, 1, "all creations must land in one batch")
	batch := repo.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "9788437604947", batch[0].ISBN.String, "ISBN must be stored normalized")
	assert.Equal(t, entity.BookStateAvailable, batch[0].State)
	assert.False(t, batch[1].ISBN.Valid)
}

func TestIngest_SpanishAndEnglishHeadersAreEquivalent(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	// Accent folding: Título → titulo, and Escritor is an author synonym.
	file := csvFile(
		"Título,Escritor",
		"Dune,Frank Herbert",
	)

	result, err := imp.Ingest(context.Background(), file, "books.csv", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Created, 1)
}

func TestIngest_MissingMandatoryColumns(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	file := csvFile(
		"Obra,Creador",
		"Dune,Frank Herbert",
	)

	result, err := imp.Ingest(context.Background(), file, "books.csv", 1)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1, "exactly one top-level error")
	assert.Equal(t, 0, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "'Name' and 'Author'")
	assert.Zero(t, result.TotalRows)
	assert.Empty(t, result.Created)
	assert.Empty(t, repo.batches)
}

func TestIngest_IntraFileISBNRepeat(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	file := csvFile(
		"Nombre,Autor,ISBN",
		"Dune,Frank Herbert,9780441013593",
		"Dune,Frank Herbert,9780441013593",
	)

	result, err := imp.Ingest(context.Background(), file, "books.csv", 1)
	require.NoError(t, err)

	require.Len(t, result.Created, 1, "first row created")
	require.Len(t, result.Duplicates, 1, "exact repeat flagged, not inserted twice")
	dup := result.Duplicates[0]
	assert.Equal(t, 3, dup.Row)
	assert.Equal(t, importer.ReasonISBN, dup.Reason)
	assert.Equal(t, "Dune - Frank Herbert", dup.Book)

	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 1)
}

func TestIngest_ReIngestReportsEverythingDuplicate(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	lines := []string{
		"Nombre,Autor,ISBN",
		"Dune,Frank Herbert,9780441013593",
		"Ficciones,Jorge Luis Borges,",
	}

	first, err := imp.Ingest(context.Background(), csvFile(lines...), "books.csv", 1)
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	second, err := imp.Ingest(context.Background(), csvFile(lines...), "books.csv", 1)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	require.Len(t, second.Duplicates, 2)
	assert.Equal(t, importer.ReasonISBN, second.Duplicates[0].Reason)
	assert.Equal(t, importer.ReasonTitleAuthor, second.Duplicates[1].Reason, "ISBN-less rows fall back to the name+author pair")
}

func TestIngest_RowValidationAggregatesErrors(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	longName := strings.Repeat("x", 256)
	file := csvFile(
		"Nombre,Autor",
		longName+",Frank Herbert",
		",",
		"Dune,",
	)

	result, err := imp.Ingest(context.Background(), file, "books.csv", 1)
	require.NoError(t, err)

	assert.Empty(t, result.Created)
	// Row 3 is entirely blank and skipped without counting.
	assert.Equal(t, 2, result.TotalRows)
	require.Len(t, result.Errors, 2)

	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "exceeds 255 characters")

	assert.Equal(t, 4, result.Errors[1].Row)
	assert.Contains(t, result.Errors[1].Message, "'Author' field is required")
}

func TestIngest_LengthLimitCountsCharactersNotBytes(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	// 150 characters but 300 UTF-8 bytes: within the 255-character limit.
	// 256 characters is over it regardless of encoding.
	file := csvFile(
		"Nombre,Autor",
		strings.Repeat("á", 150)+",Frank Herbert",
		strings.Repeat("é", 256)+",Frank Herbert",
	)

	result, err := imp.Ingest(context.Background(), file, "books.csv", 1)
	require.NoError(t, err)

	require.Len(t, result.Created, 1, "the accented title within the limit must import")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "exceeds 255 characters")
}

func TestIngest_MultipleViolationsJoinedInOneMessage(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	file := csvFile(
		"Nombre,Autor,ISBN",
		",,12345678901234",
	)

	result, err := imp.Ingest(context.Background(), file, "books.csv", 1)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	msg := result.Errors[0].Message
	assert.Contains(t, msg, "'Name' field is required")
	assert.Contains(t, msg, "'Author' field is required")
	assert.Contains(t, msg, "ISBN exceeds 13 characters")
	assert.Equal(t, 2, strings.Count(msg, "; "), "violations joined with '; '")
}

func TestIngest_UnsupportedFormat(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	result, err := imp.Ingest(context.Background(), strings.NewReader("whatever"), "books.pdf", 1)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 0, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "could not process the file")
}

func TestIngest_EmptyFile(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	result, err := imp.Ingest(context.Background(), strings.NewReader(""), "books.csv", 1)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "empty")
}

func TestIngest_CSVWithBOM(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF})
	buf.WriteString("Nombre,Autor\nDune,Frank Herbert\n")

	result, err := imp.Ingest(context.Background(), &buf, "books.csv", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Created, 1)
}

func TestIngest_XLSX(t *testing.T) {
	repo := newFakeBookRepo()
	imp := importer.New(repo)

	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	require.NoError(t, workbook.SetSheetRow(sheet, "A1", &[]any{"Name", "Author", "ISBN"}))
	require.NoError(t, workbook.SetSheetRow(sheet, "A2", &[]any{"Dune", "Frank Herbert", "9780441013593"}))
	buf, err := workbook.WriteToBuffer()
	require.NoError(t, err)

	result, err := imp.Ingest(context.Background(), buf, "books.xlsx", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "Dune", result.Created[0].Title)
}

func TestTemplate_RoundTripsThroughIngest(t *testing.T) {
	data, err := importer.Template()
	require.NoError(t, err)

	repo := newFakeBookRepo()
	imp := importer.New(repo)

	result, err := imp.Ingest(context.Background(), bytes.NewReader(data), "template.xlsx", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Errors, "the downloadable template must be ingestable as-is")
	assert.NotEmpty(t, result.Created, "the example rows should import")
}
