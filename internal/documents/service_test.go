package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	localstore "github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/object/local"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dealsRepo := deals.NewMemoryRepo()
	if err := dealsRepo.Create(context.Background(), deals.Deal{
		ID: "d1", UserID: "u1", CompanyName: "Acme Robotics",
	}); err != nil {
		t.Fatalf("create deal: %v", err)
	}
	svc := &Service{
		Store: localstore.New(t.TempDir()),
		Repo:  NewMemoryRepo(),
		Deals: dealsRepo,
	}
	return svc, "d1"
}

func docxBytes(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	doc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestUploadExtractsDocxText(t *testing.T) {
	svc, dealID := newTestService(t)

	doc, err := svc.Upload(context.Background(), "u1", dealID, "deck.docx", bytes.NewReader(docxBytes(t, "Pitch deck contents")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.ID == "" || doc.StorageKey == "" {
		t.Fatalf("incomplete document: %+v", doc)
	}
	if !strings.Contains(doc.ExtractedText, "Pitch deck contents") {
		t.Fatalf("extracted text = %q", doc.ExtractedText)
	}

	combined, err := svc.CombinedText(context.Background(), dealID)
	if err != nil {
		t.Fatalf("combined: %v", err)
	}
	if !strings.Contains(combined, "Pitch deck contents") {
		t.Fatalf("combined text = %q", combined)
	}
}

func TestUploadUnsupportedTypeStillRecorded(t *testing.T) {
	svc, dealID := newTestService(t)

	doc, err := svc.Upload(context.Background(), "u1", dealID, "notes.txt", strings.NewReader("plain text notes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.ExtractedText != "" {
		t.Fatalf("expected no extracted text for unsupported type, got %q", doc.ExtractedText)
	}

	ids, err := svc.ListIDsByDeal(context.Background(), dealID)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != doc.ID {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestUploadRequiresOwnedDeal(t *testing.T) {
	svc, dealID := newTestService(t)

	_, err := svc.Upload(context.Background(), "intruder", dealID, "deck.docx", bytes.NewReader(docxBytes(t, "x")))
	if !errors.Is(err, deals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = svc.Upload(context.Background(), "u1", "ghost", "deck.docx", bytes.NewReader(docxBytes(t, "x")))
	if !errors.Is(err, deals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown deal, got %v", err)
	}
}

func TestUploadRequiresFileName(t *testing.T) {
	svc, dealID := newTestService(t)
	_, err := svc.Upload(context.Background(), "u1", dealID, "", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListScopedToOwner(t *testing.T) {
	svc, dealID := newTestService(t)

	if _, err := svc.Upload(context.Background(), "u1", dealID, "deck.docx", bytes.NewReader(docxBytes(t, "x"))); err != nil {
		t.Fatalf("upload: %v", err)
	}

	list, err := svc.List(context.Background(), "u1", dealID, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}

	if _, err := svc.List(context.Background(), "intruder", dealID, 10, 0); !errors.Is(err, deals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign list, got %v", err)
	}
}

func TestCombinedTextJoinsInUploadOrder(t *testing.T) {
	svc, dealID := newTestService(t)

	for _, text := range []string{"first document", "second document"} {
		if _, err := svc.Upload(context.Background(), "u1", dealID, "doc.docx", bytes.NewReader(docxBytes(t, text))); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	combined, err := svc.CombinedText(context.Background(), dealID)
	if err != nil {
		t.Fatalf("combined: %v", err)
	}
	first := strings.Index(combined, "first document")
	second := strings.Index(combined, "second document")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("unexpected order: %q", combined)
	}
}
