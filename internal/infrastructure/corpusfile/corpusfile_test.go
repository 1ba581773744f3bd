package corpusfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

func TestReadCSVMapsColumnsByHeader(t *testing.T) {
	raw := "\ufeffpeople_involved,chunk_title,chunk_text\n\"Anne, Margot\",Foreword,intro text\n,\"SUNDAY, JUNE 14, 1942\",\"multi\nline\"\n"
	chunks, err := ReadCSV(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Title != "Foreword" || len(chunks[0].PeopleInvolved) != 2 || chunks[0].PeopleInvolved[1] != "Margot" {
		t.Fatalf("unexpected first chunk %+v", chunks[0])
	}
	if chunks[1].Text != "multi\nline" || chunks[1].PeopleInvolved != nil {
		t.Fatalf("unexpected second chunk %+v", chunks[1])
	}
}

func TestReadCSVRequiresColumns(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("title,text\na,b\n")); err == nil {
		t.Fatalf("expected missing column error")
	}
	if _, err := ReadCSV(strings.NewReader("chunk_title,chunk_text\n,b\n")); err == nil {
		t.Fatalf("expected empty title error")
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	chunks := []domain.Chunk{
		{Title: "Foreword", Text: "intro"},
		{Title: "Afterword", Text: "end", Description: "raid", PeopleInvolved: []string{"Miep", "Bep"}},
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, chunks); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	got, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadXLSX() error = %v", err)
	}
	if len(got) != 2 || got[1].Description != "raid" || len(got[1].PeopleInvolved) != 2 {
		t.Fatalf("unexpected chunks %+v", got)
	}
}

func TestReadFileDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "chunks.csv")
	if err := os.WriteFile(csvPath, []byte("chunk_title,chunk_text\nA,a\n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	chunks, err := ReadFile(csvPath)
	if err != nil || len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d (%v)", len(chunks), err)
	}

	txtPath := filepath.Join(dir, "chunks.txt")
	_ = os.WriteFile(txtPath, []byte("x"), 0o600)
	if _, err := ReadFile(txtPath); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
