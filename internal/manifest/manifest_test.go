package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"portapak/internal/apperr"
)

func TestManifest_RecordAndCounts(t *testing.T) {
	m := New("Acme", false)
	m.Record(Entry{Category: CategoryDirectory, Source: `C:\a`, Destination: `ProgramFiles/a`, Status: StatusCopied})
	m.Record(Entry{Category: CategoryRegistry, Source: `HKLM\S\Acme`, Destination: `Registry/HKLM_S_Acme.reg`, Status: StatusExported})
	m.Record(Entry{Category: CategoryFile, Source: `C:\missing`, Destination: `ProgramFiles/missing`, Status: StatusFailed, Detail: "source not found"})

	counts := m.Counts()
	if counts[StatusCopied] != 1 || counts[StatusExported] != 1 || counts[StatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if !m.Failed() {
		t.Error("Failed() should be true with a failed entry")
	}
}

func TestManifest_WriteReadRoundTrip(t *testing.T) {
	m := New("Acme", true)
	m.Record(Entry{Category: CategoryShortcut, Source: `C:\s.lnk`, Destination: "Shortcuts/s.lnk", Status: StatusSkipped, Detail: "dry run"})

	path := filepath.Join(t.TempDir(), FileName)
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.AppName != "Acme" || !got.DryRun || len(got.Entries) != 1 {
		t.Errorf("round trip = %+v", got)
	}
	if got.Entries[0].Status != StatusSkipped {
		t.Errorf("status = %q", got.Entries[0].Status)
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), FileName))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
