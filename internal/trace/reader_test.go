package trace

import (
	"errors"
	"strings"
	"testing"

	"portapak/internal/apperr"
)

const sampleXML = `<?xml version="1.0"?>
<TracedData>
  <Item Path="C:\Program Files\Acme\App" />
  <Item Path="C:/Program Files/Acme/App/acme.exe" />
  <Item Location="HKCU\Software\Acme" />
  <Entry Target="C:\Users\Public\Desktop\Acme.lnk" />
  <Service Name="AcmeSvc" />
  <Task Name="\Acme\Updater" />
  <Item Path="C:\Program Files\Acme\App" />
</TracedData>`

func parseSample(t *testing.T) []RawEntry {
	t.Helper()
	entries, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return entries
}

func TestParse_KindsAndOrder(t *testing.T) {
	entries := parseSample(t)
	want := []RawEntry{
		{Path: `C:\Program Files\Acme\App`, Kind: KindDirectory},
		{Path: `C:\Program Files\Acme\App\acme.exe`, Kind: KindFile},
		{Path: `HKCU\Software\Acme`, Kind: KindRegistryKey},
		{Path: `C:\Users\Public\Desktop\Acme.lnk`, Kind: KindFile},
		{Path: "AcmeSvc", Kind: KindService},
		{Path: `\Acme\Updater`, Kind: KindScheduledTask},
	}
	if len(entries) != len(want) {
		t.Fatalf("len = %d, want %d (%+v)", len(entries), len(want), entries)
	}
	for i, w := range want {
		if entries[i].Path != w.Path || entries[i].Kind != w.Kind {
			t.Errorf("entries[%d] = {%s %s}, want {%s %s}", i, entries[i].Path, entries[i].Kind, w.Path, w.Kind)
		}
	}
}

func TestParse_DeduplicatesFirstSeen(t *testing.T) {
	entries := parseSample(t)
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Path]++
	}
	if counts[`C:\Program Files\Acme\App`] != 1 {
		t.Errorf("duplicate path should appear once, got %d", counts[`C:\Program Files\Acme\App`])
	}
}

func TestParse_MalformedXML(t *testing.T) {
	_, err := Parse(strings.NewReader(`<TracedData><Item Path="C:\x"`))
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestParse_NoEntries(t *testing.T) {
	_, err := Parse(strings.NewReader(`<TracedData><Meta version="1"/></TracedData>`))
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		`  "C:/Program Files/Acme"  `: `C:\Program Files\Acme`,
		`D:`:                          `D:\`,
		`\\server\share\dir`:          `\\server\share\dir`,
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, err := Read("/nonexistent/trace.xml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
