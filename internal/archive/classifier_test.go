package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write tar content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func extractedRelPaths(t *testing.T, files []ExtractedFile, root string) map[string]bool {
	t.Helper()
	out := make(map[string]bool, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			t.Fatalf("rel path: %v", err)
		}
		out[filepath.ToSlash(rel)] = f.IsMain
	}
	return out
}

func TestExtractTarGz(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"12345_Doe2023.pdf": "main content",
		"67890/suppl.xlsx":  "supplement content",
	})
	dir := t.TempDir()
	files, err := ExtractAndClassify(data, dir, "batch.tar.gz")
	if err != nil {
		t.Fatalf("ExtractAndClassify: %v", err)
	}
	got := extractedRelPaths(t, files, dir)
	if len(got) != 2 {
		t.Fatalf("extracted %d files, want 2: %v", len(got), got)
	}
	if isMain, ok := got["12345_Doe2023.pdf"]; !ok || !isMain {
		t.Errorf("top-level file should be main: %v", got)
	}
	if isMain, ok := got["67890/suppl.xlsx"]; !ok || isMain {
		t.Errorf("nested file should be supplement: %v", got)
	}
	content, err := os.ReadFile(filepath.Join(dir, "67890", "suppl.xlsx"))
	if err != nil {
		t.Fatalf("read extracted supplement: %v", err)
	}
	if string(content) != "supplement content" {
		t.Errorf("supplement content = %q", content)
	}
}

func TestExtractZip(t *testing.T) {
	data := buildZip(t, map[string]string{
		"11111_Smith2020.pdf": "a",
		"22222/figure.tif":    "b",
	})
	dir := t.TempDir()
	files, err := ExtractAndClassify(data, dir, "batch.zip")
	if err != nil {
		t.Fatalf("ExtractAndClassify: %v", err)
	}
	got := extractedRelPaths(t, files, dir)
	if isMain := got["11111_Smith2020.pdf"]; !isMain {
		t.Errorf("expected main file: %v", got)
	}
	if isMain, ok := got["22222/figure.tif"]; !ok || isMain {
		t.Errorf("expected supplement: %v", got)
	}
}

func TestExtractPDFPassthrough(t *testing.T) {
	data := []byte("%PDF-1.7 fake body")
	dir := t.TempDir()
	files, err := ExtractAndClassify(data, dir, "12345_Doe2023.pdf")
	if err != nil {
		t.Fatalf("ExtractAndClassify: %v", err)
	}
	if len(files) != 1 || !files[0].IsMain {
		t.Fatalf("expected one main file, got %+v", files)
	}
	content, err := os.ReadFile(filepath.Join(dir, "12345_Doe2023.pdf"))
	if err != nil {
		t.Fatalf("read written pdf: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Error("pdf bytes were not written verbatim")
	}
}

func TestExtractSingleGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("plain payload")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	dir := t.TempDir()
	files, err := ExtractAndClassify(buf.Bytes(), dir, "12345_Doe2023.pdf.gz")
	if err != nil {
		t.Fatalf("ExtractAndClassify: %v", err)
	}
	if len(files) != 1 || !files[0].IsMain {
		t.Fatalf("expected one main file, got %+v", files)
	}
	content, err := os.ReadFile(filepath.Join(dir, "12345_Doe2023.pdf"))
	if err != nil {
		t.Fatalf("read decompressed file: %v", err)
	}
	if string(content) != "plain payload" {
		t.Errorf("content = %q", content)
	}
}

func TestEmptyArchive(t *testing.T) {
	if _, err := ExtractAndClassify(nil, t.TempDir(), "x.zip"); !errors.Is(err, ErrEmptyArchive) {
		t.Fatalf("expected ErrEmptyArchive, got %v", err)
	}
	report := Validate(nil)
	if report.Valid {
		t.Error("empty archive should not validate")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	data := []byte("this is not an archive of any supported kind")
	if _, err := ExtractAndClassify(data, t.TempDir(), "x.bin"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	report := Validate(data)
	if report.Valid || report.Error == "" {
		t.Errorf("expected invalid report with error, got %+v", report)
	}
}

func TestMetadataEntriesSkipped(t *testing.T) {
	data := buildZip(t, map[string]string{
		"12345_Doe2023.pdf":  "real",
		"__MACOSX/12345.pdf": "junk",
		".DS_Store":          "junk",
		"67890/._figure.tif": "junk",
		".hidden":            "junk",
		"67890/.DS_Store":    "junk",
	})
	report := Validate(data)
	if report.TotalFiles != 1 || report.MainFiles != 1 || report.SupplementFiles != 0 {
		t.Fatalf("report = %+v, want exactly one main file", report)
	}
	dir := t.TempDir()
	files, err := ExtractAndClassify(data, dir, "batch.zip")
	if err != nil {
		t.Fatalf("ExtractAndClassify: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("extracted %d files, want 1", len(files))
	}
}

func TestRootFolderStripping(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"batch/12345_Doe2023.pdf": "a",
		"batch/67890/suppl.xlsx":  "b",
	})
	dir := t.TempDir()
	files, err := ExtractAndClassify(data, dir, "batch.tgz")
	if err != nil {
		t.Fatalf("ExtractAndClassify: %v", err)
	}
	got := extractedRelPaths(t, files, dir)
	for rel := range got {
		if filepath.ToSlash(rel) == "batch/12345_Doe2023.pdf" {
			t.Errorf("root folder was not stripped: %v", got)
		}
	}
	if _, ok := got["12345_Doe2023.pdf"]; !ok {
		t.Fatalf("stripped path missing: %v", got)
	}
	// Classification is decided from the original in-archive path, so every
	// member of a wrapped archive is nested.
	if got["12345_Doe2023.pdf"] {
		t.Error("member under a root folder should classify as supplement")
	}

	// A shared top-level name with an extension is a file, not a wrapper
	// folder, so nothing is stripped.
	noStrip := buildTarGz(t, map[string]string{
		"data.d/one.pdf": "a",
		"data.d/two.pdf": "b",
	})
	report := Validate(noStrip)
	if len(report.SupplementFileList) == 0 || report.SupplementFileList[0] != "data.d/one.pdf" {
		t.Errorf("extension-bearing root should not be stripped: %+v", report)
	}
}

func TestValidateMatchesExtraction(t *testing.T) {
	data := buildZip(t, map[string]string{
		"11111_A2020.pdf":  "a",
		"22222_B2021.pdf":  "b",
		"33333/suppl.xlsx": "c",
		"__MACOSX/x.pdf":   "junk",
	})

	report1 := Validate(data)
	report2 := Validate(data)
	if report1.TotalFiles != report2.TotalFiles || report1.MainFiles != report2.MainFiles {
		t.Fatalf("validation is not idempotent: %+v vs %+v", report1, report2)
	}

	dirA := t.TempDir()
	filesA, err := ExtractAndClassify(data, dirA, "batch.zip")
	if err != nil {
		t.Fatalf("extract A: %v", err)
	}
	dirB := t.TempDir()
	filesB, err := ExtractAndClassify(data, dirB, "batch.zip")
	if err != nil {
		t.Fatalf("extract B: %v", err)
	}

	gotA := extractedRelPaths(t, filesA, dirA)
	gotB := extractedRelPaths(t, filesB, dirB)
	if len(gotA) != len(gotB) {
		t.Fatalf("extraction not deterministic: %v vs %v", gotA, gotB)
	}
	for rel, isMain := range gotA {
		if gotB[rel] != isMain {
			t.Errorf("classification differs for %s", rel)
		}
	}

	if report1.TotalFiles != len(filesA) {
		t.Errorf("validation counted %d files but extraction produced %d", report1.TotalFiles, len(filesA))
	}
	mains := 0
	for _, f := range filesA {
		if f.IsMain {
			mains++
		}
	}
	if report1.MainFiles != mains {
		t.Errorf("validation counted %d mains but extraction produced %d", report1.MainFiles, mains)
	}
}
