package filename

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseMainCurieDerivation(t *testing.T) {
	cases := []struct {
		name      string
		mod       string
		wantCurie string
	}{
		{"12345_Doe2023.pdf", "WB", "WB:WBPaper12345"},
		{"12345678_Doe2023_html.html", "FB", "PMID:12345678"},
		{"12345678_Doe2023.pdf", "SGD", "PMID:12345678"},
		// 15-digit Alliance identifiers win regardless of MOD.
		{"123456789012345_X.pdf", "SGD", "AGRKB:123456789012345"},
		{"123456789012345_X.pdf", "WB", "AGRKB:123456789012345"},
		// MOD codes are case-insensitive.
		{"12345_Doe2023.pdf", "wb", "WB:WBPaper12345"},
		// Numbers-only fallback shape.
		{"99887.pdf", "ZFIN", "PMID:99887"},
	}
	for _, c := range cases {
		meta, err := ParseMain(c.name, c.mod)
		if err != nil {
			t.Fatalf("ParseMain(%q, %q): %v", c.name, c.mod, err)
		}
		if meta.ReferenceCurie != c.wantCurie {
			t.Errorf("ParseMain(%q, %q) curie = %q, want %q", c.name, c.mod, meta.ReferenceCurie, c.wantCurie)
		}
	}
}

func TestParseMainOptionsToken(t *testing.T) {
	cases := []struct {
		name       string
		wantStatus string
		wantType   string
	}{
		{"12345_Doe2023.pdf", StatusFinal, ""},
		{"12345_Doe2023_temp.pdf", StatusTemp, ""},
		{"12345_Doe2023_TEMP.pdf", StatusTemp, ""},
		{"12345_Doe2023_ocr.pdf", StatusFinal, "ocr"},
		{"12345_Doe2023_aut.pdf", StatusFinal, "aut"},
		{"12345_Doe2023_lib.pdf", StatusFinal, "lib"},
		{"12345_Doe2023_tif.tif", StatusFinal, "tif"},
		{"12345_Doe2023_html.html", StatusFinal, "html"},
		{"12345_Doe2023_htm.htm", StatusFinal, "html"},
		// Unrecognized options leave the defaults untouched.
		{"12345_Doe2023_whatever.pdf", StatusFinal, ""},
	}
	for _, c := range cases {
		meta, err := ParseMain(c.name, "FB")
		if err != nil {
			t.Fatalf("ParseMain(%q): %v", c.name, err)
		}
		if meta.FilePublicationStatus != c.wantStatus {
			t.Errorf("ParseMain(%q) status = %q, want %q", c.name, meta.FilePublicationStatus, c.wantStatus)
		}
		if meta.PDFType != c.wantType {
			t.Errorf("ParseMain(%q) pdf type = %q, want %q", c.name, meta.PDFType, c.wantType)
		}
	}
}

func TestParseMainFields(t *testing.T) {
	meta, err := ParseMain("12345_Doe2023_ocr.pdf", "FB")
	if err != nil {
		t.Fatalf("ParseMain: %v", err)
	}
	if meta.DisplayName != "12345_Doe2023_ocr" {
		t.Errorf("display name = %q", meta.DisplayName)
	}
	if meta.FileExtension != "pdf" {
		t.Errorf("extension = %q", meta.FileExtension)
	}
	if meta.FileClass != ClassMain {
		t.Errorf("file class = %q", meta.FileClass)
	}
	if meta.ModAbbreviation != "FB" {
		t.Errorf("mod = %q", meta.ModAbbreviation)
	}
	if meta.IsAnnotation {
		t.Error("is_annotation should be false")
	}
}

func TestParseMainUnparsable(t *testing.T) {
	_, err := ParseMain("not_a_match.pdf", "FB")
	if err == nil {
		t.Fatal("expected error for unparsable filename")
	}
	var parseErr *UnparsableFilenameError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected UnparsableFilenameError, got %T", err)
	}
	if parseErr.Filename != "not_a_match.pdf" {
		t.Errorf("error filename = %q", parseErr.Filename)
	}
}

func TestParseSupplement(t *testing.T) {
	meta := ParseSupplement("figure_S1.tif", "12345", "WB")
	if meta.ReferenceCurie != "WB:WBPaper12345" {
		t.Errorf("curie = %q", meta.ReferenceCurie)
	}
	if meta.FileClass != ClassSupplement {
		t.Errorf("file class = %q", meta.FileClass)
	}
	if meta.FilePublicationStatus != StatusFinal {
		t.Errorf("status = %q", meta.FilePublicationStatus)
	}
	if meta.PDFType != "" {
		t.Errorf("pdf type = %q, want empty", meta.PDFType)
	}
	if meta.DisplayName != "figure_S1" {
		t.Errorf("display name = %q", meta.DisplayName)
	}

	// 15-digit directory names resolve to Alliance identifiers.
	meta = ParseSupplement("data.xlsx", "123456789012345", "FB")
	if meta.ReferenceCurie != "AGRKB:123456789012345" {
		t.Errorf("curie = %q", meta.ReferenceCurie)
	}
}

func TestClassifyAndParse(t *testing.T) {
	root := t.TempDir()

	meta, err := ClassifyAndParse(filepath.Join(root, "12345_Doe2023.pdf"), root, "WB")
	if err != nil {
		t.Fatalf("top-level file: %v", err)
	}
	if meta.FileClass != ClassMain || meta.ReferenceCurie != "WB:WBPaper12345" {
		t.Errorf("main classification wrong: %+v", meta)
	}

	meta, err = ClassifyAndParse(filepath.Join(root, "67890", "suppl.xlsx"), root, "WB")
	if err != nil {
		t.Fatalf("nested file: %v", err)
	}
	if meta.FileClass != ClassSupplement || meta.ReferenceCurie != "WB:WBPaper67890" {
		t.Errorf("supplement classification wrong: %+v", meta)
	}
}

func TestClassifyAndParseWBFallback(t *testing.T) {
	root := t.TempDir()

	// WB downgrades an unparsable main filename to a synthesized CURIE.
	meta, err := ClassifyAndParse(filepath.Join(root, "not_a_match.pdf"), root, "WB")
	if err != nil {
		t.Fatalf("WB fallback should not error: %v", err)
	}
	if meta.ReferenceCurie != "WB:WBPapernot_a_match" {
		t.Errorf("fallback curie = %q", meta.ReferenceCurie)
	}
	if meta.FilePublicationStatus != StatusFinal {
		t.Errorf("fallback status = %q", meta.FilePublicationStatus)
	}

	// Every other MOD propagates the parse failure.
	if _, err := ClassifyAndParse(filepath.Join(root, "not_a_match.pdf"), root, "FB"); err == nil {
		t.Fatal("expected error for FB")
	}
}
