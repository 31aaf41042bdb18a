// Package filename parses bibliographic metadata out of upload filenames
// using the per-MOD naming conventions curators follow when preparing
// archives. A main file is named for the reference it belongs to, e.g.
// "12345_Doe2023_ocr.pdf"; a supplement inherits its reference from the
// directory it sits in.
package filename

import (
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strings"
)

// File classes recognized by the reference store.
const (
	ClassMain       = "main"
	ClassSupplement = "supplement"
)

// Publication statuses derived from the options token.
const (
	StatusFinal = "final"
	StatusTemp  = "temp"
)

// Metadata describes one file destined for the reference store.
type Metadata struct {
	ReferenceCurie        string `json:"reference_curie"`
	DisplayName           string `json:"display_name"`
	FileExtension         string `json:"file_extension"`
	FileClass             string `json:"file_class"`
	FilePublicationStatus string `json:"file_publication_status"`
	PDFType               string `json:"pdf_type,omitempty"`
	ModAbbreviation       string `json:"mod_abbreviation"`
	IsAnnotation          bool   `json:"is_annotation"`
}

// UnparsableFilenameError reports a main filename that matches neither
// accepted shape.
type UnparsableFilenameError struct {
	Filename string
}

func (e *UnparsableFilenameError) Error() string {
	return fmt.Sprintf("filename %q does not match expected patterns: {number}_{author_year}[_{options}].{ext} or {number}.{ext}", e.Filename)
}

var (
	// {digits}_{author_year}[_{options}].{ext}; the options token keeps
	// any further underscores.
	mainWithDetailsRe = regexp.MustCompile(`^([0-9]+)_([^_]+)_?(.*)\..*$`)
	// {digits}.{ext}
	mainNumbersOnlyRe = regexp.MustCompile(`^([0-9]+)\..*$`)
)

// curieStrategy converts a bare reference identifier into a CURIE.
type curieStrategy func(refID string) string

// Per-MOD identifier conventions. Most MODs (FB, SGD, MGI, RGD, ZFIN, XB)
// key main files by PubMed ID, so PMID is the default; WormBase uses its
// own paper numbering.
var curieStrategies = map[string]curieStrategy{
	"WB": func(refID string) string { return "WB:WBPaper" + refID },
}

func defaultCurieStrategy(refID string) string { return "PMID:" + refID }

// curieForReference applies the 15-digit Alliance-wide rule before any
// MOD-specific convention.
func curieForReference(refID, modAbbreviation string) string {
	if len(refID) == 15 && isAllDigits(refID) {
		return "AGRKB:" + refID
	}
	if strategy, ok := curieStrategies[strings.ToUpper(modAbbreviation)]; ok {
		return strategy(refID)
	}
	return defaultCurieStrategy(refID)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitName returns the stem and the extension without its leading dot.
func splitName(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	return stem, strings.TrimPrefix(ext, ".")
}

// ParseMain parses a top-level filename into reference file metadata.
func ParseMain(name, modAbbreviation string) (Metadata, error) {
	stem, ext := splitName(name)

	var refID, options string
	if m := mainWithDetailsRe.FindStringSubmatch(name); m != nil {
		refID = m[1]
		options = m[3]
	} else if m := mainNumbersOnlyRe.FindStringSubmatch(name); m != nil {
		refID = m[1]
	} else {
		return Metadata{}, &UnparsableFilenameError{Filename: name}
	}

	status := StatusFinal
	pdfType := ""
	switch strings.ToLower(options) {
	case "temp":
		status = StatusTemp
	case "aut", "ocr", "lib", "tif":
		pdfType = strings.ToLower(options)
	case "html", "htm":
		pdfType = "html"
	}

	return Metadata{
		ReferenceCurie:        curieForReference(refID, modAbbreviation),
		DisplayName:           stem,
		FileExtension:         ext,
		FileClass:             ClassMain,
		FilePublicationStatus: status,
		PDFType:               pdfType,
		ModAbbreviation:       modAbbreviation,
	}, nil
}

// ParseSupplement parses a nested filename. The parent directory name is
// the reference identifier; supplements are always final and carry no
// rendering-type hint.
func ParseSupplement(name, parentDir, modAbbreviation string) Metadata {
	stem, ext := splitName(name)
	return Metadata{
		ReferenceCurie:        curieForReference(parentDir, modAbbreviation),
		DisplayName:           stem,
		FileExtension:         ext,
		FileClass:             ClassSupplement,
		FilePublicationStatus: StatusFinal,
		ModAbbreviation:       modAbbreviation,
	}
}

// ClassifyAndParse derives metadata for an extracted file from its position
// relative to the archive root: top-level files are mains, nested files are
// supplements keyed by their first path component.
//
// WormBase archives contain historical names that predate the grammar, so a
// failed main parse for WB falls back to a synthesized WBPaper CURIE instead
// of failing the file.
func ClassifyAndParse(filePath, archiveRoot, modAbbreviation string) (Metadata, error) {
	rel, err := filepath.Rel(archiveRoot, filePath)
	if err != nil {
		return Metadata{}, fmt.Errorf("relativize %s: %w", filePath, err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	name := parts[len(parts)-1]

	if len(parts) > 1 {
		return ParseSupplement(name, parts[0], modAbbreviation), nil
	}

	meta, err := ParseMain(name, modAbbreviation)
	if err != nil {
		if !strings.EqualFold(modAbbreviation, "WB") {
			return Metadata{}, err
		}
		stem, ext := splitName(name)
		log.Printf("filename %q does not match WB grammar, falling back to WB:WBPaper%s", name, stem)
		return Metadata{
			ReferenceCurie:        "WB:WBPaper" + stem,
			DisplayName:           stem,
			FileExtension:         ext,
			FileClass:             ClassMain,
			FilePublicationStatus: StatusFinal,
			ModAbbreviation:       modAbbreviation,
		}, nil
	}
	return meta, nil
}
