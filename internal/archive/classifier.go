// Package archive detects and unpacks the archive formats curators upload:
// a bare PDF, a tar (optionally gzip/bzip2 compressed), a zip, or a single
// gzipped file. Members are classified as main documents (top-level) or
// supplements (nested) based on their path inside the archive.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyArchive is returned for a zero-byte upload.
	ErrEmptyArchive = errors.New("archive is empty")
	// ErrUnsupportedFormat is returned when no supported format matches.
	ErrUnsupportedFormat = errors.New("archive format not supported: expected PDF, tar, tgz, zip, or gz")
)

// ExtractedFile pairs an on-disk path with the main/supplement decision for
// one archive member.
type ExtractedFile struct {
	Path   string
	IsMain bool
}

// Report summarizes an archive without extracting it. The preview lists are
// truncated to the first ten entries.
type Report struct {
	Valid              bool     `json:"valid"`
	TotalFiles         int      `json:"total_files"`
	MainFiles          int      `json:"main_files"`
	SupplementFiles    int      `json:"supplement_files"`
	MainFileList       []string `json:"main_file_list"`
	SupplementFileList []string `json:"supplement_file_list"`
	Error              string   `json:"error,omitempty"`
}

// member is one retained archive entry. origRel is the path inside the
// archive and decides main vs supplement; destRel is the (possibly
// root-stripped) path written to disk.
type member struct {
	origRel string
	destRel string
	data    []byte
}

func (m member) isMain() bool {
	return len(strings.Split(m.origRel, "/")) == 1
}

const pdfSignature = "%PDF-"

// scan detects the archive format and returns the retained members. Both
// extraction and validation run through scan so their counts always agree.
func scan(data []byte, originalName string) ([]member, error) {
	if len(data) == 0 {
		return nil, ErrEmptyArchive
	}

	if bytes.HasPrefix(data, []byte(pdfSignature)) {
		name := filepath.Base(originalName)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "file.pdf"
		}
		return []member{{origRel: name, destRel: name, data: data}}, nil
	}

	if members, claimed, err := scanTar(data); claimed {
		if err != nil {
			return nil, err
		}
		return stripCommonRoot(members), nil
	}
	if members, claimed, err := scanZip(data); claimed {
		if err != nil {
			return nil, err
		}
		return stripCommonRoot(members), nil
	}
	if m, ok := scanGzip(data, originalName); ok {
		return []member{m}, nil
	}
	return nil, ErrUnsupportedFormat
}

// scanTar tries the tar family with automatic compression detection. The
// format is claimed once at least one regular file header is read, even if
// every member turns out to be skippable metadata.
func scanTar(data []byte) ([]member, bool, error) {
	var reader io.Reader = bytes.NewReader(data)
	switch {
	case len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, nil
		}
		reader = gz
	case len(data) > 3 && data[0] == 'B' && data[1] == 'Z' && data[2] == 'h':
		reader = bzip2.NewReader(bytes.NewReader(data))
	}

	tr := tar.NewReader(reader)
	var members []member
	claimed := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if claimed {
				return nil, true, fmt.Errorf("read tar archive: %w", err)
			}
			return nil, false, nil
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		claimed = true
		rel, ok := cleanRel(hdr.Name)
		if !ok {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, true, fmt.Errorf("read tar member %s: %w", hdr.Name, err)
		}
		members = append(members, member{origRel: rel, destRel: rel, data: content})
	}
	return members, claimed, nil
}

// scanZip claims the zip format when the central directory parses and holds
// at least one non-directory entry.
func scanZip(data []byte) ([]member, bool, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, nil
	}
	var members []member
	claimed := false
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		claimed = true
		rel, ok := cleanRel(f.Name)
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("open zip member %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, true, fmt.Errorf("read zip member %s: %w", f.Name, err)
		}
		members = append(members, member{origRel: rel, destRel: rel, data: content})
	}
	return members, claimed, nil
}

// scanGzip handles a single gzipped file that is not a tar.
func scanGzip(data []byte, originalName string) (member, bool) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return member{}, false
	}
	defer gz.Close()
	content, err := io.ReadAll(gz)
	if err != nil {
		return member{}, false
	}
	name := gz.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(originalName), ".gz")
		if name == "" || name == "." {
			name = "file"
		}
	}
	return member{origRel: name, destRel: name, data: content}, true
}

// cleanRel normalizes an archive entry name to a forward-slash relative path
// and reports whether the entry should be retained. Metadata entries
// (__MACOSX payloads, .DS_Store, AppleDouble "._" files, hidden dotfiles)
// and paths escaping the extraction root are skipped.
func cleanRel(name string) (string, bool) {
	rel := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		return "", false
	}
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		if p == ".." {
			log.Printf("skipping archive entry with unsafe path: %s", name)
			return "", false
		}
		if i == 0 && p == "__MACOSX" {
			return "", false
		}
		if strings.HasPrefix(p, ".") {
			return "", false
		}
	}
	return rel, true
}

// stripCommonRoot removes a single shared top-level folder from every
// destination path. The folder must look like a directory (no extension) and
// every member must sit beneath it. Classification still uses the original
// paths, so main/supplement decisions are unaffected.
func stripCommonRoot(members []member) []member {
	if len(members) == 0 {
		return members
	}
	root := ""
	for _, m := range members {
		parts := strings.Split(m.origRel, "/")
		if len(parts) < 2 {
			return members
		}
		if root == "" {
			root = parts[0]
		} else if parts[0] != root {
			return members
		}
	}
	if path.Ext(root) != "" {
		return members
	}
	for i := range members {
		members[i].destRel = strings.TrimPrefix(members[i].origRel, root+"/")
	}
	return members
}

// ExtractAndClassify unpacks archiveData into targetDir and returns each
// written file tagged with the main/supplement decision. targetDir must
// already exist; subdirectories are created as needed.
func ExtractAndClassify(archiveData []byte, targetDir, originalName string) ([]ExtractedFile, error) {
	members, err := scan(archiveData, originalName)
	if err != nil {
		return nil, err
	}
	out := make([]ExtractedFile, 0, len(members))
	for _, m := range members {
		dest := filepath.Join(targetDir, filepath.FromSlash(m.destRel))
		if dir := filepath.Dir(dest); dir != targetDir {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create directory for %s: %w", m.destRel, err)
			}
		}
		if err := os.WriteFile(dest, m.data, 0o640); err != nil {
			return nil, fmt.Errorf("write %s: %w", m.destRel, err)
		}
		out = append(out, ExtractedFile{Path: dest, IsMain: m.isMain()})
	}
	return out, nil
}

// Validate runs the same detection and classification as ExtractAndClassify
// without touching the filesystem, for pre-flight checks.
func Validate(archiveData []byte) Report {
	members, err := scan(archiveData, "")
	if err != nil {
		return Report{
			Valid:              false,
			Error:              err.Error(),
			MainFileList:       []string{},
			SupplementFileList: []string{},
		}
	}
	report := Report{
		Valid:              true,
		TotalFiles:         len(members),
		MainFileList:       []string{},
		SupplementFileList: []string{},
	}
	for _, m := range members {
		if m.isMain() {
			report.MainFiles++
			if len(report.MainFileList) < 10 {
				report.MainFileList = append(report.MainFileList, m.destRel)
			}
		} else {
			report.SupplementFiles++
			if len(report.SupplementFileList) < 10 {
				report.SupplementFileList = append(report.SupplementFileList, m.destRel)
			}
		}
	}
	return report
}
