package referencestore

import (
	"testing"

	"github.com/alliancegenome/litupload/internal/filename"
)

func TestObjectKey(t *testing.T) {
	s := &Store{}
	tests := []struct {
		name string
		meta filename.Metadata
		want string
	}{
		{
			name: "main pdf",
			meta: filename.Metadata{
				ReferenceCurie: "WB:WBPaper12345",
				DisplayName:    "12345_Doe2023",
				FileExtension:  "pdf",
				FileClass:      filename.ClassMain,
			},
			want: "reference/WB_WBPaper12345/main/12345_Doe2023.pdf",
		},
		{
			name: "supplement without extension",
			meta: filename.Metadata{
				ReferenceCurie: "PMID:999",
				DisplayName:    "README",
				FileClass:      filename.ClassSupplement,
			},
			want: "reference/PMID_999/supplement/README",
		},
		{
			name: "agrkb curie",
			meta: filename.Metadata{
				ReferenceCurie: "AGRKB:101000000000001",
				DisplayName:    "101000000000001",
				FileExtension:  "pdf",
				FileClass:      filename.ClassMain,
			},
			want: "reference/AGRKB_101000000000001/main/101000000000001.pdf",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.objectKey(tc.meta); got != tc.want {
				t.Errorf("objectKey = %q, want %q", got, tc.want)
			}
		})
	}
}
