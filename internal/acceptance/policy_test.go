package acceptance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentPolicy_Validate(t *testing.T) {
	testCases := []struct {
		name       string
		candidate  Candidate
		wantReject bool
		wantSize   string
	}{
		{
			name:      "pdf under limit",
			candidate: Candidate{Name: "card.pdf", Size: 3 * MB, Type: MimePDF},
		},
		{
			name:      "png at exact limit",
			candidate: Candidate{Name: "scan.png", Size: 10 * MB, Type: MimePNG},
		},
		{
			name:      "docx resolved by extension",
			candidate: Candidate{Name: "history.docx", Size: 512 * 1024, Type: ""},
		},
		{
			name:      "jpeg with charset parameter",
			candidate: Candidate{Name: "photo.jpg", Size: 1024, Type: "image/jpeg; charset=binary"},
		},
		{
			name:       "oversized doc",
			candidate:  Candidate{Name: "records.doc", Size: 12 * MB, Type: MimeDOC},
			wantReject: true,
			wantSize:   "12.0MB",
		},
		{
			name:       "unsupported text file",
			candidate:  Candidate{Name: "notes.txt", Size: MB / 2, Type: "text/plain"},
			wantReject: true,
			wantSize:   "0.5MB",
		},
		{
			name:       "octet stream with unknown extension",
			candidate:  Candidate{Name: "blob.bin", Size: 1536 * 1024, Type: "application/octet-stream"},
			wantReject: true,
			wantSize:   "1.5MB",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rejection := DocumentPolicy.Validate(tc.candidate)
			if !tc.wantReject {
				assert.Nil(t, rejection)
				return
			}
			require.NotNil(t, rejection)
			assert.Contains(t, rejection.Reason, tc.wantSize)
			assert.Contains(t, rejection.Reason, tc.candidate.Name)
		})
	}
}

func TestProfilePicturePolicy_Validate(t *testing.T) {
	assert.Nil(t, ProfilePicturePolicy.Validate(Candidate{Name: "rex.webp", Size: MB, Type: "image/webp"}))

	rejection := ProfilePicturePolicy.Validate(Candidate{Name: "rex.png", Size: 6 * MB, Type: MimePNG})
	require.NotNil(t, rejection)
	assert.Contains(t, rejection.Reason, "6.0MB")
	assert.Contains(t, rejection.Reason, "5MB")

	rejection = ProfilePicturePolicy.Validate(Candidate{Name: "rex.pdf", Size: MB, Type: MimePDF})
	require.NotNil(t, rejection)
	assert.Contains(t, rejection.Reason, "images only")
}

func TestPartition_MixedBatch(t *testing.T) {
	candidates := []Candidate{
		{Name: "vaccines.pdf", Size: 3 * MB, Type: MimePDF},
		{Name: "rex.png", Size: 2 * MB, Type: MimePNG},
		{Name: "history.doc", Size: 12 * MB, Type: MimeDOC},
	}

	accepted, rejected := Partition(DocumentPolicy, candidates)

	require.Len(t, accepted, 2)
	assert.Equal(t, "vaccines.pdf", accepted[0].Name)
	assert.Equal(t, "rex.png", accepted[1].Name)
	require.Len(t, rejected, 1)

	message := AggregateMessage(rejected)
	assert.Contains(t, message, "history.doc")
	assert.Contains(t, message, "12.0MB")
}

func TestAggregateMessage(t *testing.T) {
	assert.Empty(t, AggregateMessage(nil))

	message := AggregateMessage([]*Rejection{
		{Name: "a.doc", Reason: "a.doc is too large (11.0MB). Maximum size is 10MB."},
		{Name: "b.txt", Reason: "b.txt (0.1MB) is not a supported file type. Allowed types: PDF."},
	})
	assert.Contains(t, message, "2 files were rejected")
	assert.Contains(t, message, "a.doc")
	assert.Contains(t, message, "b.txt")
}

func TestFormatMB(t *testing.T) {
	assert.Equal(t, "12.0MB", FormatMB(12*MB))
	assert.Equal(t, "0.0MB", FormatMB(0))
	assert.Equal(t, "2.5MB", FormatMB(5*MB/2))
}

func TestPolicyByName(t *testing.T) {
	assert.Equal(t, ProfilePicturePolicy.Name, PolicyByName("profile").Name)
	assert.Equal(t, DocumentPolicy.Name, PolicyByName("").Name)
	assert.Equal(t, DocumentPolicy.Name, PolicyByName("anything").Name)
}
