package acceptance

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MB = 1024 * 1024

	MaxDocumentBytes       = 10 * MB
	MaxProfilePictureBytes = 5 * MB
)

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// extensionTypes resolves a type when the client sends no usable MIME type.
var extensionTypes = map[string]string{
	"pdf":  MimePDF,
	"jpg":  MimeJPEG,
	"jpeg": MimeJPEG,
	"png":  MimePNG,
	"doc":  MimeDOC,
	"docx": MimeDOCX,
}

// Candidate is a file offered for intake, before it enters a batch.
type Candidate struct {
	Name string
	Size int64
	Type string
}

// Rejection explains why a candidate was refused.
type Rejection struct {
	Name   string
	Size   int64
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

type Policy struct {
	Name         string
	MaxBytes     int64
	AllowedTypes map[string]string // MIME -> display label
	ImagesOnly   bool
}

var DocumentPolicy = Policy{
	Name:     "document",
	MaxBytes: MaxDocumentBytes,
	AllowedTypes: map[string]string{
		MimePDF:  "PDF",
		MimeJPEG: "JPEG",
		MimePNG:  "PNG",
		MimeDOC:  "DOC",
		MimeDOCX: "DOCX",
	},
}

var ProfilePicturePolicy = Policy{
	Name:       "profile",
	MaxBytes:   MaxProfilePictureBytes,
	ImagesOnly: true,
}

// PolicyByName returns the named policy, falling back to DocumentPolicy.
func PolicyByName(name string) Policy {
	if strings.EqualFold(name, ProfilePicturePolicy.Name) {
		return ProfilePicturePolicy
	}
	return DocumentPolicy
}

// Validate returns nil when the candidate is acceptable under the policy.
func (p Policy) Validate(c Candidate) *Rejection {
	sizeMB := FormatMB(c.Size)

	if c.Size > p.MaxBytes {
		return &Rejection{
			Name: c.Name,
			Size: c.Size,
			Reason: fmt.Sprintf(
				"%s is too large (%s). Maximum size is %dMB.",
				c.Name,
				sizeMB,
				p.MaxBytes/MB,
			),
		}
	}

	mimeType := ResolveType(c)
	if !p.allows(mimeType) {
		return &Rejection{
			Name: c.Name,
			Size: c.Size,
			Reason: fmt.Sprintf(
				"%s (%s) is not a supported file type. Allowed types: %s.",
				c.Name,
				sizeMB,
				p.allowedLabel(),
			),
		}
	}

	return nil
}

func (p Policy) allows(mimeType string) bool {
	if p.ImagesOnly {
		return strings.HasPrefix(mimeType, "image/")
	}
	_, ok := p.AllowedTypes[mimeType]
	return ok
}

func (p Policy) allowedLabel() string {
	if p.ImagesOnly {
		return "images only"
	}
	order := []string{MimePDF, MimeJPEG, MimePNG, MimeDOC, MimeDOCX}
	labels := make([]string, 0, len(p.AllowedTypes))
	for _, mimeType := range order {
		if label, ok := p.AllowedTypes[mimeType]; ok {
			labels = append(labels, label)
		}
	}
	return strings.Join(labels, ", ")
}

// ResolveType prefers the declared MIME type and falls back to the file extension.
func ResolveType(c Candidate) string {
	declared := strings.ToLower(strings.TrimSpace(c.Type))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(c.Name), "."))
	if mimeType, ok := extensionTypes[ext]; ok {
		return mimeType
	}
	return declared
}

// FormatMB renders a byte count as megabytes with one decimal, e.g. "12.0MB".
func FormatMB(size int64) string {
	return fmt.Sprintf("%.1fMB", float64(size)/float64(MB))
}

// Partition splits candidates into accepted and rejected, preserving order.
func Partition(p Policy, candidates []Candidate) ([]Candidate, []*Rejection) {
	accepted := make([]Candidate, 0, len(candidates))
	var rejected []*Rejection

	for _, c := range candidates {
		if rejection := p.Validate(c); rejection != nil {
			rejected = append(rejected, rejection)
			continue
		}
		accepted = append(accepted, c)
	}

	return accepted, rejected
}

// AggregateMessage folds every rejection into one user-facing message.
func AggregateMessage(rejected []*Rejection) string {
	if len(rejected) == 0 {
		return ""
	}
	if len(rejected) == 1 {
		return rejected[0].Reason
	}

	reasons := make([]string, len(rejected))
	for i, r := range rejected {
		reasons[i] = r.Reason
	}
	return fmt.Sprintf("%d files were rejected: %s", len(rejected), strings.Join(reasons, " "))
}
