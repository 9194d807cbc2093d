package ingestion

import (
	"net/url"
	"strings"
)

// BuildTarget encodes the pet id plus comma-joined document and vaccine ids. Empty lists are
// omitted entirely.
func BuildTarget(petID string, documentIDs, vaccineIDs []string) string {
	path := "/pets/" + url.PathEscape(petID) + "/verify"

	var params []string
	if len(documentIDs) > 0 {
		params = append(params, "documents="+joinIDs(documentIDs))
	}
	if len(vaccineIDs) > 0 {
		params = append(params, "vaccines="+joinIDs(vaccineIDs))
	}

	if len(params) == 0 {
		return path
	}
	return path + "?" + strings.Join(params, "&")
}

func joinIDs(ids []string) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.QueryEscape(id)
	}
	return strings.Join(escaped, ",")
}

// PartitionArtifacts splits artifacts into document and vaccine id lists, dropping unknown kinds.
func PartitionArtifacts(artifacts []ArtifactRef) (documentIDs, vaccineIDs []string) {
	for _, artifact := range artifacts {
		if artifact.ID == "" {
			continue
		}
		switch artifact.Kind {
		case ArtifactDocument:
			documentIDs = append(documentIDs, artifact.ID)
		case ArtifactVaccine:
			vaccineIDs = append(vaccineIDs, artifact.ID)
		}
	}
	return documentIDs, vaccineIDs
}
