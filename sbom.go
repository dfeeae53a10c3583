package srctrace

// SBOM is a bill-of-materials document found in (or generated over) an
// artifact, keyed by the digest of its serialized body plus the strain
// (tool/format) that produced it.
type SBOM struct {
	Chksum Digest
	Strain string
	Data   string
}

// SBOMRef is an edge in the provenance graph: a path inside a
// containing archive pointing at a bill-of-materials document.
//
// Rows cascade away with the containing artifact.
type SBOMRef struct {
	FromArchive Digest
	Strain      string
	Chksum      Digest
	Path        string
}
