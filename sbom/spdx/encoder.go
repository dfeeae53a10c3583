package spdx

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	spdxjson "github.com/spdx/tools-golang/json"
	"github.com/spdx/tools-golang/spdx/common"
	v2common "github.com/spdx/tools-golang/spdx/v2/common"
	"github.com/spdx/tools-golang/spdx/v2/v2_3"

	"github.com/srctrace/srctrace"
)

// Report is the provenance slice rendered into one document: the
// artifact's file listing, the vendor refs naming it and the lockfiles
// found inside it.
type Report struct {
	Artifact *srctrace.Artifact
	Refs     []srctrace.Ref
	SBOMRefs []srctrace.SBOMRef
}

// Option is a type for setting optional fields for the Encoder.
type Option func(*Encoder)

// Creator describes the creator of the SPDX document that will be
// produced from the encoding.
type Creator struct {
	// Creator is the value of the [Creator] relationship.
	Creator string
	// CreatorType is the key of the [Creator] relationship.
	// In accordance to the SPDX v2 spec, CreatorType should be one of
	// "Person", "Organization", or "Tool".
	CreatorType string
}

// Encoder defines an SPDX encoder and accepts certain values from the
// caller to use in the SPDX document.
type Encoder struct {
	// The target SPDX version in which to encode.
	Version Version
	// The data format in which to encode.
	Format Format
	// The SPDX document creator information.
	Creators []Creator
	// The SPDX document name field. Defaults to the artifact checksum.
	DocumentName string
	// The SPDX document namespace field.
	DocumentNamespace string
	// The SPDX document comment field.
	DocumentComment string
}

// NewDefaultEncoder creates an Encoder with default values and sets
// optional fields based on the provided options.
func NewDefaultEncoder(options ...Option) *Encoder {
	e := &Encoder{
		Version: V2_3,
		Format:  FormatJSON,
		Creators: []Creator{
			{
				Creator:     "srctrace-" + getVersion(),
				CreatorType: "Tool",
			},
		},
	}

	for _, opt := range options {
		opt(e)
	}

	return e
}

// WithDocumentName is used to set the SPDX document name field.
func WithDocumentName(name string) Option {
	return func(e *Encoder) {
		e.DocumentName = name
	}
}

// WithDocumentNamespace is used to set the SPDX document namespace field.
func WithDocumentNamespace(namespace string) Option {
	return func(e *Encoder) {
		e.DocumentNamespace = namespace
	}
}

// WithDocumentComment is used to set the SPDX document comment field.
func WithDocumentComment(comment string) Option {
	return func(e *Encoder) {
		e.DocumentComment = comment
	}
}

// Encode encodes a [Report] that writes to w.
func (e *Encoder) Encode(ctx context.Context, w io.Writer, r *Report) error {
	doc, err := e.buildDocument(ctx, r)
	if err != nil {
		return err
	}

	// TODO: support SPDX versions before 2.3
	var tmpConverterDoc common.AnyDocument
	switch e.Version {
	case V2_3:
		tmpConverterDoc = doc
	default:
		return fmt.Errorf("unknown SPDX version: %v", e.Version)
	}

	switch e.Format {
	case FormatJSON:
		if err := spdxjson.Write(tmpConverterDoc, w); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("unknown requested format: %v", e.Format)
}

func (e *Encoder) buildDocument(ctx context.Context, r *Report) (*v2_3.Document, error) {
	if r == nil || r.Artifact == nil {
		return nil, fmt.Errorf("spdx: report has no artifact")
	}

	creators := make([]v2common.Creator, len(e.Creators))
	for i, creator := range e.Creators {
		creators[i] = v2common.Creator{
			Creator:     creator.Creator,
			CreatorType: creator.CreatorType,
		}
	}

	name := e.DocumentName
	if name == "" {
		name = r.Artifact.Chksum.String()
	}

	out := &v2_3.Document{
		SPDXVersion:       v2_3.Version,
		DataLicense:       v2_3.DataLicense,
		SPDXIdentifier:    "DOCUMENT",
		DocumentName:      name,
		DocumentNamespace: e.DocumentNamespace,
		CreationInfo: &v2_3.CreationInfo{
			Creators: creators,
			Created:  time.Now().Format("2006-01-02T15:04:05Z"),
		},
		DocumentComment: e.DocumentComment,
	}

	art := &v2_3.Package{
		PackageName:             r.Artifact.Chksum.String(),
		PackageSPDXIdentifier:   "Artifact",
		PackageDownloadLocation: "NOASSERTION",
		FilesAnalyzed:           true,
		PackageChecksums:        checksums(r.Artifact.Chksum),
		PrimaryPackagePurpose:   "ARCHIVE",
	}

	// Entries without a digest (directories, link placeholders) still
	// appear so the listing is complete.
	fileIDs := make(map[string]v2common.ElementID, len(r.Artifact.Files))
	for i := range r.Artifact.Files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fe := &r.Artifact.Files[i]
		f := &v2_3.File{
			FileName:           fe.Path,
			FileSPDXIdentifier: v2common.ElementID(fmt.Sprintf("File-%d", i)),
		}
		if fe.Digest != "" {
			if d, err := srctrace.ParseDigest(fe.Digest); err == nil {
				f.Checksums = checksums(d)
			}
		}
		fileIDs[fe.Path] = f.FileSPDXIdentifier
		art.Files = append(art.Files, f)
	}

	out.Packages = append(out.Packages, art)
	artRef := v2common.MakeDocElementID("", string(art.PackageSPDXIdentifier))
	out.Relationships = append(out.Relationships, &v2_3.Relationship{
		RefA:         v2common.MakeDocElementID("", "DOCUMENT"),
		RefB:         artRef,
		Relationship: "DESCRIBES",
	})

	// Refs come back from the store in no particular order; sort so the
	// same report always renders the same document.
	refs := slices.Clone(r.Refs)
	slices.SortFunc(refs, cmpRef)
	for i := range refs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ref := &refs[i]
		p := &v2_3.Package{
			PackageName:             ref.Package,
			PackageSPDXIdentifier:   v2common.ElementID(fmt.Sprintf("Ref-%d", i)),
			PackageVersion:          ref.Version,
			PackageDownloadLocation: downloadLocation(ref),
			PrimaryPackagePurpose:   "SOURCE",
		}
		if ref.Vendor != "" {
			p.PackageSupplier = &v2common.Supplier{
				Supplier:     ref.Vendor,
				SupplierType: "Organization",
			}
		}
		out.Packages = append(out.Packages, p)
		out.Relationships = append(out.Relationships, &v2_3.Relationship{
			RefA:         artRef,
			RefB:         v2common.MakeDocElementID("", string(p.PackageSPDXIdentifier)),
			Relationship: "COPY_OF",
		})
	}

	srefs := slices.Clone(r.SBOMRefs)
	slices.SortFunc(srefs, cmpSBOMRef)
	for i := range srefs {
		sr := &srefs[i]
		id, ok := fileIDs[sr.Path]
		if !ok {
			// A stale edge; the document stays internally consistent
			// without it.
			continue
		}
		out.Relationships = append(out.Relationships, &v2_3.Relationship{
			RefA:                v2common.MakeDocElementID("", string(id)),
			RefB:                artRef,
			Relationship:        "DEPENDENCY_MANIFEST_OF",
			RelationshipComment: sr.Strain,
		})
	}

	return out, nil
}

func checksums(d srctrace.Digest) []v2common.Checksum {
	var alg v2common.ChecksumAlgorithm
	switch d.Algorithm() {
	case srctrace.SHA256:
		alg = v2common.SHA256
	case srctrace.SHA512:
		alg = v2common.SHA512
	case srctrace.BLAKE2b:
		alg = v2common.BLAKE2b_512
	default:
		return nil
	}
	return []v2common.Checksum{{
		Algorithm: alg,
		Value:     hex.EncodeToString(d.Checksum()),
	}}
}

// downloadLocation is the ref's URL when it has one; plain basenames
// aren't fetchable.
func downloadLocation(r *srctrace.Ref) string {
	if r.Protocol != "" {
		return r.Filename
	}
	return "NOASSERTION"
}

func cmpRef(a, b srctrace.Ref) int {
	if c := strings.Compare(a.Vendor, b.Vendor); c != 0 {
		return c
	}
	if c := strings.Compare(a.Package, b.Package); c != 0 {
		return c
	}
	return strings.Compare(a.Version, b.Version)
}

func cmpSBOMRef(a, b srctrace.SBOMRef) int {
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	return strings.Compare(a.Strain, b.Strain)
}

// getVersion will attempt to read out the current binary's debug info
// and find the srctrace version.
func getVersion() string {
	info, infoOK := debug.ReadBuildInfo()
	if infoOK {
		for _, m := range info.Deps {
			if m.Path != "github.com/srctrace/srctrace" {
				continue
			}
			v := m.Version
			if m.Replace != nil && m.Replace.Version != m.Version {
				v = m.Replace.Version
			}
			return v
		}
	}

	return "unknown revision"
}
