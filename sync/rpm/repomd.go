package rpm

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
)

// ErrNoPrimary is returned when a repomd.xml carries no primary data
// section.
var ErrNoPrimary = errors.New("rpm: repomd has no primary section")

// RepoMD is the parsed repodata/repomd.xml document.
type RepoMD struct {
	Revision int    `xml:"revision"`
	RepoList []Repo `xml:"data"`
}

// Repo is one data section of a repomd document.
type Repo struct {
	Type         string   `xml:"type,attr"`
	Checksum     Checksum `xml:"checksum"`
	OpenChecksum Checksum `xml:"open-checksum"`
	Location     Location `xml:"location"`
	Timestamp    int      `xml:"timestamp"`
	Size         int64    `xml:"size"`
	OpenSize     int64    `xml:"open-size"`
}

type Checksum struct {
	Sum  string `xml:",chardata"`
	Type string `xml:"type,attr"`
}

type Location struct {
	Href string `xml:"href,attr"`
}

// PrimaryLocation resolves the primary section's href against the
// repository base URL.
func (md *RepoMD) PrimaryLocation(base string) (string, error) {
	for i := range md.RepoList {
		repo := &md.RepoList[i]
		if repo.Type != "primary" {
			continue
		}
		u, err := url.Parse(base + "/")
		if err != nil {
			return "", err
		}
		href, err := u.Parse(repo.Location.Href)
		if err != nil {
			return "", err
		}
		return href.String(), nil
	}
	return "", ErrNoPrimary
}

// Package is one package element of a primary.xml document, pruned to
// the fields a sync pass needs.
type Package struct {
	Name     string   `xml:"name"`
	Arch     string   `xml:"arch"`
	Version  Version  `xml:"version"`
	Location Location `xml:"location"`
}

type Version struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

// EVR renders the version the way rpm tooling spells it.
func (v Version) EVR() string {
	return fmt.Sprintf("%s-%s", v.Ver, v.Rel)
}

// parsePrimary streams package elements out of an uncompressed
// primary.xml, calling fn per package. Primary documents run to
// hundreds of megabytes; decoding element-wise keeps memory flat.
func parsePrimary(r io.Reader, fn func(*Package) error) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("rpm: decoding primary: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "package" {
			continue
		}
		var p Package
		if err := dec.DecodeElement(&p, &se); err != nil {
			return fmt.Errorf("rpm: decoding package element: %w", err)
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
}
