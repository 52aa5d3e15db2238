package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// zipEpoch is the modification time stamped on every entry, so that equal
// packages serialize to equal bytes.
var zipEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// --- Content Types ---

type xmlContentTypes struct {
	XMLName   xml.Name      `xml:"Types"`
	Xmlns     string        `xml:"xmlns,attr"`
	Defaults  []xmlDefault  `xml:"Default"`
	Overrides []xmlOverride `xml:"Override"`
}

type xmlDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type xmlOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

func (ct *xmlContentTypes) ensureDefault(ext, contentType string) {
	for _, d := range ct.Defaults {
		if strings.EqualFold(d.Extension, ext) {
			return
		}
	}
	ct.Defaults = append(ct.Defaults, xmlDefault{Extension: ext, ContentType: contentType})
}

func (ct *xmlContentTypes) setOverride(part, contentType string) {
	name := "/" + part
	for i, o := range ct.Overrides {
		if o.PartName == name {
			ct.Overrides[i].ContentType = contentType
			return
		}
	}
	ct.Overrides = append(ct.Overrides, xmlOverride{PartName: name, ContentType: contentType})
}

// --- Relationships ---

type xmlRelationships struct {
	XMLName       xml.Name          `xml:"Relationships"`
	Xmlns         string            `xml:"xmlns,attr"`
	Relationships []xmlRelationship `xml:"Relationship"`
}

type xmlRelationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

func newRelationships() *xmlRelationships {
	return &xmlRelationships{Xmlns: nsRelationships}
}

func (r *xmlRelationships) byID(id string) (xmlRelationship, bool) {
	for _, rel := range r.Relationships {
		if rel.ID == id {
			return rel, true
		}
	}
	return xmlRelationship{}, false
}

func (r *xmlRelationships) byType(relType string) []xmlRelationship {
	var out []xmlRelationship
	for _, rel := range r.Relationships {
		if rel.Type == relType {
			out = append(out, rel)
		}
	}
	return out
}

// add appends a relationship with the next free rIdN and returns its id.
func (r *xmlRelationships) add(relType, target string) string {
	next := 1
	for _, rel := range r.Relationships {
		if n, err := strconv.Atoi(strings.TrimPrefix(rel.ID, "rId")); err == nil && n >= next {
			next = n + 1
		}
	}
	id := fmt.Sprintf("rId%d", next)
	r.Relationships = append(r.Relationships, xmlRelationship{ID: id, Type: relType, Target: target})
	return id
}

// relsPartFor returns the rels part of a part: ppt/slides/slide1.xml gives
// ppt/slides/_rels/slide1.xml.rels.
func relsPartFor(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// resolveTarget turns a relationship target relative to source into a part name.
func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join(path.Dir(source), target)
}

// relativeTarget is the inverse of resolveTarget.
func relativeTarget(source, part string) string {
	from := strings.Split(path.Dir(source), "/")
	to := strings.Split(part, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var b strings.Builder
	for j := i; j < len(from); j++ {
		if from[j] == "." || from[j] == "" {
			continue
		}
		b.WriteString("../")
	}
	b.WriteString(strings.Join(to[i:], "/"))
	return b.String()
}

func marshalXML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- Zip ---

// readParts loads every entry of a zip into memory.
func readParts(r io.ReaderAt, size int64) (map[string][]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid package size: %d", size)
	}
	if size > int64(maxZipTotalSize) {
		return nil, fmt.Errorf("package size %d exceeds maximum allowed (%d bytes)", size, maxZipTotalSize)
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	if len(zr.File) > maxZipEntries {
		return nil, fmt.Errorf("zip archive contains too many entries (%d > %d)", len(zr.File), maxZipEntries)
	}

	parts := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		parts[f.Name] = data
	}
	return parts, nil
}

// writeParts writes [Content_Types].xml first and then every other part in
// name order, all with the same timestamp.
func writeParts(w io.Writer, parts map[string][]byte) error {
	names := make([]string, 0, len(parts))
	for name := range parts {
		if name != contentTypesPart {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append([]string{contentTypesPart}, names...)

	zw := zip.NewWriter(w)
	for _, name := range names {
		data, ok := parts[name]
		if !ok {
			return fmt.Errorf("package has no %s", name)
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s in zip: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}
