package importer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

// Inspector examines local files before they are imported.
type Inspector interface {
	// ImportFiles lists every file an import of path would consume,
	// path included.
	ImportFiles(ctx context.Context, path string) ([]string, error)
	// Describe reads the images and plates a file holds.
	Describe(ctx context.Context, path string) (*Description, error)
}

// Description is the image metadata of one import target.
type Description struct {
	Images []DescribedImage
	Plates []DescribedPlate
}

// DescribedImage is an image found in a file. ID is only meaningful within
// its Description.
type DescribedImage struct {
	ID             string
	Name           string
	DimensionOrder string
	Type           string
	SizeX          int
	SizeY          int
	SizeZ          int
	SizeC          int
	SizeT          int
}

type DescribedPlate struct {
	Name  string
	Wells []DescribedWell
}

type DescribedWell struct {
	Row     int
	Column  int
	Samples []DescribedSample
}

type DescribedSample struct {
	Index    int
	ImageRef string
}

// ImportFiles runs a dry-run import that only lists the files it would
// upload.
func (p *Process) ImportFiles(ctx context.Context, path string) ([]string, error) {
	out, err := p.run(ctx, p.Command, "import", "-f", path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	return files, nil
}

// Describe runs showinf and reads the OME-XML it prints.
func (p *Process) Describe(ctx context.Context, path string) (*Description, error) {
	out, err := p.run(ctx, p.Showinf, path, "-nopix", "-omexml-only", "-no-sas", "-noflat")
	if err != nil {
		return nil, err
	}
	return ParseOMEXML(out)
}

type showinfOME struct {
	Images []struct {
		ID     string `xml:"ID,attr"`
		Name   string `xml:"Name,attr"`
		Pixels struct {
			DimensionOrder string `xml:"DimensionOrder,attr"`
			Type           string `xml:"Type,attr"`
			SizeX          int    `xml:"SizeX,attr"`
			SizeY          int    `xml:"SizeY,attr"`
			SizeZ          int    `xml:"SizeZ,attr"`
			SizeC          int    `xml:"SizeC,attr"`
			SizeT          int    `xml:"SizeT,attr"`
		} `xml:"Pixels"`
	} `xml:"Image"`
	Plates []struct {
		Name  string `xml:"Name,attr"`
		Wells []struct {
			Row     int `xml:"Row,attr"`
			Column  int `xml:"Column,attr"`
			Samples []struct {
				Index    int `xml:"Index,attr"`
				ImageRef struct {
					ID string `xml:"ID,attr"`
				} `xml:"ImageRef"`
			} `xml:"WellSample"`
		} `xml:"Well"`
	} `xml:"Plate"`
}

// ParseOMEXML reads the images and plates of a Bio-Formats OME-XML dump.
// Identifiers are kept as written; they need not follow the transfer
// document's id format.
func ParseOMEXML(data []byte) (*Description, error) {
	// showinf may print log lines before the document.
	if i := bytes.Index(data, []byte("<")); i > 0 {
		data = data[i:]
	}
	var root showinfOME
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: parse OME-XML: %v", apperrors.ErrSubprocess, err)
	}
	d := &Description{}
	for _, img := range root.Images {
		d.Images = append(d.Images, DescribedImage{
			ID:             img.ID,
			Name:           img.Name,
			DimensionOrder: img.Pixels.DimensionOrder,
			Type:           img.Pixels.Type,
			SizeX:          img.Pixels.SizeX,
			SizeY:          img.Pixels.SizeY,
			SizeZ:          img.Pixels.SizeZ,
			SizeC:          img.Pixels.SizeC,
			SizeT:          img.Pixels.SizeT,
		})
	}
	for _, pl := range root.Plates {
		plate := DescribedPlate{Name: pl.Name}
		for _, w := range pl.Wells {
			well := DescribedWell{Row: w.Row, Column: w.Column}
			for _, ws := range w.Samples {
				well.Samples = append(well.Samples, DescribedSample{Index: ws.Index, ImageRef: ws.ImageRef.ID})
			}
			plate.Wells = append(plate.Wells, well)
		}
		d.Plates = append(d.Plates, plate)
	}
	return d, nil
}

// Local inspects files the way the local store imports them: every file
// is its own target holding one image named after the file.
type Local struct{}

func (Local) ImportFiles(_ context.Context, path string) ([]string, error) {
	return []string{path}, nil
}

func (Local) Describe(_ context.Context, path string) (*Description, error) {
	return &Description{Images: []DescribedImage{{
		ID:             "Image:0",
		Name:           filepath.Base(path),
		DimensionOrder: "XYZCT",
		Type:           "uint8",
		SizeX:          1,
		SizeY:          1,
		SizeZ:          1,
		SizeC:          1,
		SizeT:          1,
	}}}, nil
}
