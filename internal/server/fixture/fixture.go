// Package fixture seeds a store from a YAML description of a server
// hierarchy.
package fixture

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/server/sqlstore"
)

// Fixture is the root of a fixture file.
type Fixture struct {
	Projects []Container `yaml:"projects"`
	Datasets []Container `yaml:"datasets"`
	Screens  []Container `yaml:"screens"`
	Plates   []Plate     `yaml:"plates"`
	Images   []Image     `yaml:"images"`
	// Figures are file annotations not linked to any object.
	Figures []File `yaml:"figures"`
}

// Container is a project, dataset or screen.
type Container struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Owner       string       `yaml:"owner"`
	Annotations []Annotation `yaml:"annotations"`
	Datasets    []Container  `yaml:"datasets"`
	Images      []Image      `yaml:"images"`
	Plates      []Plate      `yaml:"plates"`
}

type Plate struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Owner       string       `yaml:"owner"`
	Annotations []Annotation `yaml:"annotations"`
	Wells       []Well       `yaml:"wells"`
}

type Well struct {
	Row         int          `yaml:"row"`
	Column      int          `yaml:"column"`
	Annotations []Annotation `yaml:"annotations"`
	Images      []Image      `yaml:"images"`
}

// Image is an image; images sharing a Fileset key share one fileset, whose
// files are the union of their Files.
type Image struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Owner       string       `yaml:"owner"`
	Fileset     string       `yaml:"fileset"`
	Files       []string     `yaml:"files"`
	SizeX       int          `yaml:"size_x"`
	SizeY       int          `yaml:"size_y"`
	Annotations []Annotation `yaml:"annotations"`
	ROIs        []ROI        `yaml:"rois"`
}

// Annotation sets exactly one of its value fields.
type Annotation struct {
	Tag         string      `yaml:"tag"`
	Comment     string      `yaml:"comment"`
	Long        *int64      `yaml:"long"`
	Map         [][2]string `yaml:"map"`
	File        *File       `yaml:"file"`
	Namespace   string      `yaml:"namespace"`
	Description string      `yaml:"description"`
}

type File struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	Content   string `yaml:"content"`
}

type ROI struct {
	Name   string             `yaml:"name"`
	Shapes []server.ShapeInfo `yaml:"shapes"`
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML, rejecting unknown fields.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: parse fixture: %v", apperrors.ErrInvalidInput, err)
	}
	return &f, nil
}

// IDs maps "Kind:name" to the id created for the first object of that kind
// and name.
type IDs map[string]int64

// Get returns the id of a named object or 0.
func (ids IDs) Get(kind server.Kind, name string) int64 {
	return ids[string(kind)+":"+name]
}

func (ids IDs) set(kind server.Kind, name string, id int64) {
	key := string(kind) + ":" + name
	if _, ok := ids[key]; !ok {
		ids[key] = id
	}
}

type seeder struct {
	store    *sqlstore.Store
	ids      IDs
	filesets map[string]int64
	// images already created per fileset key, so a fileset key reached
	// twice reuses its files.
	pending map[string][]string
}

// Seed creates every object of f in store.
func Seed(ctx context.Context, store *sqlstore.Store, f *Fixture) (IDs, error) {
	sd := &seeder{store: store, ids: IDs{}, filesets: map[string]int64{}, pending: map[string][]string{}}
	sd.collectFilesets(f)

	for _, p := range f.Projects {
		if _, err := sd.container(ctx, server.Project, p); err != nil {
			return nil, err
		}
	}
	for _, d := range f.Datasets {
		if _, err := sd.container(ctx, server.Dataset, d); err != nil {
			return nil, err
		}
	}
	for _, sc := range f.Screens {
		if _, err := sd.container(ctx, server.Screen, sc); err != nil {
			return nil, err
		}
	}
	for _, p := range f.Plates {
		if _, err := sd.plate(ctx, p); err != nil {
			return nil, err
		}
	}
	for _, img := range f.Images {
		if _, err := sd.image(ctx, img); err != nil {
			return nil, err
		}
	}
	for _, fig := range f.Figures {
		id, err := store.CreateFileAnnotation(ctx, fig.Name, fig.Namespace, "", []byte(fig.Content))
		if err != nil {
			return nil, err
		}
		sd.ids.set(server.Annotation, fig.Name, id)
	}
	return sd.ids, nil
}

func (sd *seeder) as(owner string) *sqlstore.Store {
	if owner == "" {
		return sd.store
	}
	return sd.store.AsUser(owner)
}

// collectFilesets gathers the files of every fileset key up front.
func (sd *seeder) collectFilesets(f *Fixture) {
	var visitImages func(imgs []Image)
	visitImages = func(imgs []Image) {
		for _, img := range imgs {
			if img.Fileset != "" {
				sd.pending[img.Fileset] = append(sd.pending[img.Fileset], img.Files...)
			}
		}
	}
	var visitContainer func(c Container)
	visitPlate := func(p Plate) {
		for _, w := range p.Wells {
			visitImages(w.Images)
		}
	}
	visitContainer = func(c Container) {
		visitImages(c.Images)
		for _, d := range c.Datasets {
			visitContainer(d)
		}
		for _, p := range c.Plates {
			visitPlate(p)
		}
	}
	for _, c := range f.Projects {
		visitContainer(c)
	}
	for _, c := range f.Datasets {
		visitContainer(c)
	}
	for _, c := range f.Screens {
		visitContainer(c)
	}
	for _, p := range f.Plates {
		visitPlate(p)
	}
	visitImages(f.Images)
}

func (sd *seeder) container(ctx context.Context, kind server.Kind, c Container) (int64, error) {
	st := sd.as(c.Owner)
	id, err := st.CreateContainer(ctx, kind, c.Name, c.Description)
	if err != nil {
		return 0, err
	}
	sd.ids.set(kind, c.Name, id)
	ref := server.ObjectRef{Kind: kind, ID: id}
	if err := sd.annotate(ctx, st, ref, c.Annotations); err != nil {
		return 0, err
	}
	for _, d := range c.Datasets {
		did, err := sd.container(ctx, server.Dataset, d)
		if err != nil {
			return 0, err
		}
		if err := st.Link(ctx, ref, server.ObjectRef{Kind: server.Dataset, ID: did}); err != nil {
			return 0, err
		}
	}
	for _, img := range c.Images {
		iid, err := sd.image(ctx, img)
		if err != nil {
			return 0, err
		}
		if err := st.Link(ctx, ref, server.ObjectRef{Kind: server.Image, ID: iid}); err != nil {
			return 0, err
		}
	}
	for _, p := range c.Plates {
		pid, err := sd.plate(ctx, p)
		if err != nil {
			return 0, err
		}
		if err := st.Link(ctx, ref, server.ObjectRef{Kind: server.Plate, ID: pid}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (sd *seeder) plate(ctx context.Context, p Plate) (int64, error) {
	st := sd.as(p.Owner)
	id, err := st.CreateContainer(ctx, server.Plate, p.Name, p.Description)
	if err != nil {
		return 0, err
	}
	sd.ids.set(server.Plate, p.Name, id)
	ref := server.ObjectRef{Kind: server.Plate, ID: id}
	if err := sd.annotate(ctx, st, ref, p.Annotations); err != nil {
		return 0, err
	}
	for _, w := range p.Wells {
		var imageIDs []int64
		for _, img := range w.Images {
			iid, err := sd.image(ctx, img)
			if err != nil {
				return 0, err
			}
			imageIDs = append(imageIDs, iid)
		}
		wid, err := st.CreateWell(ctx, id, w.Row, w.Column, imageIDs)
		if err != nil {
			return 0, err
		}
		if err := sd.annotate(ctx, st, server.ObjectRef{Kind: server.Well, ID: wid}, w.Annotations); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (sd *seeder) image(ctx context.Context, img Image) (int64, error) {
	st := sd.as(img.Owner)
	var filesetID int64
	switch {
	case img.Fileset != "":
		if existing, ok := sd.filesets[img.Fileset]; ok {
			filesetID = existing
			break
		}
		id, err := st.CreateFileset(ctx, seedFiles(sd.pending[img.Fileset]))
		if err != nil {
			return 0, err
		}
		sd.filesets[img.Fileset] = id
		filesetID = id
	case len(img.Files) > 0:
		id, err := st.CreateFileset(ctx, seedFiles(img.Files))
		if err != nil {
			return 0, err
		}
		filesetID = id
	}

	id, err := st.CreateImage(ctx, img.Name, img.Description, filesetID, server.PixelsInfo{SizeX: img.SizeX, SizeY: img.SizeY})
	if err != nil {
		return 0, err
	}
	sd.ids.set(server.Image, img.Name, id)
	ref := server.ObjectRef{Kind: server.Image, ID: id}
	if err := sd.annotate(ctx, st, ref, img.Annotations); err != nil {
		return 0, err
	}
	for _, r := range img.ROIs {
		if _, err := st.CreateROI(ctx, id, server.ROIInfo{Name: r.Name, Shapes: r.Shapes}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func seedFiles(paths []string) []sqlstore.SeedFile {
	seen := map[string]bool{}
	var out []sqlstore.SeedFile
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, sqlstore.SeedFile{Path: p, Content: []byte("fixture content of " + p + "\n")})
	}
	return out
}

func (sd *seeder) annotate(ctx context.Context, st *sqlstore.Store, owner server.ObjectRef, anns []Annotation) error {
	for _, a := range anns {
		var id int64
		var err error
		if a.File != nil {
			id, err = st.CreateFileAnnotation(ctx, a.File.Name, a.File.Namespace, a.Description, []byte(a.File.Content))
		} else {
			info := server.AnnotationInfo{Namespace: a.Namespace, Description: a.Description}
			switch {
			case a.Tag != "":
				info.Kind, info.TextValue = server.TagAnnotation, a.Tag
			case a.Comment != "":
				info.Kind, info.TextValue = server.CommentAnnotation, a.Comment
			case a.Long != nil:
				info.Kind, info.LongValue = server.LongAnnotation, *a.Long
			case len(a.Map) > 0:
				info.Kind = server.MapAnnotation
				for _, kv := range a.Map {
					info.MapValue = append(info.MapValue, server.KeyValue{Key: kv[0], Value: kv[1]})
				}
			default:
				return fmt.Errorf("%w: annotation on %s has no value", apperrors.ErrInvalidInput, owner)
			}
			id, err = st.CreateAnnotation(ctx, info)
		}
		if err != nil {
			return err
		}
		if err := st.LinkAnnotation(ctx, owner, id); err != nil {
			return err
		}
	}
	return nil
}
