package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/omexml"
	"github.com/ome/omero-cli-transfer/internal/reconcile"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <folder>",
	Short: "Validate a package's transfer.xml and list what unpack would import",
	Long: `Parse and validate the transfer.xml of an extracted package (or the file
itself) and print how many objects of each kind it holds and which files an
unpack would import, with the number of images expected from each.

Examples:
  omero-transfer inspect ./cells
  omero-transfer inspect ./cells/transfer.xml --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := inspectPackage(args[0])
		if err != nil {
			return fail(err)
		}

		if isJSONOutput() {
			outputSuccess(in, &Meta{Count: len(in.Files)})
			return nil
		}

		display := ui.NewDisplayContext()
		rendered, err := ui.RenderMarkdown(in.markdown(), display.AvailableWidth(ui.MarkdownRenderMargin))
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		fmt.Print(rendered)
		return nil
	},
}

// inspection is the summary of one transfer document.
type inspection struct {
	Path     string         `json:"path"`
	Creator  string         `json:"creator,omitempty"`
	Counts   map[string]int `json:"counts"`
	Files    []packageFile  `json:"files"`
	Unplaced []string       `json:"unplaced,omitempty"`
}

type packageFile struct {
	Path   string `json:"path"`
	Images int    `json:"images"`
}

func inspectPackage(target string) (*inspection, error) {
	path := target
	if st, err := os.Stat(target); err == nil && st.IsDir() {
		path = filepath.Join(target, omexml.DocumentFile)
	}
	doc, err := omexml.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := reconcile.Reconcile(doc)
	if err != nil {
		return nil, err
	}

	in := &inspection{
		Path:    path,
		Creator: doc.Creator,
		Counts: map[string]int{
			"projects":    len(doc.Projects),
			"datasets":    len(doc.Datasets),
			"screens":     len(doc.Screens),
			"plates":      len(doc.Plates),
			"images":      len(doc.Images),
			"rois":        len(doc.ROIs),
			"annotations": len(doc.Annotations),
		},
	}
	images := map[string]int{}
	for p, ids := range rec.Sources {
		images[reconcile.SourceKey(p)] += len(ids)
	}
	for _, f := range rec.Files {
		in.Files = append(in.Files, packageFile{Path: f, Images: images[f]})
	}
	for _, id := range rec.Unplaced {
		in.Unplaced = append(in.Unplaced, string(id))
	}
	return in, nil
}

var countOrder = []string{"projects", "datasets", "screens", "plates", "images", "rois", "annotations"}

func (in *inspection) markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.Path)
	if in.Creator != "" {
		fmt.Fprintf(&b, "Written by %s.\n\n", in.Creator)
	}
	b.WriteString("| kind | count |\n|---|---:|\n")
	for _, k := range countOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", k, in.Counts[k])
	}
	b.WriteString("\n## Files to import\n\n")
	if len(in.Files) == 0 {
		b.WriteString("None.\n")
	} else {
		b.WriteString("| path | images |\n|---|---:|\n")
		for _, f := range in.Files {
			fmt.Fprintf(&b, "| %s | %d |\n", escapeCell(f.Path), f.Images)
		}
	}
	if len(in.Unplaced) > 0 {
		fmt.Fprintf(&b, "\n%s have no origin path and will not be imported.\n", strings.Join(in.Unplaced, ", "))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
