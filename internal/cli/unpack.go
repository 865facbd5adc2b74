package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/reconcile"
	"github.com/ome/omero-cli-transfer/internal/transfer"
	"github.com/ome/omero-cli-transfer/internal/transport"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var (
	unpackFolder   bool
	unpackOutput   string
	unpackMerge    bool
	unpackFigure   bool
	unpackInPlace  bool
	unpackSkip     []string
	unpackMetadata []string
)

var unpackCmd = &cobra.Command{
	Use:   "unpack <file>",
	Short: "Import a transfer archive into the server",
	Long: `Unpack a transfer archive (.tar or .zip) into the configured server: import
its files, then recreate the hierarchy, annotations and ROIs around the
imported images.

The package may be a local file, an extracted folder (--folder) or an
s3://bucket/key object.

Examples:
  omero-transfer unpack cells.tar
  omero-transfer unpack project.zip --merge --output /data/extracted
  omero-transfer unpack ./cells --folder --ln_s_import
  omero-transfer unpack s3://transfers/cells.tar --metadata none`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpack,
}

func runUnpack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source := args[0]
	metadata, err := metadataSelection(unpackMetadata, nil)
	if err != nil {
		return fail(err)
	}

	opts := transfer.UnpackOptions{
		FromFolder: unpackFolder,
		Output:     unpackOutput,
		Merge:      unpackMerge,
		Figures:    unpackFigure,
		InPlace:    unpackInPlace,
		Skip:       unpackSkip,
		Metadata:   metadata,
		Logger:     logger.Named("unpack"),
		Metrics:    collector,
	}
	if transport.IsRemote(source) {
		fetch, err := transport.NewS3(ctx, transportConfig(cfg.Transport), logger.Named("transport"))
		if err != nil {
			return fail(err)
		}
		opts.Fetch = fetch
	}

	st, err := connect(ctx)
	if err != nil {
		return fail(err)
	}

	var spinner *ui.Spinner
	if !isJSONOutput() {
		spinner = ui.NewSpinner(fmt.Sprintf("Unpacking %s", source))
		spinner.Start()
	}
	res, err := transfer.Unpack(ctx, st, newImporter(st), source, opts)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return fail(err)
	}

	warnings := skipWarnings(res.Skips)
	for _, id := range res.Report.Skipped {
		warnings = append(warnings, Warning{
			Code:    WarnObjectSkipped,
			Message: fmt.Sprintf("%s left out: its image was not imported", id),
		})
	}

	if isJSONOutput() {
		images := make(map[string]int64, len(res.Images))
		for id, dst := range res.Images {
			images[string(id)] = dst
		}
		outputSuccessWithWarnings(map[string]interface{}{
			"folder":      res.Folder,
			"hash":        res.Hash,
			"imported":    res.Imported,
			"images":      images,
			"projects":    len(res.Report.Projects),
			"datasets":    len(res.Report.Datasets),
			"screens":     len(res.Report.Screens),
			"plates":      len(res.Report.Plates),
			"annotations": len(res.Report.Annotations),
			"rois":        res.Report.ROIs,
			"links":       res.Report.Links,
		}, warnings, &Meta{Count: len(res.Images)})
		return nil
	}

	fmt.Println(ui.Successf("Unpacked %s %s", ui.FilePath(source),
		ui.Hint(ui.Count(len(res.Images), "image", "images"))))
	if len(res.Skips) > 0 {
		fmt.Println(ui.Warningf("%d file(s) imported without a matching image count:", len(res.Skips)))
		fmt.Print(skipsTable(res.Skips))
	}
	for _, w := range warnings[len(res.Skips):] {
		fmt.Println(ui.Warning(w.Message))
	}
	return nil
}

func skipWarnings(skips []reconcile.Skip) []Warning {
	out := make([]Warning, 0, len(skips))
	for _, s := range skips {
		out = append(out, Warning{Code: WarnImageSkipped, Message: s.String(), Path: s.Path})
	}
	return out
}

func skipsTable(skips []reconcile.Skip) string {
	sorted := append([]reconcile.Skip(nil), skips...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	tbl := ui.NewSkipTable(ui.NewDisplayContext())
	for _, s := range sorted {
		tbl.Add(s.Path, fmt.Sprintf("%s (%d packed, %d imported)", s.Reason, len(s.Source), len(s.Destination)))
	}
	return tbl.Render() + "\n"
}

func init() {
	unpackCmd.Flags().BoolVar(&unpackFolder, "folder", false, "The argument is an already extracted package folder")
	unpackCmd.Flags().StringVar(&unpackOutput, "output", "", "Extract into this folder instead of next to the archive")
	unpackCmd.Flags().BoolVar(&unpackMerge, "merge", false, "Reuse existing projects, datasets and screens with the same name")
	unpackCmd.Flags().BoolVar(&unpackFigure, "figure", false, "Recreate packed OMERO.figure files")
	unpackCmd.Flags().BoolVar(&unpackInPlace, "ln_s_import", false, "Import in place by linking files instead of copying them")
	unpackCmd.Flags().StringSliceVar(&unpackSkip, "skip", nil, "Import steps to skip (all, checksum, minmax, thumbnails, upgrade)")
	unpackCmd.Flags().StringSliceVar(&unpackMetadata, "metadata", nil, "Provenance fields to keep: all, none, or field names")
	rootCmd.AddCommand(unpackCmd)
}
