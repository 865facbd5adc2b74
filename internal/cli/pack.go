package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/archive"
	"github.com/ome/omero-cli-transfer/internal/config"
	"github.com/ome/omero-cli-transfer/internal/provenance"
	"github.com/ome/omero-cli-transfer/internal/server"
	"github.com/ome/omero-cli-transfer/internal/transfer"
	"github.com/ome/omero-cli-transfer/internal/transport"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var (
	packZip      bool
	packFigure   bool
	packSimple   bool
	packBArchive bool
	packROCrate  bool
	packBinaries string
	packMetadata []string
	packUpload   bool
)

var packCmd = &cobra.Command{
	Use:   "pack <object> <file>",
	Short: "Pack an object and everything below it into a transfer archive",
	Long: `Pack a Project, Dataset, Image, Screen or Plate into a tar (or zip) archive
holding transfer.xml and the original files of every image.

The object is given as Kind:id, e.g. Dataset:12. A bare id is a Project.

Examples:
  omero-transfer pack Image:42 cells.tar
  omero-transfer pack 7 project.zip --zip --figure
  omero-transfer pack Dataset:12 submission.tar --barchive
  omero-transfer pack Project:7 meta.tar --binaries none
  omero-transfer pack Dataset:12 day1.tar --metadata orig_user,db_id`,
	Args: cobra.ExactArgs(2),
	RunE: runPack,
}

func runPack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := server.ParseObjectRef(args[0])
	if err != nil {
		return fail(err)
	}
	profile, err := transfer.ProfileFromFlags(packSimple, packBArchive, packROCrate)
	if err != nil {
		return fail(err)
	}
	noBinaries, err := binariesFlag(packBinaries)
	if err != nil {
		return fail(err)
	}
	metadata, err := metadataSelection(packMetadata, cfg.Pack.Metadata)
	if err != nil {
		return fail(err)
	}
	format := archive.Tar
	if packZip {
		format = archive.Zip
	}

	opts := transfer.PackOptions{
		Format:     format,
		Profile:    profile,
		NoBinaries: noBinaries,
		Figures:    packFigure,
		Metadata:   metadata,
		Hostname:   cfg.Server.Hostname,
		Logger:     logger.Named("pack"),
		Metrics:    collector,
	}
	if err := transfer.ValidatePack(root, opts); err != nil {
		return fail(err)
	}
	if packUpload {
		if cfg.Transport.Bucket == "" {
			return handleErrorMsg(ErrConfigInvalid, "--upload needs a bucket",
				"Set [transport] bucket in the config or OMERO_TRANSFER_S3_BUCKET")
		}
		up, err := transport.NewS3(ctx, transportConfig(cfg.Transport), logger.Named("transport"))
		if err != nil {
			return fail(err)
		}
		opts.Upload = up
	}

	st, err := connect(ctx)
	if err != nil {
		return fail(err)
	}

	var spinner *ui.Spinner
	if !isJSONOutput() {
		spinner = ui.NewSpinner(fmt.Sprintf("Packing %s", root))
		spinner.Start()
	}
	res, err := transfer.Pack(ctx, st, newImporter(st), root, args[1], opts)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return fail(err)
	}

	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"object":   root.String(),
			"archive":  res.Archive,
			"folder":   res.Folder,
			"uri":      res.URI,
			"profile":  string(profile),
			"images":   len(res.Document.Images),
			"rois":     len(res.Document.ROIs),
			"figures":  res.Figures,
			"binaries": !noBinaries,
		}, &Meta{Count: len(res.Document.Images)})
		return nil
	}

	out := res.Archive
	if noBinaries {
		out = res.Folder
	}
	fmt.Println(ui.Successf("Packed %s into %s %s", ui.ObjectRef(string(root.Kind), root.ID), ui.FilePath(out),
		ui.Hint(ui.Count(len(res.Document.Images), "image", "images"))))
	if res.URI != "" {
		fmt.Println(ui.Infof("Uploaded to %s", ui.FilePath(res.URI)))
	}
	return nil
}

// binariesFlag reports whether --binaries asks for metadata only.
func binariesFlag(v string) (noBinaries bool, err error) {
	switch v {
	case "", "all":
		return false, nil
	case "none":
		return true, nil
	}
	return false, fmt.Errorf("%w: --binaries must be all or none, got %q", apperrors.ErrInvalidInput, v)
}

// metadataSelection parses --metadata, falling back to the configured
// default and then to every default field.
func metadataSelection(flag, configured []string) (provenance.Selection, error) {
	values := flag
	if len(values) == 0 {
		values = configured
	}
	if len(values) == 0 {
		return nil, nil
	}
	return provenance.Parse(values)
}

func transportConfig(t config.TransportConfig) transport.Config {
	return transport.Config{
		Bucket:          t.Bucket,
		Region:          t.Region,
		Endpoint:        t.Endpoint,
		Prefix:          t.Prefix,
		PathStyle:       t.PathStyle,
		AccessKeyID:     t.AccessKeyID,
		SecretAccessKey: t.SecretAccessKey,
		SessionToken:    t.SessionToken,
	}
}

func init() {
	packCmd.Flags().BoolVar(&packZip, "zip", false, "Write a zip archive instead of tar")
	packCmd.Flags().BoolVar(&packFigure, "figure", false, "Include OMERO.figure files that reference packed images")
	packCmd.Flags().BoolVar(&packSimple, "simple", false, "Lay files out by project and dataset name")
	packCmd.Flags().BoolVar(&packBArchive, "barchive", false, "Package for the BioImage Archive (writes submission.tsv)")
	packCmd.Flags().BoolVar(&packROCrate, "rocrate", false, "Package as an RO-Crate (writes ro-crate-metadata.json)")
	packCmd.Flags().StringVar(&packBinaries, "binaries", "all", "Pack binaries (all) or metadata only (none)")
	packCmd.Flags().StringSliceVar(&packMetadata, "metadata", nil, "Provenance fields to record: all, none, or field names")
	packCmd.Flags().BoolVar(&packUpload, "upload", false, "Upload the archive to the configured S3 bucket")
	rootCmd.AddCommand(packCmd)
}
