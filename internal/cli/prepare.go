package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/prepare"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var prepareFileList bool

var prepareCmd = &cobra.Command{
	Use:   "prepare <folder>",
	Short: "Describe local files as a package so they can be unpacked",
	Long: `Walk a folder (or read a list of files), group the files into import targets
and write transfer.xml describing their images and plates. The folder can
then be unpacked with --folder.

Examples:
  omero-transfer prepare ./acquisition
  omero-transfer prepare files.txt --filelist
  omero-transfer unpack ./acquisition --folder`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := prepare.Prepare(cmd.Context(), args[0], prepare.Options{
			FileList:  prepareFileList,
			Inspector: newInspector(),
			Logger:    logger.Named("prepare"),
		})
		if err != nil {
			return fail(err)
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"path":    res.Path,
				"base":    res.Base,
				"targets": res.Targets,
				"images":  len(res.Document.Images),
				"plates":  len(res.Document.Plates),
			}, &Meta{Count: len(res.Targets)})
			return nil
		}

		fmt.Println(ui.Successf("Wrote %s %s", ui.FilePath(res.Path),
			ui.Hint(ui.Count(len(res.Document.Images), "image", "images"))))
		for _, t := range res.Targets {
			fmt.Printf("  %s\n", t)
		}
		return nil
	},
}

func init() {
	prepareCmd.Flags().BoolVar(&prepareFileList, "filelist", false, "The argument is a text file listing one path per line")
	rootCmd.AddCommand(prepareCmd)
}
