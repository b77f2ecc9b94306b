package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/longform/internal/batch"
	"github.com/jackzampolin/longform/internal/output"
	"github.com/jackzampolin/longform/internal/render"
)

var renderDir string

var renderCmd = &cobra.Command{
	Use:   "render <output.json>",
	Short: "Render a run's output file as one HTML page per document",
	Long: `Render a run's output file as one HTML page per document.

Pages are named NNNN_<document>.html in dataset order. Without --dir they
are written under ~/.longform/rendered/<output name>/.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := services(cmd)
		if err != nil {
			return err
		}
		results, err := batch.ReadOutput(args[0])
		if err != nil {
			return err
		}
		dir := renderDir
		if dir == "" {
			dir = s.Home.RenderDir(args[0])
		}
		files, err := render.WriteHTML(dir, results)
		if err != nil {
			return err
		}
		s.Logger.Info("rendered documents", "dir", dir, "files", len(files))
		return output.Write(cmd.OutOrStdout(), outputFormat, files)
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderDir, "dir", "", "output directory for HTML pages")
}
