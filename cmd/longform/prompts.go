package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/longform/internal/home"
	"github.com/jackzampolin/longform/internal/output"
	"github.com/jackzampolin/longform/internal/prompts"
)

var promptsExportForce bool

type promptInfo struct {
	Key         string   `json:"key" yaml:"key"`
	Description string   `json:"description" yaml:"description"`
	Variables   []string `json:"variables" yaml:"variables"`
	Override    bool     `json:"override" yaml:"override"`
	Hash        string   `json:"hash" yaml:"hash"`
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List or export prompt templates",
	Long: `Prompt templates are embedded in the binary. A file named <key>.tmpl in
the override directory (default ~/.longform/prompts) replaces the embedded
template of the same key.`,
}

func promptResolver(cmd *cobra.Command) (*prompts.Resolver, error) {
	s, err := services(cmd)
	if err != nil {
		return nil, err
	}
	dir := home.Resolve(s.Config.Get().Paths.PromptOverrides, s.Home.PromptsPath())
	return prompts.NewDefaultResolver(dir, s.Logger)
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt keys and whether each is overridden",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := promptResolver(cmd)
		if err != nil {
			return err
		}
		var infos []promptInfo
		for _, p := range r.AllEmbedded() {
			resolved, err := r.Resolve(p.Key)
			if err != nil {
				return err
			}
			infos = append(infos, promptInfo{
				Key:         p.Key,
				Description: p.Description,
				Variables:   resolved.Variables,
				Override:    resolved.IsOverride,
				Hash:        resolved.Hash[:12],
			})
		}
		return output.Write(cmd.OutOrStdout(), outputFormat, infos)
	},
}

var promptsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy embedded prompts into the override directory for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := promptResolver(cmd)
		if err != nil {
			return err
		}
		n, err := r.ExportAll(promptsExportForce)
		if err != nil {
			return err
		}
		return output.Write(cmd.OutOrStdout(), outputFormat, map[string]int{"exported": n})
	},
}

func init() {
	promptsExportCmd.Flags().BoolVar(&promptsExportForce, "force", false, "overwrite existing overrides")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsExportCmd)
}
