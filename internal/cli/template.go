package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/chorus/internal/client"
	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/raphaelgruber/chorus/internal/parser"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var templateCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template"},
	Short:   "Manage visualization templates",
	Long: `Manage the visualization templates generations are rendered from.

Subcommands:
  list    List all templates
  show    Show a template and its markup
  add     Create or replace a template from a YAML or Markdown file
  init    Create the built-in templates that do not exist yet

Examples:
  chorus templates list
  chorus templates show bar-chart
  chorus templates add ./weekly-planner.yaml
  chorus templates add ./team-bars.md   # frontmatter fields, html block as markup
  chorus templates init`,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all templates",
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a template and its markup",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Create or replace a template from a YAML or Markdown file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateAdd,
}

var templateInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the built-in templates that do not exist yet",
	RunE:  runTemplateInit,
}

func init() {
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateShowCmd)
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateInitCmd)
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	templates, err := apiClient.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	if len(templates) == 0 {
		fmt.Println("No templates found. Run 'chorus templates init' to create defaults.")
		return nil
	}

	fmt.Printf("Templates (%d):\n\n", len(templates))
	for _, t := range templates {
		desc := ""
		if t.Description != nil {
			desc = fmt.Sprintf(" - %s", *t.Description)
		}
		fmt.Printf("- %s [%s, %.2f]%s\n", t.Name, t.Type, t.Threshold, desc)
		if verbose && len(t.Tags) > 0 {
			fmt.Printf("  Tags: %s\n", strings.Join(t.Tags, ", "))
		}
	}
	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	t, err := apiClient.GetTemplate(context.Background(), args[0])
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("template not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("get template: %w", err)
	}

	fmt.Printf("# %s\n", t.Name)
	if t.Description != nil {
		fmt.Printf("%s\n", *t.Description)
	}
	fmt.Printf("Type: %s, threshold %.2f\n", t.Type, t.Threshold)
	if t.Markup != "" {
		fmt.Printf("\n---\n\n")
		fmt.Println(t.Markup)
	}
	return nil
}

func runTemplateAdd(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	in, err := readTemplateFile(args[0], data)
	if err != nil {
		return err
	}

	t, err := apiClient.UpsertTemplate(context.Background(), in)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	fmt.Printf("Saved template: %s (%s)\n", t.Name, t.ID)
	return nil
}

func runTemplateInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	created := 0

	for _, in := range models.DefaultTemplates() {
		_, err := apiClient.GetTemplate(ctx, in.ID)
		if err == nil {
			if verbose {
				fmt.Printf("  Skipping existing: %s\n", in.Name)
			}
			continue
		}
		if !errors.Is(err, client.ErrNotFound) {
			fmt.Printf("Warning: failed to check %s: %v\n", in.Name, err)
			continue
		}

		if _, err := apiClient.UpsertTemplate(ctx, in); err != nil {
			fmt.Printf("Warning: failed to create %s: %v\n", in.Name, err)
			continue
		}
		created++
		fmt.Printf("  Created: %s\n", in.Name)
	}

	fmt.Printf("\nInitialized %d default templates.\n", created)
	return nil
}

// readTemplateFile parses .md files as frontmatter plus markup and everything else as YAML.
func readTemplateFile(path string, data []byte) (models.TemplateInput, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".md" || ext == ".markdown" {
		in, err := parser.ParseTemplate(string(data))
		if err != nil {
			return models.TemplateInput{}, fmt.Errorf("parse template: %w", err)
		}
		return in, nil
	}

	var in models.TemplateInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return models.TemplateInput{}, fmt.Errorf("parse template: %w", err)
	}
	if in.Name == "" {
		return models.TemplateInput{}, errors.New("parse template: name is required")
	}
	return in, nil
}
