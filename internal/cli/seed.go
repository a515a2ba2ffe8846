package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var seedDefaults bool

var seedCmd = &cobra.Command{
	Use:   "seed [file.yaml]",
	Short: "Create personas and templates from a YAML file",
	Long: `Create or replace personas and templates in one go.

The file has two optional lists:

  agents:
    - id: ada
      name: Ada
      personality: A precise, curious engineer.
  templates:
    - id: bar-chart
      name: Bar Chart
      type: chart
      threshold: 0.75

With --defaults the built-in personas and templates are seeded as well.

Examples:
  chorus seed --defaults
  chorus seed ./room-setup.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedDefaults, "defaults", false, "seed the built-in personas and templates")
}

// seedFile is the YAML document read by the seed command.
type seedFile struct {
	Agents    []models.AgentInput    `yaml:"agents"`
	Templates []models.TemplateInput `yaml:"templates"`
}

func parseSeed(data []byte) (seedFile, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	for i, a := range seed.Agents {
		if a.Name == "" || a.Personality == "" {
			return seedFile{}, fmt.Errorf("agent %d: name and personality are required", i)
		}
	}
	for i, t := range seed.Templates {
		if t.Name == "" {
			return seedFile{}, fmt.Errorf("template %d: name is required", i)
		}
	}
	return seed, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	var seed seedFile
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		if seed, err = parseSeed(data); err != nil {
			return err
		}
	}
	if seedDefaults {
		seed.Agents = append(models.DefaultAgents(), seed.Agents...)
		seed.Templates = append(models.DefaultTemplates(), seed.Templates...)
	}
	if len(seed.Agents) == 0 && len(seed.Templates) == 0 {
		return errors.New("nothing to seed: pass a file or --defaults")
	}

	ctx := context.Background()
	var failed int

	for _, in := range seed.Agents {
		if _, err := apiClient.UpsertAgent(ctx, in); err != nil {
			fmt.Printf("Warning: failed to save persona %s: %v\n", in.Name, err)
			failed++
			continue
		}
		fmt.Printf("  Persona: %s\n", in.Name)
	}
	for _, in := range seed.Templates {
		if _, err := apiClient.UpsertTemplate(ctx, in); err != nil {
			fmt.Printf("Warning: failed to save template %s: %v\n", in.Name, err)
			failed++
			continue
		}
		fmt.Printf("  Template: %s\n", in.Name)
	}

	if len(seed.Agents) > 0 {
		n, err := apiClient.ReloadAgents(ctx)
		if err != nil {
			fmt.Printf("Warning: persona reload failed: %v\n", err)
		} else if verbose {
			fmt.Printf("  Server now has %d personas\n", n)
		}
	}

	fmt.Printf("\nSeeded %d personas and %d templates", len(seed.Agents), len(seed.Templates))
	if failed > 0 {
		fmt.Printf(" (%d failed)", failed)
	}
	fmt.Println(".")
	return nil
}
