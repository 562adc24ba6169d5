package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/claudecode"
)

// newProjectsCmd creates the `homeclaw projects` command group for
// inspecting the Claude Code project registry.
func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect the Claude Code project registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			projects := registry.List()
			if len(projects) == 0 {
				fmt.Println("No projects configured. Edit the registry file to add some.")
				return nil
			}
			for _, p := range projects {
				fmt.Printf("%s\t%s\n", p.Name, p.Path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "permissions <project>",
		Short: "Show saved permission rules for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			store := claudecode.NewPermissionStore(cfg.ClaudeCode.PermissionsPath, nil)
			rules, ok := store.ProjectPermissions(args[0])
			if !ok {
				fmt.Println("No saved permissions for", args[0])
				return nil
			}
			printRules := func(kind string, rs []claudecode.Rule) {
				for _, r := range rs {
					switch {
					case r.Command != "":
						fmt.Printf("%s\t%s\tcommand: %s\n", kind, r.Tool, r.Command)
					case r.CommandPattern != "":
						fmt.Printf("%s\t%s\tpattern: %s\n", kind, r.Tool, r.CommandPattern)
					case r.Pattern != "":
						fmt.Printf("%s\t%s\t%s\n", kind, r.Tool, r.Pattern)
					default:
						fmt.Printf("%s\t%s\t(any)\n", kind, r.Tool)
					}
				}
			}
			printRules("allow", rules.Allowed)
			printRules("deny", rules.Denied)
			return nil
		},
	})

	return cmd
}

func openRegistry(cmd *cobra.Command) (*claudecode.Registry, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return claudecode.NewRegistry(cfg.ClaudeCode.RegistryPath), nil
}
