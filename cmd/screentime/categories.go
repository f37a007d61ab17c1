package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"screentime/internal/classifier"
	"screentime/internal/config"
	"screentime/internal/session"
	"screentime/internal/storage"
	"screentime/pkg/utils"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"category"},
	Short:   "Manage application categories",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories and application assignments",
	Args:  cobra.NoArgs,
	RunE:  runCategoriesList,
}

var categoriesSetCmd = &cobra.Command{
	Use:   "set APP CATEGORY",
	Short: "Assign an application to a category",
	Long: `Assign an application to a category. Assigning "Uncategorized" removes the
assignment. Reports recolor history immediately.`,
	Example: `  screentime categories set discord Social
  screentime categories set code Utility`,
	Args: cobra.ExactArgs(2),
	RunE: runCategoriesSet,
}

var categoriesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Assign categories from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoriesImport,
}

var categoriesExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write category assignments as YAML (stdout by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCategoriesExport,
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesSetCmd)
	categoriesCmd.AddCommand(categoriesImportCmd)
	categoriesCmd.AddCommand(categoriesExportCmd)
	rootCmd.AddCommand(categoriesCmd)
}

// openClassifier loads category assignments without touching usage.
func openClassifier(ctx context.Context) (*classifier.Classifier, storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := session.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	cls, err := classifier.Load(ctx, store.Categories(), zerolog.Nop())
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	cls.SetColors(cfg.Categories.Colors)
	return cls, store, nil
}

func runCategoriesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cls, store, err := openClassifier(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("Categories:")
	for _, name := range cls.Categories() {
		fmt.Printf("  %-24s %s\n", name, cls.Color(name))
	}

	assignments := cls.Assignments()
	apps := make([]string, 0, len(assignments))
	for app := range assignments {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	fmt.Println()
	cyan.Println("Assignments:")
	if len(apps) == 0 {
		fmt.Printf("  (none, every application is %s)\n", classifier.DefaultCategory)
		return nil
	}
	for _, app := range apps {
		fmt.Printf("  %-30s %s\n", utils.Truncate(app, 30), assignments[app])
	}
	return nil
}

func runCategoriesSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cls, store, err := openClassifier(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := cls.Assign(ctx, args[0], args[1]); err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("%s -> %s\n", args[0], cls.Classify(args[0]))
	warnIfDaemonCaches()
	return nil
}

func runCategoriesImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	seed, err := classifier.LoadSeedFile(args[0])
	if err != nil {
		return err
	}

	cls, store, err := openClassifier(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := cls.Apply(ctx, seed)
	if err != nil {
		return fmt.Errorf("imported %d of %d assignments: %w", n, len(seed), err)
	}
	color.New(color.FgGreen).Printf("Imported %d assignments\n", n)
	warnIfDaemonCaches()
	return nil
}

func runCategoriesExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cls, store, err := openClassifier(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		return cls.Export(os.Stdout)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	if err := cls.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// warnIfDaemonCaches notes that a running tracker keeps its own copy of the
// assignments until restarted or updated through the JSON API.
func warnIfDaemonCaches() {
	cfg, err := loadConfig()
	if err != nil {
		return
	}
	if running, _, _ := daemonStatus(cfg); running {
		color.New(color.FgYellow).Println("Note: the running tracker picks this up after a restart; use the JSON API to update it live.")
	}
}

func daemonStatus(cfg *config.Config) (bool, int, error) {
	return newDaemon(cfg).IsRunning()
}
