package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docforge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docforge/internal/core/ports/driving"
)

var dictionaryCmd = &cobra.Command{
	Use:   "dictionary",
	Short: "Manage the entity dictionary",
	Long: `Manage the dictionary of known entities the matcher tags in
document text. Entries are loaded from YAML files and persisted; the
matcher automaton is recompiled on every change.`,
	RunE: runDictionaryShow,
}

var dictionaryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List dictionary entries",
	RunE:  runDictionaryShow,
}

var dictionaryLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Replace the dictionary from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDictionaryLoad,
}

var dictionaryAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add entries from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDictionaryAdd,
}

func init() {
	dictionaryCmd.AddCommand(dictionaryShowCmd)
	dictionaryCmd.AddCommand(dictionaryLoadCmd)
	dictionaryCmd.AddCommand(dictionaryAddCmd)
	rootCmd.AddCommand(dictionaryCmd)
}

// dictionaryService returns the admin interface, building the pipeline
// when no test substitute is in place.
func dictionaryService() (driving.DictionaryAdmin, *pipeline, error) {
	if dictionaryAdmin != nil {
		return dictionaryAdmin, nil, nil
	}
	p, err := buildPipeline()
	if err != nil {
		return nil, nil, err
	}
	return p.dictionary, p, nil
}

func runDictionaryShow(cmd *cobra.Command, _ []string) error {
	_, p, err := dictionaryService()
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("dictionary store not configured")
	}
	defer p.Close()

	entries, err := p.store.DictionaryStore().All(context.Background())
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}
	if len(entries) == 0 {
		cmd.Println("Dictionary is empty.")
		return nil
	}

	for _, entry := range entries {
		line := fmt.Sprintf("%-14s %s", entry.Type, entry.Name)
		if len(entry.Aliases) > 0 {
			line += " (" + strings.Join(entry.Aliases, ", ") + ")"
		}
		cmd.Println(line)
	}
	cmd.Printf("%d entries.\n", len(entries))
	return nil
}

func runDictionaryLoad(cmd *cobra.Command, args []string) error {
	return loadDictionaryFile(cmd, args[0], true)
}

func runDictionaryAdd(cmd *cobra.Command, args []string) error {
	return loadDictionaryFile(cmd, args[0], false)
}

func loadDictionaryFile(cmd *cobra.Command, path string, replace bool) error {
	entries, err := file.LoadDictionary(path)
	if err != nil {
		return err
	}

	admin, p, err := dictionaryService()
	if err != nil {
		return err
	}
	if p != nil {
		defer p.Close()
	}

	ctx := context.Background()
	if replace {
		err = admin.Replace(ctx, entries)
	} else {
		err = admin.Add(ctx, entries)
	}
	if err != nil {
		return fmt.Errorf("updating dictionary: %w", err)
	}

	cmd.Printf("Loaded %d entries (dictionary version %d).\n", len(entries), admin.Version())
	return nil
}
