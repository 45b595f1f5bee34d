// Command memctl inspects and edits the CloudX memory store offline.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cloudx/internal/config"
	"cloudx/internal/memory"
)

func main() {
	_ = godotenv.Load(".env")
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var path string

	root := &cobra.Command{
		Use:           "memctl",
		Short:         "Manage the CloudX memory store",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&path, "file", "", "memory snapshot path (default: MEMORY_FILE_PATH)")

	openStore := func() (*memory.Store, error) {
		if path == "" {
			cfg, err := config.Parse()
			if err != nil {
				return nil, err
			}
			path = cfg.MemoryFilePath
		}
		return memory.NewStore(path, nil)
	}

	var description string
	addCmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Append an entry to the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			entry, err := store.Append(strings.Join(args, " "), description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), entry.ID)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&description, "description", "d", "", "short label for the entry")

	var topK int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the entries that best match a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			n := 0
			for content := range store.Search(strings.Join(args, " "), topK) {
				n++
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", n, content)
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			}
			return nil
		},
	}
	searchCmd.Flags().IntVarP(&topK, "k", "k", 3, "maximum number of results")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every entry in store order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			entries, err := store.Entries()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", e.ID, e.Description, e.Content)
			}
			return nil
		},
	}

	root.AddCommand(addCmd, searchCmd, listCmd)
	return root
}
