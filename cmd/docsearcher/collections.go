package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/cli"
	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/pkg/utils"
)

func newCollectionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"collection", "col"},
		Short:   "Manage collections",
	}
	cmd.AddCommand(newCollectionsListCmd(opts))
	cmd.AddCommand(newCollectionsAddCmd(opts))
	cmd.AddCommand(newCollectionsRemoveCmd(opts))
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newCollectionsListCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections and their index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := cli.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := openApp(opts, utils.NewCommandLogger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			if err := a.init(ctx, false); err != nil {
				a.logger.Warn("no collection could be initialized", zap.Error(err))
			}
			if err := a.wait(ctx, a.registry.List()); err != nil {
				a.logger.Warn("indexing failed", zap.Error(err))
			}
			cols := a.registry.List()
			statuses := make([]collection.Status, 0, len(cols))
			for _, c := range cols {
				statuses = append(statuses, c.Status())
			}
			return cli.WriteCollections(cmd.OutOrStdout(), statuses, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, compact")
	return cmd
}

func newCollectionsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		extensions  []string
		archives    bool
		description string
		noIndex     bool
	)
	cmd := &cobra.Command{
		Use:   "add <name> <directory>",
		Short: "Register a directory as a collection and index it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("content directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			ctx := commandContext(cmd)
			a, err := openApp(opts, utils.NewCommandLogger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.registry.CheckExtensions(extensions); err != nil {
				return err
			}
			if _, err := a.registry.GetByName(args[0]); err == nil {
				a.logger.Warn("a collection with this name already exists; searches by name use the first one",
					zap.String("name", args[0]))
			}
			c := collection.New(collection.Config{
				Name:          args[0],
				Description:   description,
				ContentDir:    dir,
				Extensions:    extensions,
				IndexArchives: archives,
			})
			id, err := a.registry.Add(c)
			if err != nil {
				return err
			}
			a.storeRegistry()
			fmt.Fprintf(cmd.OutOrStdout(), "Added collection %s (%s)\n", c.Name(), id)
			if noIndex {
				return nil
			}
			if err := c.Init(ctx); err != nil {
				return err
			}
			if err := a.wait(ctx, []*collection.Collection{c}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents\n", c.NumberOfDocs())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "File extensions to index, e.g. .txt,.pdf (default: all supported)")
	cmd.Flags().BoolVar(&archives, "archives", false, "Index documents inside archives")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Register without building the index")
	return cmd
}

func newCollectionsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a collection and its index",
		Long:    "Remove a collection and delete its index. The content directory is left untouched.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, utils.NewCommandLogger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			c, err := a.registry.GetByName(args[0])
			if err != nil {
				return fmt.Errorf("collection %q: %w", args[0], err)
			}
			id := c.ID()
			err = a.registry.Delete(commandContext(cmd), c)
			a.storeRegistry()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed collection %s (%s)\n", args[0], id)
			return nil
		},
	}
}
