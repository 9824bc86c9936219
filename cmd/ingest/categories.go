package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
)

func newCategoriesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Manage categories and their keywords",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List categories in display order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
					categories, err := deps.Categories.ListCategories(ctx)
					if err != nil {
						return err
					}
					printCategories(cmd.OutOrStdout(), categories)
					return nil
				})
			},
		},
		newCategoryCreateCommand(a),
		&cobra.Command{
			Use:   "rename NAME NEW_NAME",
			Short: "Rename a category",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
					cat, err := deps.Categories.ResolveByName(ctx, args[0])
					if err != nil {
						return err
					}
					if err := deps.Categories.RenameCategory(ctx, cat.ID, args[1]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", cat.Name, strings.TrimSpace(args[1]))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a category; its transactions are recategorized",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
					cat, err := deps.Categories.ResolveByName(ctx, args[0])
					if err != nil {
						return err
					}
					res, err := deps.Categories.DeleteCategory(ctx, cat.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s; %s\n", cat.Name, describeResult(res))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add-keyword NAME KEYWORD...",
			Short: "Add keywords to a category",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
					cat, err := deps.Categories.ResolveByName(ctx, args[0])
					if err != nil {
						return err
					}
					var total categorization.Result
					for _, kw := range args[1:] {
						res, err := deps.Categories.AddKeyword(ctx, cat.ID, kw)
						if err != nil {
							return err
						}
						total.Add(res)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "updated %s; %s\n", cat.Name, describeResult(total))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove-keyword NAME KEYWORD...",
			Short: "Remove keywords from a category",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
					cat, err := deps.Categories.ResolveByName(ctx, args[0])
					if err != nil {
						return err
					}
					var total categorization.Result
					for _, kw := range args[1:] {
						res, err := deps.Categories.RemoveKeyword(ctx, cat.ID, kw)
						if err != nil {
							return err
						}
						total.Add(res)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "updated %s; %s\n", cat.Name, describeResult(total))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the categories of the rules file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
					out, err := deps.Categories.Seed(ctx, deps.Rules.Categories)
					if err != nil {
						return err
					}
					w := cmd.OutOrStdout()
					fmt.Fprintf(w, "created %d categories, added %d keywords; %s\n",
						len(out.Created), out.KeywordsAdded, describeResult(out.Recategorized))
					if len(out.Skipped) > 0 {
						fmt.Fprintf(w, "skipped keywords owned by other categories: %s\n", strings.Join(out.Skipped, ", "))
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newCategoryCreateCommand(a *app) *cobra.Command {
	var keywords []string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				cat, res, err := deps.Categories.CreateCategory(ctx, args[0], keywords)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s; %s\n", cat.Name, describeResult(res))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "keywords (repeatable or comma separated)")
	return cmd
}

func printCategories(out io.Writer, categories []categorization.Category) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tNAME\tKEYWORDS\t")
	for _, c := range categories {
		name := c.Name
		if c.IsSystem {
			name += " (system)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", c.DisplayOrder, name, strings.Join(c.Keywords, ", "))
	}
	tw.Flush()
}

func describeResult(res categorization.Result) string {
	return fmt.Sprintf("%d assigned, %d uncategorized, %d conflicts", res.Assigned, res.Uncategorized, res.Conflicts)
}
