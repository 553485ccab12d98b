package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/intervu-client/pkg/intervu"
	"github.com/Sternrassler/intervu-client/pkg/pagination"
)

func newQuestionsCmd(a *app) *cobra.Command {
	var (
		filter  intervu.QuestionFilter
		all     bool
		asJSON  bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			var questions []intervu.Question
			if all {
				cfg := pagination.DefaultConfig()
				if filter.Take > 0 {
					cfg.PageSize = filter.Take
				}
				if workers > 0 {
					cfg.MaxConcurrency = workers
				}
				questions, err = b.service.AllQuestions(cmd.Context(), filter.Search, cfg)
			} else {
				questions, err = b.service.Questions(cmd.Context(), filter)
			}
			if err != nil {
				return fmt.Errorf("fetch questions: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), questions)
			}
			return writeQuestions(cmd.OutOrStdout(), questions)
		},
	}

	cmd.Flags().StringVar(&filter.Search, "search", "", "only questions whose title matches")
	cmd.Flags().IntVar(&filter.Skip, "skip", 0, "questions to skip")
	cmd.Flags().IntVar(&filter.Take, "take", 0, "questions to return (page size with --all)")
	cmd.Flags().BoolVar(&all, "all", false, "walk every page")
	cmd.Flags().IntVar(&workers, "workers", 0, "pages fetched in parallel with --all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCategoriesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			categories, err := b.service.Categories(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch categories: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), categories)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, c := range categories {
				fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeQuestions(w io.Writer, questions []intervu.Question) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tANSWERS\tTITLE")
	for _, q := range questions {
		category := "-"
		if q.Category != nil {
			category = q.Category.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", q.ID, category, len(q.Answers), q.Title)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
