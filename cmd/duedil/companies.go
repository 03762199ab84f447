package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var companiesOffset int

var companiesCmd = &cobra.Command{
	Use:   "companies [query]",
	Short: "List companies, optionally filtered by a search query",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		page, err := newClient().Companies(cmd.Context(), query, companiesOffset)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOUNTRY\tINDUSTRY\tSTATUS\tDD")
		for _, c := range page.Companies {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Country, c.Industry, c.Status, c.DDStatus)
		}
		w.Flush()
		fmt.Printf("%d-%d of %d\n", page.Offset, page.Offset+len(page.Companies), page.Total)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <website>",
	Short: "Register a company by website",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient().AddCompany(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("added company %d: %s\n", c.ID, c.Name)
		return nil
	},
}

var similarN int

var similarCmd = &cobra.Command{
	Use:   "similar <text>",
	Short: "Find companies similar to a free-text description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		matches, err := newClient().SimilarCompanies(cmd.Context(), args[0], similarN)
		if err != nil {
			return err
		}
		for _, c := range matches {
			fmt.Printf("%d\t%s\t%s\n", c.ID, c.Name, c.Country)
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <file>",
	Short: "Match companies against an uploaded document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		res, err := newClient().CompaniesByDocument(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		for _, c := range res.Companies {
			fmt.Printf("%d\t%s\n", c.ID, c.Name)
		}
		return nil
	},
}

var companySetCmd = &cobra.Command{
	Use:   "company-set <id> <key> <value>",
	Short: "Overwrite one field of a company record",
	Long:  "Merges a single key into the stored company document and writes the whole document back. Dotted keys address one level of nesting, e.g. details.founded.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("company id: %w", err)
		}
		sess := newSession(newClient())
		defer sess.Close()
		if err := sess.Load(cmd.Context(), id); err != nil {
			return err
		}
		if err := sess.UpdateCompanyKey(cmd.Context(), args[1], fieldValue(args[2])); err != nil {
			return err
		}
		fmt.Println("updated")
		return nil
	},
}

func init() {
	companiesCmd.Flags().IntVar(&companiesOffset, "offset", 0, "pagination offset")
	similarCmd.Flags().IntVar(&similarN, "n", 5, "number of matches")
	rootCmd.AddCommand(matchCmd)
}
