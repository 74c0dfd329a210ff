package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query indexed records",
	Long: `Query the daemon's record index.

Common filters have flags; anything else the API accepts can be passed
with --param.

Examples:
  # All recipes mentioning chicken
  burrow query --record-type recipe --search chicken

  # Blockchain records only, newest first, resolving references
  burrow query --source arweave --sort-by date:desc --resolve-depth 2

  # Any API parameter verbatim
  burrow query --param ingredientNames=garlic,thyme --param cuisine=french`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("record-type", "", "Record type filter")
	queryCmd.Flags().String("search", "", "Full-text search terms")
	queryCmd.Flags().String("did", "", "Exact DID lookup")
	queryCmd.Flags().String("template", "", "Template name filter")
	queryCmd.Flags().String("tags", "", "Comma-separated tag filter")
	queryCmd.Flags().String("source", "", "all, arweave, or gun")
	queryCmd.Flags().String("sort-by", "", "Sort field, e.g. date:desc")
	queryCmd.Flags().Int("limit", 0, "Page size")
	queryCmd.Flags().Int("page", 0, "Page number")
	queryCmd.Flags().Int("resolve-depth", 0, "Resolve DID references this deep")
	queryCmd.Flags().StringArray("param", nil, "Extra key=value API parameter (repeatable)")
	queryCmd.Flags().Bool("summary", false, "Print the result summary only")
	clientFlags(queryCmd)

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	setString := func(param, flag string) {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			params.Set(param, v)
		}
	}
	setInt := func(param, flag string) {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetInt(flag)
			params.Set(param, strconv.Itoa(v))
		}
	}
	setString("recordType", "record-type")
	setString("search", "search")
	setString("did", "did")
	setString("template", "template")
	setString("tags", "tags")
	setString("source", "source")
	setString("sortBy", "sort-by")
	setInt("limit", "limit")
	setInt("page", "page")
	setInt("resolveDepth", "resolve-depth")

	extra, _ := cmd.Flags().GetStringArray("param")
	for _, kv := range extra {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--param wants key=value, got %q", kv)
		}
		params.Set(key, value)
	}

	resp, err := newClient(cmd).Query(params)
	if err != nil {
		return err
	}

	fmt.Printf("%d of %d records (page %d/%d, indexing %s)\n",
		resp.SearchResults, resp.TotalRecords, resp.CurrentPage,
		resp.TotalPages, resp.IndexingProgress)
	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		return nil
	}

	out, err := json.MarshalIndent(resp.Records, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
