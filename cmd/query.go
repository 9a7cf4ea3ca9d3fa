package main

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mapvia/internal/directory"
)

var (
	queryBBox   string
	queryQ      string
	queryTags   string
	queryLimit  int
	queryCursor int
	querySource string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a company query and print the page as JSON",
	Example: `  mapvia query --bbox=-118.5,33.9,-118.1,34.2 --q=design
  mapvia query --tags=ai,saas --limit=5 --cursor=10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}

		req, err := directory.ParseRequest(queryValues(), directory.Limits{
			Default: cfg.Query.DefaultLimit,
			Max:     cfg.Query.MaxLimit,
		})
		if err != nil {
			return err
		}

		a := buildApp(cfg, nil)
		page, err := a.Service.Query(cmd.Context(), req)
		if err != nil {
			return eris.Wrap(err, "query")
		}

		cmd.PrintErrf("source: %s\n", page.Source)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	},
}

// queryValues maps the flags onto the HTTP query parameters so the CLI and
// the API share one parser.
func queryValues() url.Values {
	v := url.Values{}
	if queryBBox != "" {
		v.Set("bbox", queryBBox)
	}
	if queryQ != "" {
		v.Set("q", queryQ)
	}
	if queryTags != "" {
		v.Set("tags", queryTags)
	}
	if queryLimit > 0 {
		v.Set("limit", strconv.Itoa(queryLimit))
	}
	if queryCursor > 0 {
		v.Set("cursor", strconv.Itoa(queryCursor))
	}
	if querySource != "" {
		v.Set("source", querySource)
	}
	return v
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryBBox, "bbox", "", "bounding box as minLng,minLat,maxLng,maxLat")
	f.StringVar(&queryQ, "q", "", "keyword matched against company names")
	f.StringVar(&queryTags, "tags", "", "comma-separated tags, any of which must match")
	f.IntVar(&queryLimit, "limit", 0, "page size (default from config)")
	f.IntVar(&queryCursor, "cursor", 0, "offset into the filtered results")
	f.StringVar(&querySource, "source", "", `set to "overpass" to force a live lookup`)
	rootCmd.AddCommand(queryCmd)
}
