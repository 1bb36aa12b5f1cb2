package app

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hitoshi/kolboard/internal/apiclient"
	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/pagination"
)

type browseOptions struct {
	Resource  string
	Platforms []string
	Creator   string
	SortBy    string
	Direction string
	Pages     int
	PageSize  int
}

// validate はAPIに問い合わせる前にオプションを検証する。
func (o browseOptions) validate() error {
	if o.PageSize < 1 || o.PageSize > 100 {
		return model.NewInvalidParameterError("page-size", strconv.Itoa(o.PageSize))
	}
	if o.Pages < 1 {
		return model.NewInvalidParameterError("pages", strconv.Itoa(o.Pages))
	}
	if o.Direction != "" && o.Direction != string(model.SortAsc) && o.Direction != string(model.SortDesc) {
		return model.NewInvalidParameterError("direction", o.Direction)
	}
	if o.Creator != "" {
		return nil
	}

	resource := model.Resource(o.Resource)
	if resource.DefaultSortKey() == "" {
		return model.NewInvalidParameterError("resource", o.Resource)
	}
	if o.SortBy != "" && !resource.ValidSortKey(o.SortBy) {
		return model.NewInvalidSortKeyError(o.SortBy, resource.SortKeys())
	}
	for _, p := range o.Platforms {
		if p == apiclient.SourceAll {
			continue
		}
		if _, ok := model.ParsePlatform(p); !ok {
			return model.NewInvalidPlatformError(p)
		}
	}
	return nil
}

// runBrowse はプラットフォームのタブを順に選択し、各タブで指定ページ数まで読み込んで一覧を出力する。
// --creator指定時はクリエイターIDを唯一のタブとして投稿一覧を読み込む。
func runBrowse(ctx context.Context, client *apiclient.Client, out io.Writer, opts browseOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	fetch := client.PageFetcher(model.Resource(opts.Resource))
	sources := opts.Platforms
	if opts.Creator != "" {
		fetch = client.PostsFetcher()
		sources = []string{opts.Creator}
	}
	if len(sources) == 0 {
		sources = []string{apiclient.SourceAll}
	}

	ctrl := pagination.New(fetch, listItemKey, pagination.Config{
		PageSize: opts.PageSize,
		Filter: pagination.Filter{
			SortBy:        opts.SortBy,
			SortDirection: opts.Direction,
		},
	})

	for _, source := range sources {
		if err := ctrl.Select(ctx, source); err != nil {
			return fmt.Errorf("failed to load %s: %w", source, err)
		}
		for page := 1; page < opts.Pages; page++ {
			if !ctrl.State(source).HasMore {
				break
			}
			if err := ctrl.FetchPage(ctx, source, false); err != nil {
				return fmt.Errorf("failed to load more %s: %w", source, err)
			}
		}

		if err := printSource(out, source, ctrl.State(source)); err != nil {
			return err
		}
	}
	return nil
}

// listItemKey はタブ内の重複排除キー。"all"タブでは複数プラットフォームが混在するためプラットフォームを含める。
func listItemKey(item model.ListItem) string {
	return string(item.Platform) + ":" + item.ID
}

func printSource(out io.Writer, source string, st pagination.State[model.ListItem]) error {
	more := ""
	if st.HasMore {
		more = ", more available"
	}
	if _, err := fmt.Fprintf(out, "== %s (%d items%s) ==\n", source, len(st.Items), more); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, item := range st.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, item.Platform, item.Name, formatMetrics(item.Metrics))
	}
	return tw.Flush()
}

// formatMetrics はメトリクスをキー順に "key=value" で連結する。
func formatMetrics(m map[string]float64) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, k+"="+strconv.FormatFloat(m[k], 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}
