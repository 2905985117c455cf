package cli

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/usecase"
	"github.com/spf13/cobra"
)

func newProductsCmd(getApp func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List tracked products",
		Long: `Lists tracked products from the backend and the browser extension, merged
with their alerts, filtered and sorted.

With --watch the list is redrawn when the extension storage changes, and
each line typed on stdin replaces the search query.`,
		Example: `  dealpop products --vendor amazon --sort price --order asc
  dealpop products --status tracking --max-price 500
  dealpop products --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			if err := signIn(cmd, app); err != nil {
				return err
			}
			filters, err := filtersFromFlags(cmd)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				return watchProducts(cmd, app, output, filters)
			}
			return renderProducts(cmd.Context(), app, output, filters)
		},
	}

	cmd.Flags().String("query", "", "free-text search across name, vendor, brand, color and capacity")
	cmd.Flags().String("status", domain.StatusAll, "tracking, paused, completed or all")
	cmd.Flags().String("vendor", "", "vendor filter (substring match)")
	cmd.Flags().Float64("min-price", 0, "minimum current price")
	cmd.Flags().Float64("max-price", 0, "maximum current price (0 for no limit)")
	cmd.Flags().String("sort", string(domain.SortSmart), "smart, name, price or vendor")
	cmd.Flags().String("order", string(domain.SortDesc), "asc or desc")
	cmd.Flags().Bool("watch", false, "redraw on extension changes and read queries from stdin")
	return cmd
}

func filtersFromFlags(cmd *cobra.Command) (domain.SearchFilters, error) {
	filters := usecase.DefaultFilters()
	filters.Query, _ = cmd.Flags().GetString("query")
	filters.Status, _ = cmd.Flags().GetString("status")
	filters.Vendor, _ = cmd.Flags().GetString("vendor")
	filters.PriceRange.Min, _ = cmd.Flags().GetFloat64("min-price")
	if maxPrice, _ := cmd.Flags().GetFloat64("max-price"); maxPrice > 0 {
		filters.PriceRange.Max = maxPrice
	} else {
		filters.PriceRange.Max = math.Inf(1)
	}

	sortBy, _ := cmd.Flags().GetString("sort")
	switch s := domain.SortBy(sortBy); s {
	case domain.SortSmart, domain.SortName, domain.SortPrice, domain.SortVendor:
		filters.SortBy = s
	default:
		return filters, fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidRequest, sortBy)
	}
	order, _ := cmd.Flags().GetString("order")
	switch o := domain.SortOrder(order); o {
	case domain.SortAsc, domain.SortDesc:
		filters.SortOrder = o
	default:
		return filters, fmt.Errorf("%w: unknown order %q", domain.ErrInvalidRequest, order)
	}
	return filters, nil
}

func renderProducts(ctx context.Context, app *App, output *Output, filters domain.SearchFilters) error {
	listing, err := app.Dashboard.Products(ctx, filters)
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(listing)
	}

	output.Printf("%d of %d products\n", len(listing.Products), listing.Total)
	for _, p := range listing.Products {
		output.Printf("%-14s %-40s %-14s %12s", p.ID, truncate(p.Title, 40), truncate(p.Vendor, 14), usecase.FormatPrice(p.CurrentPrice))
		if p.EffectiveTargetPrice > 0 {
			output.Printf("  target %s", usecase.FormatPrice(p.EffectiveTargetPrice))
		}
		output.Printf("  %s", p.Status)
		if p.HasAlert {
			output.Printf("  [alert]")
		}
		if p.PriceDropped {
			output.Printf("  [dropped]")
		}
		output.Println()
		if p.IsDeal {
			output.Success("  %s", usecase.FormatSavingsMessage(p.Savings, p.SavingsPercentage))
		}
	}
	return nil
}

func watchProducts(cmd *cobra.Command, app *App, output *Output, initial domain.SearchFilters) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var renderMu sync.Mutex
	render := func(filters domain.SearchFilters) {
		renderMu.Lock()
		defer renderMu.Unlock()
		if err := renderProducts(ctx, app, output, filters); err != nil {
			output.Error("Failed to load products: %v", err)
		}
	}

	debouncer := usecase.NewFilterDebouncer(initial, 0, render)
	defer debouncer.Stop()

	err := app.Extension.Watch(ctx, func([]domain.CapturedProduct) {
		render(debouncer.Current())
	})
	if err != nil {
		output.Warning("Extension storage is not watched: %v", err)
	}

	render(initial)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			query := strings.TrimSpace(line)
			debouncer.Update(func(f *domain.SearchFilters) { f.Query = query })
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
