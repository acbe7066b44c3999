package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"dealtracker/models"
)

// PrintRunSummary writes a boxed run report to w
func PrintRunSummary(w io.Writer, s *models.RunSummary) {
	border := strings.Repeat("═", 55)
	thin := strings.Repeat("─", 55)

	title := "DEALS REFRESH"
	if s.Kind == models.RunRefreshTracked {
		title = "TRACKED PRICES REFRESH"
	}

	fmt.Fprintf(w, "\n╔%s╗\n", border)
	fmt.Fprintf(w, "║%s║\n", center(title, 55))
	fmt.Fprintf(w, "╚%s╝\n", border)

	fmt.Fprintf(w, "\n RUN\n%s\n", thin)
	fmt.Fprintf(w, "  Run ID                  : %s\n", s.RunID)
	fmt.Fprintf(w, "  Started                 : %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Completed               : %s\n", s.CompletedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration                : %s\n", s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(w, "\n COUNTS\n%s\n", thin)
	if s.Kind == models.RunRefreshTracked {
		fmt.Fprintf(w, "  Products Checked        : %d\n", s.Scraped)
		fmt.Fprintf(w, "  Products Updated        : %d\n", s.UpdatedProducts)
		fmt.Fprintf(w, "  Alerts Triggered        : %d\n", s.AlertsTriggered)
	} else {
		fmt.Fprintf(w, "  Deals Scraped           : %d\n", s.Scraped)
		fmt.Fprintf(w, "  Inserted                : %d\n", s.Inserted)
		fmt.Fprintf(w, "  Updated                 : %d\n", s.Updated)
	}
	fmt.Fprintf(w, "  Failed                  : %d\n", s.Failed)

	fmt.Fprintf(w, "\n%s\n\n", border)
}

// PrintDealStats writes the deal cache overview and category breakdown to w
func PrintDealStats(w io.Writer, st *models.DealStats, cats []models.CategoryCount) {
	thin := strings.Repeat("─", 55)

	fmt.Fprintf(w, "\n DEAL CACHE\n%s\n", thin)
	fmt.Fprintf(w, "  Active Deals            : %d\n", st.TotalDeals)
	fmt.Fprintf(w, "  50%%+ Discount           : %d\n", st.HighDiscountDeals)
	fmt.Fprintf(w, "  Prime Eligible          : %d\n", st.PrimeDeals)
	fmt.Fprintf(w, "  Average Discount        : %.1f%%\n", st.AverageDiscount)
	if st.LastUpdated != nil {
		fmt.Fprintf(w, "  Last Updated            : %s\n", st.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	if len(cats) > 0 {
		fmt.Fprintf(w, "\n DEALS PER CATEGORY\n%s\n", thin)
		for _, c := range cats {
			bar := strings.Repeat("▓", min(c.DealCount, 30))
			fmt.Fprintf(w, "  %-25s %3d  %s\n", truncate(c.Category, 24)+":", c.DealCount, bar)
		}
	}
	fmt.Fprintln(w)
}

func center(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	pad := (width - len(runes)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(runes)-pad)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
