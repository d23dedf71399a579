// Command positions prints the account's current equity holdings sorted by
// market value.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/config"
	"bigdipper/pkg/diplogic"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	client := broker.NewAlpaca(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.Paper)

	positions, err := client.GetPositions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list positions: %v\n", err)
		os.Exit(1)
	}

	var equities []broker.Position
	for _, p := range positions {
		if p.AssetClass == "us_equity" {
			equities = append(equities, p)
		}
	}
	sort.Slice(equities, func(i, j int) bool {
		return equities[i].MarketValue > equities[j].MarketValue
	})

	fmt.Printf("\n%-8s %-8s %-10s %-10s %-12s %-8s\n",
		"Symbol", "Shares", "Avg Cost", "Current", "Value", "P/L %")
	fmt.Println(strings.Repeat("=", 70))

	totalValue := 0.0
	for _, p := range equities {
		plPct := 0.0
		if p.AvgEntryPrice > 0 {
			plPct = (p.CurrentPrice - p.AvgEntryPrice) / p.AvgEntryPrice * 100
		}
		totalValue += p.MarketValue

		fmt.Printf("%-8s %-8.0f $%-9.2f $%-9.2f $%-11.2f %6.1f%%\n",
			p.Symbol, p.Qty, p.AvgEntryPrice, p.CurrentPrice, p.MarketValue, plPct)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("%-8s %-8s %-10s %-10s $%-11.2f\n", "TOTAL", "", "", "", totalValue)
	fmt.Printf("\nTotal invested: %s across %d positions\n",
		diplogic.FormatMoney(totalValue), len(equities))
}
