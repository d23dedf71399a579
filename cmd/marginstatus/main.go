// Command marginstatus prints account margin health against the emergency
// brake threshold and the configured margin cap, with a per-position
// breakdown of equity exposure.
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

	account, err := client.GetAccount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get account: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n💰 Account: %s equity, %s cash\n",
		diplogic.FormatMoney(account.Equity), diplogic.FormatMoney(account.Cash))
	fmt.Printf("📊 Buying Power: %s\n", diplogic.FormatMoney(account.BuyingPower))

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

	fmt.Printf("\n📍 Total Positions: %d\n", len(equities))
	fmt.Println(strings.Repeat("-", 70))

	totalInvested := 0.0
	for _, p := range equities {
		pctOfEquity := 0.0
		if account.Equity > 0 {
			pctOfEquity = p.MarketValue / account.Equity * 100
		}
		totalInvested += p.MarketValue

		fmt.Printf("%-6s | %6.0f shares | $%9.2f | %5.2f%% | P/L: %+6.2f%%\n",
			p.Symbol, p.Qty, p.MarketValue, pctOfEquity, p.UnrealizedPLPC*100)
	}

	fmt.Println(strings.Repeat("-", 70))
	pctInvested := 0.0
	if account.Equity > 0 {
		pctInvested = totalInvested / account.Equity * 100
	}
	fmt.Printf("TOTAL INVESTED: %s (%.2f%% of equity)\n",
		diplogic.FormatMoney(totalInvested), pctInvested)

	marginRatio := account.MarginRatio()

	fmt.Println("\n💰 MARGIN STATUS:")
	fmt.Printf("Cash: %s\n", diplogic.FormatMoney(account.Cash))
	fmt.Printf("Margin Debt: %s\n", diplogic.FormatMoney(account.MarginDebt()))
	fmt.Printf("Margin Ratio: %.2f%%\n", marginRatio*100)

	brake := "✅ OK"
	if marginRatio > cfg.MarginSafetyThreshold {
		brake = "🛑 ACTIVE"
	}
	fmt.Printf("Emergency Brake: %s (%.0f%% threshold)\n",
		brake, cfg.MarginSafetyThreshold*100)

	capStatus := "✅ OK"
	if marginRatio > cfg.MaxMarginPct {
		capStatus = "⚠️  EXCEEDED"
	}
	fmt.Printf("Max Margin: %s (%.0f%% limit)\n", capStatus, cfg.MaxMarginPct*100)
}
