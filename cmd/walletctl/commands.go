package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/slot-automator/internal/service"
	"github.com/slot-automator/internal/types"
)

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List game wallets with their cached balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			if err := e.unlock(cmd.Context()); err != nil {
				return err
			}
			wallets, err := e.registry.List()
			if err != nil {
				return err
			}
			views := make([]types.WalletView, len(wallets))
			for i, w := range wallets {
				views[i] = w.View()
			}
			return printWallets(cmd.OutOrStdout(), views)
		},
	}
}

func printWallets(out io.Writer, wallets []types.WalletView) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tBALANCE\tTXS\tSENT\tGAS\tCREATED")
	for _, w := range wallets {
		sent, _ := decimal.NewFromString(w.TotalSent)
		gas, _ := decimal.NewFromString(w.TotalGasFees)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%d\t%s %s\t%s %s\t%s\n",
			w.ID, w.Name, w.Address,
			w.BalanceEther, service.NativeSymbol,
			w.TransactionCount,
			types.FormatEther(sent), service.NativeSymbol,
			types.FormatEther(gas), service.NativeSymbol,
			time.UnixMilli(w.CreatedAt).UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func exportKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export-key <wallet-id>",
		Short: "Print the private key of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			if err := e.unlock(cmd.Context()); err != nil {
				return err
			}
			p, err := e.passphrase()
			if err != nil {
				return err
			}
			key, err := e.registry.ExportKey(args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent bets and their verification state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			history := service.NewHistoryLog(e.store, e.keys.History, e.cfg.Automation.HistoryCapacity, e.logger)
			if err := history.Load(cmd.Context()); err != nil {
				return err
			}
			records := history.List()
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show, 0 for all")
	return cmd
}

func printHistory(out io.Writer, records []types.TransactionRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tWALLET\tAMOUNT\tGAME\tOUTCOME\tHASH")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339),
			r.WalletName,
			types.FormatEther(r.Amount), service.NativeSymbol,
			r.Game, r.Verification, r.Hash)
	}
	return tw.Flush()
}

func resetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted wallet collection (history is kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete every wallet without --yes")
			}
			e := envFrom(cmd)
			if err := e.registry.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wallet collection deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func costCommand() *cobra.Command {
	var (
		rate    int
		betSize string
	)
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate the spend of an automation setting, excluding gas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := types.AutomationConfig{Rate: rate, Game: types.DefaultGame}
			bet, err := decimal.NewFromString(betSize)
			if err != nil {
				return fmt.Errorf("invalid bet size %q: %w", betSize, err)
			}
			cfg.BetSize = bet
			if err := cfg.Validate(); err != nil {
				return err
			}
			cost := types.CalculateCost(cfg.Rate, cfg.BetSize)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "interval:   %s\n", cfg.Interval())
			fmt.Fprintf(out, "per minute: %s %s\n", cost.PerMinute, service.NativeSymbol)
			fmt.Fprintf(out, "per hour:   %s %s\n", cost.PerHour, service.NativeSymbol)
			return nil
		},
	}
	cmd.Flags().IntVarP(&rate, "rate", "r", types.DefaultRate, "transactions per minute ("+strconv.Itoa(types.MinRate)+"-"+strconv.Itoa(types.MaxRate)+")")
	cmd.Flags().StringVarP(&betSize, "bet", "b", types.DefaultBetSize.String(), "bet size in "+service.NativeSymbol)
	return cmd
}
