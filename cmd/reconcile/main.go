// Reconciles the custodian's stablecoin balance against the escrow the
// fund snapshots say it should hold. Pending investment requests collect
// their deposit at submission, so the custodian balance must cover the sum
// of every open request across every fund. A commit failure after a
// settled custody leg shows up here as a surplus (orphaned deposit) or a
// deficit (refund paid but the request still recorded).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/fund-ledger/internal/adapter"
	"github.com/fund-ledger/internal/config"
	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/storage"
)

func main() {
	fundFlag := flag.String("fund", "", "Reconcile a single fund and print its pending requests")
	toleranceFlag := flag.Int64("tolerance", 0, "Allowed absolute difference in stablecoin base units")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to Postgres: %v\n", err)
		os.Exit(1)
	}
	defer postgres.Close()

	stablecoin, err := adapter.NewStablecoinClient(cfg.Chain)
	if err != nil {
		fmt.Printf("Error initializing stablecoin client: %v\n", err)
		os.Exit(1)
	}
	defer stablecoin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fundRepo := storage.NewFundRepository(postgres)

	if *fundFlag != "" {
		if err := reconcileSingleFund(ctx, fundRepo, *fundFlag); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := reconcileAll(ctx, fundRepo, stablecoin, *toleranceFlag); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func reconcileAll(ctx context.Context, fundRepo *storage.FundRepository, stablecoin adapter.StablecoinClient, tolerance int64) error {
	expected := big.NewInt(0)
	var fundCount, requestCount int

	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		funds, err := fundRepo.List(ctx, pageSize, offset)
		if err != nil {
			return fmt.Errorf("list funds: %w", err)
		}
		if len(funds) == 0 {
			break
		}

		for _, fund := range funds {
			state, err := ledger.DecodeState(fund.Snapshot)
			if err != nil {
				fmt.Printf("  %s - ERROR decoding snapshot: %v\n", fund.ID, err)
				continue
			}

			fundEscrow := big.NewInt(0)
			for _, req := range state.InvestmentRequests {
				if req.Empty() {
					continue
				}
				fundEscrow.Add(fundEscrow, req.UsdAmount)
				requestCount++
			}
			if fundEscrow.Sign() > 0 {
				fmt.Printf("  %s (%s): %s pending escrow\n", fund.ID, fund.Symbol, fundEscrow.String())
			}
			expected.Add(expected, fundEscrow)
			fundCount++
		}

		if len(funds) < pageSize {
			break
		}
	}

	custodian := stablecoin.Custodian()
	held, err := stablecoin.BalanceOf(ctx, custodian)
	if err != nil {
		return fmt.Errorf("custodian balance: %w", err)
	}

	diff := new(big.Int).Sub(held, expected)
	diffAbs := new(big.Int).Abs(diff)

	fmt.Printf("\n=== Custody Reconciliation ===\n")
	fmt.Printf("Funds checked:     %d\n", fundCount)
	fmt.Printf("Pending requests:  %d\n", requestCount)
	fmt.Printf("Expected escrow:   %s\n", expected.String())
	fmt.Printf("Custodian:         %s\n", custodian.Hex())
	fmt.Printf("Custodian balance: %s\n", held.String())
	fmt.Printf("Difference:        %s\n\n", diff.String())

	if diffAbs.Cmp(big.NewInt(tolerance)) <= 0 {
		fmt.Println("MATCH: custody balance covers recorded escrow")
		return nil
	}

	if diff.Sign() > 0 {
		fmt.Println("MISMATCH: custodian holds more than recorded escrow (orphaned deposit?)")
	} else {
		fmt.Println("MISMATCH: custodian holds less than recorded escrow (unrecorded refund?)")
	}
	os.Exit(1)
	return nil
}

func reconcileSingleFund(ctx context.Context, fundRepo *storage.FundRepository, fundID string) error {
	fund, err := fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return fmt.Errorf("load fund: %w", err)
	}

	state, err := ledger.DecodeState(fund.Snapshot)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	fmt.Printf("=== Pending Requests for %s (%s) ===\n\n", fund.ID, fund.Symbol)

	escrow := big.NewInt(0)
	for investor, req := range state.InvestmentRequests {
		if req.Empty() {
			continue
		}
		fmt.Printf("Investment request from %s\n", investor.Hex())
		fmt.Printf("  Amount:   %s\n", req.UsdAmount.String())
		fmt.Printf("  Nonce:    %d\n", req.Nonce)
		fmt.Printf("  Deadline: %s\n", time.Unix(req.Deadline, 0).UTC().Format(time.RFC3339))
		fmt.Printf("  Created:  %s\n\n", time.Unix(req.CreatedAt, 0).UTC().Format(time.RFC3339))
		escrow.Add(escrow, req.UsdAmount)
	}

	for investor, req := range state.RedemptionRequests {
		if req.Empty() {
			continue
		}
		fmt.Printf("Redemption request from %s\n", investor.Hex())
		fmt.Printf("  Investment: %d\n", req.InvestmentID)
		fmt.Printf("  Deadline:   %s\n\n", time.Unix(req.Deadline, 0).UTC().Format(time.RFC3339))
	}

	fmt.Printf("Expected escrow for this fund: %s\n", escrow.String())
	return nil
}
