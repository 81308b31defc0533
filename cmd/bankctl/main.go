package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/in/grpc"
	wal_adapter "github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/wal"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	grpc_pool "github.com/JoeShih716/go-bank-api/pkg/grpc"
	"github.com/JoeShih716/go-bank-api/pkg/wal"
)

const usage = `usage: bankctl <command> [flags]

commands:
  balance   -user <userName> -account <id>
  withdraw  -account <id> -pin <pin> -amount <n>
  deposit   -account <id> [-number <accountNumber>] -amount <n>
  transfer  -account <id> -from <number> -pin <pin> -to <number> -amount <n>
  bench     -account <id> -amount <n> [-total 10000] [-concurrency 100]
  journal   -file <wal path>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	if cmd == "journal" {
		if err := dumpJournal(args); err != nil {
			log.Fatalf("journal: %v", err)
		}
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	addr := fs.String("addr", "localhost:50051", "gRPC server address")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	user := fs.String("user", "", "owner userName")
	account := fs.String("account", "", "account id")
	number := fs.String("number", "", "account number (deposit target)")
	pin := fs.String("pin", "", "account pin")
	from := fs.String("from", "", "source account number")
	to := fs.String("to", "", "destination account number")
	amountText := fs.String("amount", "0", "amount")
	total := fs.Int("total", 10000, "bench: number of requests")
	concurrency := fs.Int("concurrency", 100, "bench: concurrent requests")
	_ = fs.Parse(args)

	amount, err := decimal.NewFromString(*amountText)
	if err != nil {
		log.Fatalf("invalid amount %q: %v", *amountText, err)
	}

	pool := grpc_pool.NewPool()
	defer pool.Close()
	conn, err := pool.GetConnection(*addr)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	client := grpc_adapter.NewBankClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var reply any
	switch cmd {
	case "balance":
		reply, err = client.GetBalance(ctx, &grpc_adapter.GetBalanceRequest{UserName: *user, AccountID: *account})
	case "withdraw":
		reply, err = client.Withdraw(ctx, &grpc_adapter.WithdrawRequest{AccountID: *account, Pin: *pin, Amount: amount})
	case "deposit":
		reply, err = client.Deposit(ctx, &grpc_adapter.DepositRequest{AccountID: *account, AccountNumber: *number, Amount: amount})
	case "transfer":
		reply, err = client.Transfer(ctx, &grpc_adapter.TransferRequest{
			AccountID:                *account,
			SourceAccountNumber:      *from,
			SourcePin:                *pin,
			DestinationAccountNumber: *to,
			Amount:                   amount,
		})
	case "bench":
		bench(client, *account, amount, *total, *concurrency)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		st := status.Convert(err)
		log.Fatalf("%s failed: %s: %s", cmd, st.Code(), st.Message())
	}
	printJSON(reply)
}

// bench 以固定並發數對同一帳戶連續存款，量測 TPS 與版本衝突造成的失敗
func bench(client *grpc_adapter.BankClient, account string, amount decimal.Decimal, total, concurrency int) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var failed atomic.Int64
	sem := make(chan struct{}, concurrency)
	startTime := time.Now()

	for i := 0; i < total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := client.Deposit(ctx, &grpc_adapter.DepositRequest{AccountID: account, Amount: amount})
			if err != nil {
				if failed.Add(1) == 1 || idx%1000 == 0 {
					log.Printf("Deposit %d failed: %v", idx, err)
				}
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v (%d failed)\n", total, elapsed, failed.Load())
	fmt.Printf("TPS: %.2f\n", float64(total)/elapsed.Seconds())
}

// dumpJournal 依序印出 WAL 中的帳務紀錄
func dumpJournal(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	path := fs.String("file", "data/journal.log", "journal WAL file")
	_ = fs.Parse(args)

	if _, err := os.Stat(*path); err != nil {
		return err
	}
	w, err := wal.NewWAL(*path, wal.WithSyncEveryWrite(false))
	if err != nil {
		return err
	}
	defer w.Close()

	count := 0
	err = wal_adapter.NewJournal(w).Replay(func(entry domain.JournalEntry) error {
		count++
		printJSON(entry)
		return nil
	})
	fmt.Fprintf(os.Stderr, "%d entries\n", count)
	return err
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
