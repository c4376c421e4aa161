package service

import (
	"context"
	"sync"
	"testing"

	"monetcore/internal/apperr"
)

func TestWalletCreditDebit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wallet := env.svcs.Wallet

	balance, err := wallet.Credit(ctx, nil, 1, 100, 101)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != 100 {
		t.Fatalf("balance after credit = %d, want 100", balance)
	}

	balance, err = wallet.Debit(ctx, nil, 1, 30, 102)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != 70 {
		t.Fatalf("balance after debit = %d, want 70", balance)
	}

	_, err = wallet.Debit(ctx, nil, 1, 71, 103)
	if !apperr.IsKind(err, apperr.KindInsufficientBalance) {
		t.Fatalf("overdraw err = %v, want InsufficientBalance", err)
	}
	if got := env.balance(t, 1); got != 70 {
		t.Fatalf("failed debit changed balance to %d", got)
	}

	entries, total, err := wallet.Entries(ctx, 1, 1, 20)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("entries = %d (total %d), want 2", len(entries), total)
	}
	env.assertReconciled(t, 1)
}

func TestWalletRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		if _, err := env.svcs.Wallet.Credit(ctx, nil, 1, amount, 0); !apperr.IsKind(err, apperr.KindInvalidAmount) {
			t.Errorf("Credit(%d) err = %v, want InvalidAmount", amount, err)
		}
		if _, err := env.svcs.Wallet.Debit(ctx, nil, 1, amount, 0); !apperr.IsKind(err, apperr.KindInvalidAmount) {
			t.Errorf("Debit(%d) err = %v, want InvalidAmount", amount, err)
		}
	}
}

func TestWalletConcurrentDebitNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wallet := env.svcs.Wallet

	if _, err := wallet.Credit(ctx, nil, 7, 100, 1); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(transactionID int64) {
			defer wg.Done()
			_, err := wallet.Debit(ctx, nil, 7, 10, transactionID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !apperr.IsKind(err, apperr.KindInsufficientBalance) {
				t.Errorf("unexpected debit error: %v", err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("successful debits = %d, want 10", succeeded)
	}
	if got := env.balance(t, 7); got != 0 {
		t.Fatalf("final balance = %d, want 0", got)
	}
	env.assertReconciled(t, 7)
}
