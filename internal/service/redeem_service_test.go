package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/model"
)

func (e *testEnv) generateCodes(t *testing.T, req BatchRequest) []string {
	t.Helper()
	if req.Name == "" {
		req.Name = "test batch"
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	_, codes, err := e.svcs.Redeem.GenerateBatch(context.Background(), &req)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	return codes
}

func TestGenerateBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	batch, codes, err := env.svcs.Redeem.GenerateBatch(ctx, &BatchRequest{
		Name: "launch", RewardType: model.RewardTypeGold, RewardValue: 50, UsageLimit: 1, Quantity: 25, Prefix: "tet",
	})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(codes) != 25 {
		t.Fatalf("codes = %d, want 25", len(codes))
	}
	for _, c := range codes {
		if !strings.HasPrefix(c, "TET") || len(c) != 3+codeLength {
			t.Fatalf("unexpected code %q", c)
		}
	}

	stored, err := env.svcs.Redeem.ListBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ListBatch: %v", err)
	}
	if len(stored) != 25 {
		t.Fatalf("stored = %d, want 25", len(stored))
	}

	_, _, err = env.svcs.Redeem.GenerateBatch(ctx, &BatchRequest{
		Name: "bad", RewardType: "DIAMOND", RewardValue: 1, UsageLimit: 1, Quantity: 1,
	})
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("bad reward type err = %v", err)
	}
}

func TestRedeemGold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 50, UsageLimit: 5})[0]

	// 兑换码不区分大小写
	grant, err := env.svcs.Redeem.Redeem(ctx, " "+strings.ToLower(code)+" ", 1)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if grant.GoldBalance == nil || *grant.GoldBalance != 50 || grant.TransactionNo == "" {
		t.Fatalf("grant = %+v", grant)
	}

	_, err = env.svcs.Redeem.Redeem(ctx, code, 1)
	if !apperr.IsKind(err, apperr.KindAlreadyRedeemed) {
		t.Fatalf("second redeem err = %v, want AlreadyRedeemed", err)
	}
	if got := env.balance(t, 1); got != 50 {
		t.Fatalf("balance = %d, want 50", got)
	}
	env.assertReconciled(t, 1)

	ec, err := env.svcs.Redeem.GetCode(ctx, code)
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if ec.UsedCount != 1 {
		t.Fatalf("used_count = %d, want 1", ec.UsedCount)
	}
}

func TestRedeemVipDaysDefaultsToGoldTier(t *testing.T) {
	env := newTestEnv(t)
	code := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeVipDays, RewardValue: 7, UsageLimit: 1})[0]

	grant, err := env.svcs.Redeem.Redeem(context.Background(), code, 4)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if grant.VipTier != model.TierGold || grant.VipExpiresAt == nil {
		t.Fatalf("grant = %+v", grant)
	}
	status, err := env.svcs.Vip.Status(context.Background(), 4)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Active || status.Tier != model.TierGold {
		t.Fatalf("status = %+v", status)
	}
}

func TestRedeemConcurrentUsageLimit(t *testing.T) {
	env := newTestEnv(t)
	const limit, users = 3, 12
	code := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 10, UsageLimit: limit})[0]

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := env.svcs.Redeem.Redeem(context.Background(), code, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.IsKind(err, apperr.KindCodeExhausted):
				exhausted++
			default:
				t.Errorf("user %d: unexpected error %v", userID, err)
			}
		}(int64(u))
	}
	wg.Wait()

	if succeeded != limit {
		t.Fatalf("succeeded = %d, want %d", succeeded, limit)
	}
	if exhausted != users-limit {
		t.Fatalf("exhausted = %d, want %d", exhausted, users-limit)
	}

	ec, err := env.svcs.Redeem.GetCode(context.Background(), code)
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if ec.UsedCount != limit {
		t.Fatalf("used_count = %d, want %d", ec.UsedCount, limit)
	}
}

func TestRedeemConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	const attempts = 8
	code := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 10, UsageLimit: 5})[0]

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		redeemed  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svcs.Redeem.Redeem(context.Background(), code, 7)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.IsKind(err, apperr.KindAlreadyRedeemed):
				redeemed++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || redeemed != attempts-1 {
		t.Fatalf("succeeded = %d, already redeemed = %d", succeeded, redeemed)
	}
	if got := env.balance(t, 7); got != 10 {
		t.Fatalf("balance = %d, want 10", got)
	}
	ec, err := env.svcs.Redeem.GetCode(context.Background(), code)
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if ec.UsedCount != 1 {
		t.Fatalf("used_count = %d, want 1", ec.UsedCount)
	}
	env.assertReconciled(t, 7)
}

func TestRedeemRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	expired := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 10, UsageLimit: 1, ExpiresAt: &past})[0]

	inactive := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 10, UsageLimit: 1})[0]
	if err := env.svcs.Redeem.Deactivate(ctx, inactive); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	// 重复停用不报错
	if err := env.svcs.Redeem.Deactivate(ctx, inactive); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}

	single := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 10, UsageLimit: 1})[0]
	if _, err := env.svcs.Redeem.Redeem(ctx, single, 1); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	tests := []struct {
		name string
		code string
		want apperr.Kind
	}{
		{"not found", "NOPE123456", apperr.KindCodeNotFound},
		{"inactive", inactive, apperr.KindCodeInactive},
		{"expired", expired, apperr.KindCodeExpired},
		{"exhausted", single, apperr.KindCodeExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svcs.Redeem.Redeem(ctx, tt.code, 2)
			if !apperr.IsKind(err, tt.want) {
				t.Fatalf("err = %v, want %s", err, tt.want)
			}
		})
	}

	if got := env.balance(t, 2); got != 0 {
		t.Fatalf("rejected redemptions credited %d gold", got)
	}
	if err := env.svcs.Redeem.Deactivate(ctx, "NOPE123456"); !apperr.IsKind(err, apperr.KindCodeNotFound) {
		t.Fatalf("deactivate missing code err = %v", err)
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

func TestRedeemRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.svcs.Redeem.limiter = denyLimiter{}

	_, err := env.svcs.Redeem.Redeem(context.Background(), "ANYCODE123", 1)
	if !apperr.IsKind(err, apperr.KindRateLimited) {
		t.Fatalf("err = %v, want RateLimited", err)
	}
}
