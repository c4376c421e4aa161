package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/model"
	"monetcore/internal/provider"
	"monetcore/internal/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func (e *testEnv) createGoldIntent(t *testing.T, userID int64) *model.Transaction {
	t.Helper()
	trans, err := e.svcs.Ledger.CreateIntent(context.Background(), &IntentRequest{
		UserID:    userID,
		Kind:      model.KindBuyGold,
		Provider:  model.ProviderVNPay,
		PackageID: "gold_100",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	return trans
}

func TestCreateIntentUsesCatalogAmounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	trans := env.createGoldIntent(t, 1)
	if trans.Status != model.TxStatusPending || trans.AmountMoney != 20000 || trans.GoldAmount != 100 {
		t.Fatalf("intent = %+v", trans)
	}
	if trans.ProviderTxID == nil || *trans.ProviderTxID != trans.TransactionNo {
		t.Fatalf("provider tx id = %v, want transaction no", trans.ProviderTxID)
	}

	vip, err := env.svcs.Ledger.CreateIntent(ctx, &IntentRequest{
		UserID: 1, Kind: model.KindPurchaseVip, Provider: model.ProviderMoMo, PackageID: "gold_30",
	})
	if err != nil {
		t.Fatalf("CreateIntent vip: %v", err)
	}
	if vip.AmountMoney != 99000 || vip.VipDaysValue() != 30 || vip.VipTierValue() != model.TierGold {
		t.Fatalf("vip intent = %+v", vip)
	}

	_, err = env.svcs.Ledger.CreateIntent(ctx, &IntentRequest{
		UserID: 1, Kind: model.KindBuyGold, Provider: model.ProviderVNPay, PackageID: "missing",
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("unknown package err = %v, want NotFound", err)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	intent := env.createGoldIntent(t, 1)
	params := vnpayCallback(t, intent.TransactionNo, 20000, "00")

	first, err := ledger.Ingest(ctx, model.ProviderVNPay, params)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if first.Status != model.TxStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", first.Status)
	}

	for i := 0; i < 3; i++ {
		again, err := ledger.Ingest(ctx, model.ProviderVNPay, params)
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if again.ID != first.ID || again.Status != model.TxStatusCompleted {
			t.Fatalf("replay returned %+v", again)
		}
	}

	if got := env.balance(t, 1); got != 100 {
		t.Fatalf("balance = %d, want 100 credited once", got)
	}
	env.assertReconciled(t, 1)

	pending, err := repository.NewOutboxRepository(env.db).ListByStatus(ctx, model.OutboxStatusPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != model.EventTransactionCompleted {
		t.Fatalf("outbox = %d messages, want one completed event", len(pending))
	}
}

func TestIngestRejectsTamperedCallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	intent := env.createGoldIntent(t, 1)
	params := vnpayCallback(t, intent.TransactionNo, 20000, "00")
	params["vnp_Amount"] = "99900000"

	_, err := env.svcs.Ledger.Ingest(ctx, model.ProviderVNPay, params)
	if !apperr.IsKind(err, apperr.KindInvalidSignature) {
		t.Fatalf("err = %v, want InvalidSignature", err)
	}

	trans, err := env.svcs.Ledger.GetTransactionByID(ctx, intent.ID)
	if err != nil {
		t.Fatalf("GetTransactionByID: %v", err)
	}
	if trans.Status != model.TxStatusPending || trans.NotifiedAt != nil {
		t.Fatalf("tampered callback changed transaction: %+v", trans)
	}
	if got := env.balance(t, 1); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}

	// 未知订单号的伪造回调也不落库
	forged := vnpayCallback(t, "TXN-FORGED", 20000, "00")
	forged["vnp_ResponseCode"] = "24"
	if _, err := env.svcs.Ledger.Ingest(ctx, model.ProviderVNPay, forged); !apperr.IsKind(err, apperr.KindInvalidSignature) {
		t.Fatalf("forged err = %v", err)
	}
	row, err := repository.NewTransactionRepository(env.db).GetByProviderTx(ctx, nil, model.ProviderVNPay, "TXN-FORGED")
	if err != nil {
		t.Fatalf("GetByProviderTx: %v", err)
	}
	if row != nil {
		t.Fatalf("forged callback created a row: %+v", row)
	}
}

func TestIngestOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		code       string
		wantStatus string
		wantReason string
		wantGold   int64
	}{
		{"success", 20000, "00", model.TxStatusCompleted, "", 100},
		{"cancelled", 20000, "24", model.TxStatusFailed, model.FailReasonUserCancelled, 0},
		{"provider error", 20000, "51", model.TxStatusFailed, model.FailReasonProviderError, 0},
		{"amount mismatch", 10000, "00", model.TxStatusFailed, model.FailReasonAmountMismatch, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			intent := env.createGoldIntent(t, 1)

			trans, err := env.svcs.Ledger.Ingest(context.Background(), model.ProviderVNPay,
				vnpayCallback(t, intent.TransactionNo, tt.amount, tt.code))
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if trans.Status != tt.wantStatus || trans.FailReason != tt.wantReason {
				t.Fatalf("got %s/%s, want %s/%s", trans.Status, trans.FailReason, tt.wantStatus, tt.wantReason)
			}
			if trans.ResultCode != tt.code {
				t.Fatalf("result code = %q, want %q", trans.ResultCode, tt.code)
			}
			if got := env.balance(t, 1); got != tt.wantGold {
				t.Fatalf("balance = %d, want %d", got, tt.wantGold)
			}
		})
	}
}

func TestIngestUnknownIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	params := vnpayCallback(t, "TXN-UNKNOWN", 20000, "00")
	trans, err := env.svcs.Ledger.Ingest(ctx, model.ProviderVNPay, params)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if trans.Status != model.TxStatusFailed || trans.FailReason != model.FailReasonUnknownIntent {
		t.Fatalf("got %s/%s, want FAILED/UNKNOWN_INTENT", trans.Status, trans.FailReason)
	}

	again, err := env.svcs.Ledger.Ingest(ctx, model.ProviderVNPay, params)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != trans.ID {
		t.Fatalf("replay created a second row")
	}
}

func TestIngestMoMoWithExtraData(t *testing.T) {
	env := newTestEnv(t)
	meta := &provider.IntentMeta{UserID: 5, Kind: model.KindBuyGold, Gold: 550}

	trans, err := env.svcs.Ledger.Ingest(context.Background(), model.ProviderMoMo,
		momoCallback(t, "MOMO-ORDER-1", 100000, "0", meta))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if trans.Status != model.TxStatusCompleted || trans.UserID != 5 {
		t.Fatalf("trans = %+v", trans)
	}
	if got := env.balance(t, 5); got != 550 {
		t.Fatalf("balance = %d, want 550", got)
	}
}

func TestRecordInternalInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.grantGold(t, 2, 30)

	req := &InternalRequest{
		UserID:         2,
		Kind:           model.KindUnlockEpisode,
		GoldAmount:     50,
		IdempotencyKey: "unlock:2:ep-9",
	}
	trans, err := env.svcs.Ledger.RecordInternal(ctx, req)
	if !apperr.IsKind(err, apperr.KindInsufficientBalance) {
		t.Fatalf("err = %v, want InsufficientBalance", err)
	}
	if trans == nil || trans.Status != model.TxStatusFailed || trans.FailReason != model.FailReasonInsufficientBalance {
		t.Fatalf("trans = %+v", trans)
	}
	if got := env.balance(t, 2); got != 30 {
		t.Fatalf("balance = %d, want 30 untouched", got)
	}

	entries, err := repository.NewWalletRepository(env.db).EntriesByTransaction(ctx, nil, trans.ID)
	if err != nil {
		t.Fatalf("EntriesByTransaction: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed transaction left %d wallet entries", len(entries))
	}

	// 同一幂等键重放返回同一笔失败交易
	again, err := env.svcs.Ledger.RecordInternal(ctx, req)
	if !apperr.IsKind(err, apperr.KindInsufficientBalance) || again.ID != trans.ID {
		t.Fatalf("replay = %+v, %v", again, err)
	}
}

func TestRecordInternalIdempotency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := &InternalRequest{
		UserID:         3,
		Kind:           model.KindCheckinReward,
		GoldAmount:     10,
		IdempotencyKey: "checkin:3:2026-10-18",
	}
	first, err := env.svcs.Ledger.RecordInternal(ctx, req)
	if err != nil {
		t.Fatalf("RecordInternal: %v", err)
	}
	second, err := env.svcs.Ledger.RecordInternal(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a new transaction")
	}
	if got := env.balance(t, 3); got != 10 {
		t.Fatalf("balance = %d, want 10", got)
	}

	// 幂等键被其他用户复用
	_, err = env.svcs.Ledger.RecordInternal(ctx, &InternalRequest{
		UserID: 4, Kind: model.KindCheckinReward, GoldAmount: 10, IdempotencyKey: req.IdempotencyKey,
	})
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("reused key err = %v, want InvalidArgument", err)
	}
}

func TestAdminAdjustDebitsOnNegativeAmount(t *testing.T) {
	env := newTestEnv(t)
	env.grantGold(t, 8, 100)

	_, err := env.svcs.Ledger.RecordInternal(context.Background(), &InternalRequest{
		UserID: 8, Kind: model.KindAdminAdjust, GoldAmount: -40, IdempotencyKey: "adjust:8:1",
	})
	if err != nil {
		t.Fatalf("RecordInternal: %v", err)
	}
	if got := env.balance(t, 8); got != 60 {
		t.Fatalf("balance = %d, want 60", got)
	}
	env.assertReconciled(t, 8)
}

func TestRefundReversesGold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	intent := env.createGoldIntent(t, 1)
	if _, err := ledger.Ingest(ctx, model.ProviderVNPay, vnpayCallback(t, intent.TransactionNo, 20000, "00")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	refunded, err := ledger.Refund(ctx, intent.ID, "chargeback")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != model.TxStatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", refunded.Status)
	}
	if got := env.balance(t, 1); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}

	again, err := ledger.Refund(ctx, intent.ID, "chargeback")
	if err != nil {
		t.Fatalf("second Refund: %v", err)
	}
	if again.Status != model.TxStatusRefunded {
		t.Fatalf("second refund status = %s", again.Status)
	}
	if got := env.balance(t, 1); got != 0 {
		t.Fatalf("balance after second refund = %d, want 0", got)
	}

	refundTx, err := repository.NewTransactionRepository(env.db).GetByProviderTx(ctx, nil, model.ProviderInternal, "refund:"+intent.TransactionNo)
	if err != nil || refundTx == nil {
		t.Fatalf("refund transaction missing: %v", err)
	}
	if refundTx.Kind != model.KindRefund || refundTx.Status != model.TxStatusCompleted {
		t.Fatalf("refund transaction = %+v", refundTx)
	}
	env.assertReconciled(t, 1)
}

func TestRefundFailsWhenGoldAlreadySpent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	intent := env.createGoldIntent(t, 1)
	if _, err := ledger.Ingest(ctx, model.ProviderVNPay, vnpayCallback(t, intent.TransactionNo, 20000, "00")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := ledger.RecordInternal(ctx, &InternalRequest{
		UserID: 1, Kind: model.KindSpendGold, GoldAmount: 80, IdempotencyKey: "spend:1",
	}); err != nil {
		t.Fatalf("spend: %v", err)
	}

	_, err := ledger.Refund(ctx, intent.ID, "chargeback")
	if !apperr.IsKind(err, apperr.KindInsufficientBalance) {
		t.Fatalf("err = %v, want InsufficientBalance", err)
	}
	trans, _ := ledger.GetTransactionByID(ctx, intent.ID)
	if trans.Status != model.TxStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED after failed refund", trans.Status)
	}
	if got := env.balance(t, 1); got != 20 {
		t.Fatalf("balance = %d, want 20", got)
	}
}

func TestRefundVipPurchasedWithGold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger
	env.grantGold(t, 6, 1000)

	trans, err := ledger.RecordInternal(ctx, &InternalRequest{
		UserID: 6, Kind: model.KindPurchaseVip, PlanID: "gold_30", IdempotencyKey: "vip:6:1",
	})
	if err != nil {
		t.Fatalf("RecordInternal: %v", err)
	}
	if got := env.balance(t, 6); got != 500 {
		t.Fatalf("balance = %d, want 500", got)
	}
	if active, _ := env.svcs.Vip.IsActive(ctx, 6); !active {
		t.Fatal("VIP should be active after purchase")
	}

	if _, err := ledger.Refund(ctx, trans.ID, "user request"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := env.balance(t, 6); got != 1000 {
		t.Fatalf("balance = %d, want 1000 restored", got)
	}
	if active, _ := env.svcs.Vip.IsActive(ctx, 6); active {
		t.Fatal("VIP should be inactive after refund")
	}
	env.assertReconciled(t, 6)
}

func TestRefundRequiresCompleted(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createGoldIntent(t, 1)

	_, err := env.svcs.Ledger.Refund(context.Background(), intent.ID, "")
	if !apperr.IsKind(err, apperr.KindInvalidStateTransition) {
		t.Fatalf("err = %v, want InvalidStateTransition", err)
	}
}

func TestExpireStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	intent := env.createGoldIntent(t, 1)

	// 截止时间取未来，刚创建的意图也算超时
	n, err := ledger.ExpireStale(ctx, -time.Minute, 10)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	trans, _ := ledger.GetTransactionByID(ctx, intent.ID)
	if trans.Status != model.TxStatusFailed || trans.FailReason != model.FailReasonExpired {
		t.Fatalf("got %s/%s", trans.Status, trans.FailReason)
	}

	// 过期后才到的成功回调不再入账，但要保存回调供人工退款
	paidAfterExpiry := ledger.m.IngestTotal.WithLabelValues(model.ProviderVNPay, "paid_after_expiry")
	before := testutil.ToFloat64(paidAfterExpiry)
	for i := 0; i < 2; i++ {
		late, err := ledger.Ingest(ctx, model.ProviderVNPay, vnpayCallback(t, intent.TransactionNo, 20000, "00"))
		if err != nil {
			t.Fatalf("late Ingest #%d: %v", i, err)
		}
		if late.Status != model.TxStatusFailed || late.FailReason != model.FailReasonExpired {
			t.Fatalf("late callback moved transaction to %s/%s", late.Status, late.FailReason)
		}
		if late.ResultCode != "00" || late.ExternalRef != "14012345" || late.NotifiedAt == nil || late.NotifyPayload == "" {
			t.Fatalf("late callback not recorded: %+v", late)
		}
	}
	if got := testutil.ToFloat64(paidAfterExpiry) - before; got != 1 {
		t.Fatalf("paid_after_expiry incremented by %v, want 1", got)
	}
	if got := env.balance(t, 1); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}

	// 过期后的取消回调只是重放
	cancelled := env.createGoldIntent(t, 2)
	if _, err := ledger.ExpireStale(ctx, -time.Minute, 10); err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if _, err := ledger.Ingest(ctx, model.ProviderVNPay, vnpayCallback(t, cancelled.TransactionNo, 20000, "24")); err != nil {
		t.Fatalf("Ingest cancelled: %v", err)
	}
	trans, _ = ledger.GetTransactionByID(ctx, cancelled.ID)
	if trans.NotifiedAt != nil {
		t.Fatal("cancel after expiry should not be recorded")
	}
}

func TestResettleUnsettled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	intent := env.createGoldIntent(t, 1)
	params := vnpayCallback(t, intent.TransactionNo, 20000, "00")
	n, err := provider.NewVNPay(testVNPaySecret).Parse(params)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// 模拟回调已记录但结算前进程退出
	if err := ledger.txRepo.RecordNotification(ctx, nil, intent.ID, n.ResultCode, n.ExternalRef, n.Payload, time.Now()); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	expired, err := ledger.ExpireStale(ctx, -time.Minute, 10)
	if err != nil || expired != 0 {
		t.Fatalf("notified transaction must not expire: %d, %v", expired, err)
	}

	settled, err := ledger.ResettleUnsettled(ctx, -time.Minute, 10)
	if err != nil {
		t.Fatalf("ResettleUnsettled: %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}
	if got := env.balance(t, 1); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}

	settled, err = ledger.ResettleUnsettled(ctx, -time.Minute, 10)
	if err != nil || settled != 0 {
		t.Fatalf("second pass settled %d, %v", settled, err)
	}
}

func TestIngestConcurrentDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	intent := env.createGoldIntent(t, 1)
	params := vnpayCallback(t, intent.TransactionNo, 20000, "00")

	const deliveries = 8
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trans, err := env.svcs.Ledger.Ingest(ctx, model.ProviderVNPay, params)
			if err != nil {
				t.Errorf("Ingest: %v", err)
				return
			}
			if trans.Status != model.TxStatusCompleted {
				t.Errorf("status = %s, want COMPLETED", trans.Status)
			}
		}()
	}
	wg.Wait()

	if got := env.balance(t, 1); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
	var entries, events int64
	env.db.Model(&model.WalletEntry{}).Where("transaction_id = ?", intent.ID).Count(&entries)
	env.db.Model(&model.OutboxMessage{}).Where("message_key = ?", intent.TransactionNo).Count(&events)
	if entries != 1 || events != 1 {
		t.Fatalf("wallet entries = %d, outbox events = %d, want 1 each", entries, events)
	}
	env.assertReconciled(t, 1)
}

func TestIngestMoMoMetaWithoutGrant(t *testing.T) {
	tests := []struct {
		name    string
		orderID string
		meta    *provider.IntentMeta
	}{
		{name: "gold purchase without gold", orderID: "MOMO-NOGOLD", meta: &provider.IntentMeta{UserID: 9, Kind: model.KindBuyGold}},
		{name: "vip purchase without days", orderID: "MOMO-NOVIP", meta: &provider.IntentMeta{UserID: 9, Kind: model.KindPurchaseVip}},
		{name: "episode unlock paid in cash", orderID: "MOMO-UNLOCK", meta: &provider.IntentMeta{UserID: 9, Kind: model.KindUnlockEpisode, Gold: 10}},
	}
	env := newTestEnv(t)
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := momoCallback(t, tt.orderID, 20000, "0", tt.meta)
			for i := 0; i < 2; i++ {
				trans, err := env.svcs.Ledger.Ingest(ctx, model.ProviderMoMo, params)
				if err != nil {
					t.Fatalf("Ingest #%d: %v", i, err)
				}
				if trans.Status != model.TxStatusFailed || trans.FailReason != model.FailReasonUnknownIntent {
					t.Fatalf("got %s/%s, want FAILED/UNKNOWN_INTENT", trans.Status, trans.FailReason)
				}
			}
		})
	}
	if got := env.balance(t, 9); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestSettleClosesUnsettleableTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	// 金币数为 0 的充值单无法入账
	ref := "LEGACY-1"
	trans := &model.Transaction{
		TransactionNo: "LEGACY-1",
		UserID:        3,
		Kind:          model.KindBuyGold,
		AmountMoney:   20000,
		Provider:      model.ProviderVNPay,
		ProviderTxID:  &ref,
		Status:        model.TxStatusPending,
	}
	if err := ledger.txRepo.Create(ctx, nil, trans); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := ledger.Ingest(ctx, model.ProviderVNPay, vnpayCallback(t, ref, 20000, "00"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Status != model.TxStatusFailed || result.FailReason != model.FailReasonInvalidIntent {
		t.Fatalf("got %s/%s, want FAILED/INVALID_INTENT", result.Status, result.FailReason)
	}

	// 已关闭，补偿任务不会再处理
	settled, err := ledger.ResettleUnsettled(ctx, -time.Minute, 10)
	if err != nil || settled != 0 {
		t.Fatalf("ResettleUnsettled = %d, %v", settled, err)
	}
	if got := env.balance(t, 3); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestRefundRejectsRecordKinds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svcs.Ledger

	intent := env.createGoldIntent(t, 1)
	if _, err := ledger.Ingest(ctx, model.ProviderVNPay, vnpayCallback(t, intent.TransactionNo, 20000, "00")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := ledger.Refund(ctx, intent.ID, "chargeback"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	refundTx, err := ledger.txRepo.GetByProviderTx(ctx, nil, model.ProviderInternal, "refund:"+intent.TransactionNo)
	if err != nil || refundTx == nil {
		t.Fatalf("refund transaction missing: %v", err)
	}
	payoutTx := env.completedTransaction(t, 100, model.KindCtvCommission, 120000)

	for _, trans := range []*model.Transaction{refundTx, payoutTx} {
		if _, err := ledger.Refund(ctx, trans.ID, "again"); !apperr.IsKind(err, apperr.KindInvalidStateTransition) {
			t.Fatalf("refund %s err = %v, want InvalidStateTransition", trans.Kind, err)
		}
		current, _ := ledger.GetTransactionByID(ctx, trans.ID)
		if current.Status != model.TxStatusCompleted {
			t.Fatalf("%s status = %s, want COMPLETED", trans.Kind, current.Status)
		}
	}

	if got := env.balance(t, 1); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
	original, _ := ledger.GetTransactionByID(ctx, intent.ID)
	if original.Status != model.TxStatusRefunded {
		t.Fatalf("original status = %s, want REFUNDED", original.Status)
	}
	env.assertReconciled(t, 1)
}
