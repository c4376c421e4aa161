package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/config"
	"monetcore/internal/infrastructure/database"
	"monetcore/internal/model"
	"monetcore/internal/provider"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	testVNPaySecret = "VNPAYSECRETKEY0123456789"
	testMoMoAccess  = "F8BBA842ECF85"
	testMoMoSecret  = "K951B6PE1waDMi640xX08PD3vg6EkVlz"
)

type testEnv struct {
	db   *gorm.DB
	cfg  *config.Config
	svcs *Services
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{TransactionCompleted: "monetization.transaction.completed"},
		},
		Providers: config.ProvidersConfig{
			VNPay: config.VNPayConfig{TmnCode: "DEMO0001", HashSecret: testVNPaySecret},
			MoMo:  config.MoMoConfig{PartnerCode: "MOMO", AccessKey: testMoMoAccess, SecretKey: testMoMoSecret},
		},
		Business: config.BusinessConfig{
			PendingTimeoutMinutes: 30,
			CompensateAfterSecond: 60,
			MaxRetryCount:         3,
			MinPayout:             100000,
			StoreTimeout:          5 * time.Second,
			GoldPackages: []config.GoldPackage{
				{ID: "gold_100", Gold: 100, AmountMoney: 20000},
				{ID: "gold_550", Gold: 550, AmountMoney: 100000},
			},
			VipPlans: []config.VipPlan{
				{ID: "freeads_30", Tier: model.TierFreeAds, Days: 30, AmountMoney: 49000, GoldPrice: 250},
				{ID: "gold_30", Tier: model.TierGold, Days: 30, AmountMoney: 99000, GoldPrice: 500},
			},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := testConfig()
	return &testEnv{
		db:   db,
		cfg:  cfg,
		svcs: New(db, nil, cfg, zerolog.Nop()),
	}
}

// vnpayCallback 构造已签名的 VNPay 回调参数，amount 为 VND
func vnpayCallback(t *testing.T, txnRef string, amount int64, responseCode string) map[string]string {
	t.Helper()
	params := map[string]string{
		"vnp_Amount":        strconv.FormatInt(amount*100, 10),
		"vnp_BankCode":      "NCB",
		"vnp_ResponseCode":  responseCode,
		"vnp_TmnCode":       "DEMO0001",
		"vnp_TransactionNo": "14012345",
		"vnp_TxnRef":        txnRef,
	}
	hash, err := provider.NewVNPay(testVNPaySecret).Sign(params)
	if err != nil {
		t.Fatalf("sign vnpay: %v", err)
	}
	params["vnp_SecureHash"] = hash
	return params
}

func momoCallback(t *testing.T, orderID string, amount int64, resultCode string, meta *provider.IntentMeta) map[string]string {
	t.Helper()
	params := map[string]string{
		"partnerCode": "MOMO",
		"orderId":     orderID,
		"requestId":   orderID,
		"amount":      strconv.FormatInt(amount, 10),
		"transId":     "2547000000",
		"resultCode":  resultCode,
		"message":     "Successful.",
		"extraData":   "",
	}
	if meta != nil {
		params["extraData"] = provider.EncodeExtraData(*meta)
	}
	sig, err := provider.NewMoMo(testMoMoAccess, testMoMoSecret).Sign(params)
	if err != nil {
		t.Fatalf("sign momo: %v", err)
	}
	params["signature"] = sig
	return params
}

func (e *testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := e.svcs.Wallet.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return b
}

// grantGold 通过 ADMIN_ADJUST 给用户加金币
func (e *testEnv) grantGold(t *testing.T, userID, gold int64) {
	t.Helper()
	_, err := e.svcs.Ledger.RecordInternal(context.Background(), &InternalRequest{
		UserID:         userID,
		Kind:           model.KindAdminAdjust,
		GoldAmount:     gold,
		IdempotencyKey: "seed:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(time.Now().UnixNano(), 10),
	})
	if err != nil {
		t.Fatalf("grant gold: %v", err)
	}
}

func (e *testEnv) assertReconciled(t *testing.T, userID int64) {
	t.Helper()
	balance, sum, err := e.svcs.Wallet.Reconcile(context.Background(), userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if balance != sum {
		t.Fatalf("balance %d != sum of entries %d", balance, sum)
	}
}

func TestStoreTimeoutSurfacesAsInfrastructureError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.generateCodes(t, BatchRequest{RewardType: model.RewardTypeGold, RewardValue: 10, UsageLimit: 1})[0]
	env.setupReferral(t, 1, "0.1")
	event, _ := json.Marshal(model.TransactionEvent{
		Event: model.EventTransactionCompleted, TransactionID: 1, Kind: model.KindBuyGold,
	})

	// 超时时间短到任何存储访问都会超时
	env.cfg.Business.StoreTimeout = time.Nanosecond
	env.svcs.Wallet.timeout = time.Nanosecond
	env.svcs.Vip.timeout = time.Nanosecond
	env.svcs.Redeem.timeout = time.Nanosecond

	tests := []struct {
		name string
		call func() error
	}{
		{"redeem", func() error { _, err := env.svcs.Redeem.Redeem(ctx, code, 2); return err }},
		{"wallet balance", func() error { _, err := env.svcs.Wallet.Balance(ctx, 1); return err }},
		{"wallet credit", func() error { _, err := env.svcs.Wallet.Credit(ctx, nil, 1, 10, 900); return err }},
		{"vip status", func() error { _, err := env.svcs.Vip.Status(ctx, 1); return err }},
		{"vip extend", func() error { _, err := env.svcs.Vip.Extend(ctx, nil, 1, model.TierGold, 1); return err }},
		{"transaction lookup", func() error { _, err := env.svcs.Ledger.GetTransaction(ctx, "TXN-1"); return err }},
		{"commission event", func() error { return env.svcs.Affiliate.HandleEvent(ctx, event) }},
		{"payout request", func() error {
			_, err := env.svcs.Affiliate.RequestPayout(ctx, 100, &PayoutRequest{Amount: 100000, BankName: "VCB", BankAccount: "001"})
			return err
		}},
		{"payout approve", func() error { _, err := env.svcs.Affiliate.ApprovePayout(ctx, 1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !apperr.IsKind(err, apperr.KindInfrastructure) {
				t.Fatalf("err = %v, want InfrastructureError", err)
			}
		})
	}
}
