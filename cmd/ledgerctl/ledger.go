package main

import (
	"fmt"
	"strconv"

	"monetcore/internal/model"
	"monetcore/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func refundCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "refund [transaction-id]",
		Short: "退款已完成交易并冲正其金币和 VIP 效果",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("交易ID格式错误: %w", err)
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			trans, err := a.svcs.Ledger.Refund(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			return printJSON(trans)
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "退款原因")
	return cmd
}

func grantCmd() *cobra.Command {
	var req service.InternalRequest
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "记录站内交易（奖励、调账、金币消费）",
		Example: `  ledgerctl grant --user 42 --kind ADMIN_ADJUST --gold -100 --remark "误发回收"
  ledgerctl grant --user 42 --kind PURCHASE_VIP --plan gold_30 --key order-9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.UserID <= 0 {
				return fmt.Errorf("--user 必填")
			}
			if req.IdempotencyKey == "" {
				req.IdempotencyKey = "cli:" + uuid.NewString()
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			trans, err := a.svcs.Ledger.RecordInternal(cmd.Context(), &req)
			if trans != nil {
				if perr := printJSON(trans); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&req.UserID, "user", 0, "用户ID")
	cmd.Flags().StringVar(&req.Kind, "kind", model.KindAdminAdjust, "交易类型")
	cmd.Flags().Int64Var(&req.GoldAmount, "gold", 0, "金币数量，ADMIN_ADJUST 可为负数")
	cmd.Flags().IntVar(&req.VipDays, "vip-days", 0, "VIP 天数")
	cmd.Flags().StringVar(&req.VipTier, "vip-tier", "", "VIP 等级")
	cmd.Flags().StringVar(&req.PlanID, "plan", "", "VIP 套餐ID")
	cmd.Flags().StringVar(&req.IdempotencyKey, "key", "", "幂等键，缺省自动生成")
	cmd.Flags().StringVar(&req.Remark, "remark", "", "备注")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [user-id...]",
		Short: "核对钱包余额与流水合计",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			mismatched := 0
			for _, arg := range args {
				userID, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("用户ID格式错误: %s", arg)
				}
				balance, sum, err := a.svcs.Wallet.Reconcile(cmd.Context(), userID)
				if err != nil {
					return err
				}
				status := "OK"
				if balance != sum {
					status = "MISMATCH"
					mismatched++
				}
				fmt.Printf("%d\tbalance=%d\tentries=%d\t%s\n", userID, balance, sum, status)
			}
			if mismatched > 0 {
				return fmt.Errorf("%d 个钱包对账不一致", mismatched)
			}
			return nil
		},
	}
}
