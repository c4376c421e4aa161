package main

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func affiliateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "affiliate",
		Short: "推广员管理",
	}

	var (
		code string
		rate string
	)
	create := &cobra.Command{
		Use:   "create [user-id]",
		Short: "开通推广员",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("用户ID格式错误: %w", err)
			}
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("佣金比例格式错误: %w", err)
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			account, err := a.svcs.Affiliate.CreateAffiliate(cmd.Context(), userID, code, r)
			if err != nil {
				return err
			}
			return printJSON(account)
		},
	}
	create.Flags().StringVar(&code, "code", "", "推广码，缺省自动生成")
	create.Flags().StringVar(&rate, "rate", "0.1", "佣金比例 [0,1]")

	setRate := &cobra.Command{
		Use:   "rate [affiliate-id] [rate]",
		Short: "修改佣金比例，只影响之后的交易",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("推广员ID格式错误: %w", err)
			}
			r, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("佣金比例格式错误: %w", err)
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			if err := a.svcs.Affiliate.UpdateCommissionRate(cmd.Context(), id, r); err != nil {
				return err
			}
			fmt.Printf("推广员 %d 佣金比例已改为 %s\n", id, r.String())
			return nil
		},
	}

	cmd.AddCommand(create, setRate)
	return cmd
}

func payoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payout",
		Short: "提现审核",
	}

	approve := &cobra.Command{
		Use:   "approve [payout-id]",
		Short: "审核通过",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayout(cmd, args[0], "approve", "")
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject [payout-id]",
		Short: "驳回并退回可提现余额",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayout(cmd, args[0], "reject", reason)
		},
	}
	reject.Flags().StringVarP(&reason, "reason", "r", "", "驳回原因")
	_ = reject.MarkFlagRequired("reason")

	process := &cobra.Command{
		Use:   "process [payout-id]",
		Short: "标记为打款中",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayout(cmd, args[0], "process", "")
		},
	}

	complete := &cobra.Command{
		Use:   "complete [payout-id]",
		Short: "确认打款完成",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayout(cmd, args[0], "complete", "")
		},
	}

	cmd.AddCommand(approve, reject, process, complete)
	return cmd
}

func runPayout(cmd *cobra.Command, rawID, action, reason string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("提现单ID格式错误: %w", err)
	}
	a, err := bootstrap()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	aff := a.svcs.Affiliate
	switch action {
	case "approve":
		payout, err := aff.ApprovePayout(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(payout)
	case "reject":
		payout, err := aff.RejectPayout(ctx, id, reason)
		if err != nil {
			return err
		}
		return printJSON(payout)
	case "process":
		payout, err := aff.StartProcessing(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(payout)
	default:
		payout, err := aff.CompletePayout(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(payout)
	}
}
