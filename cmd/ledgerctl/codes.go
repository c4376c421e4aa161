package main

import (
	"fmt"
	"time"

	"monetcore/internal/model"
	"monetcore/internal/service"

	"github.com/spf13/cobra"
)

func codesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "兑换码管理",
	}
	cmd.AddCommand(codesGenerateCmd())
	cmd.AddCommand(codesListCmd())
	cmd.AddCommand(codesDeactivateCmd())
	return cmd
}

func codesGenerateCmd() *cobra.Command {
	var (
		req     service.BatchRequest
		expires time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "生成一批兑换码，每行输出一个",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Name == "" {
				return fmt.Errorf("--name 必填")
			}
			if expires > 0 {
				at := time.Now().Add(expires)
				req.ExpiresAt = &at
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			batch, codes, err := a.svcs.Redeem.GenerateBatch(cmd.Context(), &req)
			if err != nil {
				return err
			}
			a.log.Info().Str("batch_id", batch.ID).Int("count", len(codes)).Msg("兑换码已生成")
			for _, c := range codes {
				fmt.Println(c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "批次名称")
	cmd.Flags().StringVar(&req.RewardType, "reward", model.RewardTypeGold, "奖励类型 GOLD / VIP_DAYS")
	cmd.Flags().Int64Var(&req.RewardValue, "value", 0, "金币数或 VIP 天数")
	cmd.Flags().StringVar(&req.VipTier, "vip-tier", "", "VIP_DAYS 奖励的等级，缺省 VIP_GOLD")
	cmd.Flags().IntVar(&req.UsageLimit, "usage-limit", 1, "每个码可兑换次数")
	cmd.Flags().IntVarP(&req.Quantity, "quantity", "n", 1, "生成数量")
	cmd.Flags().StringVar(&req.Prefix, "prefix", "", "码前缀")
	cmd.Flags().DurationVar(&expires, "expires-in", 0, "有效期，如 720h；0 表示永久")
	return cmd
}

func codesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [batch-id]",
		Short: "列出批次内兑换码及使用情况",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			codes, err := a.svcs.Redeem.ListBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, c := range codes {
				fmt.Printf("%s\t%d/%d\tactive=%t\n", c.Code, c.UsedCount, c.UsageLimit, c.IsActive)
			}
			return nil
		},
	}
}

func codesDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate [code...]",
		Short: "停用兑换码",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			for _, code := range args {
				if err := a.svcs.Redeem.Deactivate(cmd.Context(), code); err != nil {
					return fmt.Errorf("%s: %w", code, err)
				}
				fmt.Printf("%s 已停用\n", code)
			}
			return nil
		},
	}
}
