package main

import (
	"fmt"
	"strconv"

	"monetcore/internal/model"
	"monetcore/internal/repository"

	"github.com/spf13/cobra"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "查看和重投失败的事件",
	}

	var limit int
	failed := &cobra.Command{
		Use:   "failed",
		Short: "列出超过重试次数的事件",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			repo := repository.NewOutboxRepository(a.db)
			messages, err := repo.ListByStatus(cmd.Context(), model.OutboxStatusFailed, limit)
			if err != nil {
				return err
			}
			for _, m := range messages {
				fmt.Printf("%d\t%s\t%s\tretry=%d\t%s\n", m.ID, m.EventType, m.MessageKey, m.RetryCount, m.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			pending, err := repo.CountByStatus(cmd.Context(), model.OutboxStatusPending)
			if err != nil {
				return err
			}
			fmt.Printf("失败 %d 条，待发送 %d 条\n", len(messages), pending)
			return nil
		},
	}
	failed.Flags().IntVarP(&limit, "limit", "n", 100, "最多显示条数")

	requeue := &cobra.Command{
		Use:   "requeue [message-id...]",
		Short: "把失败事件重新置为待发送",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			repo := repository.NewOutboxRepository(a.db)
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("消息ID格式错误: %s", arg)
				}
				ok, err := repo.Requeue(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Printf("%d 不是 FAILED 状态，跳过\n", id)
					continue
				}
				fmt.Printf("%d 已重新入队\n", id)
			}
			return nil
		},
	}

	cmd.AddCommand(failed, requeue)
	return cmd
}
