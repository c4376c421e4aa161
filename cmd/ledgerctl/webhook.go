package main

import (
	"fmt"
	"net/url"
	"strings"

	"monetcore/internal/config"
	"monetcore/internal/model"
	"monetcore/internal/provider"

	"github.com/spf13/cobra"
)

// signWebhookCmd 开发联调用：对回调参数签名，输出可直接回放的请求
func signWebhookCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "sign-webhook [VNPAY|MOMO]",
		Short: "用本地密钥为回调参数签名",
		Example: `  ledgerctl sign-webhook VNPAY -p vnp_TxnRef=TXN1 -p vnp_Amount=10000000 -p vnp_ResponseCode=00 -p vnp_TransactionNo=1
  ledgerctl sign-webhook MOMO -p orderId=TXN1 -p amount=100000 -p resultCode=0 -p transId=1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			values := make(map[string]string, len(params))
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("参数格式应为 key=value: %s", p)
				}
				values[k] = v
			}

			switch strings.ToUpper(args[0]) {
			case model.ProviderVNPay:
				sig, err := provider.NewVNPay(cfg.Providers.VNPay.HashSecret).Sign(values)
				if err != nil {
					return err
				}
				q := url.Values{}
				for k, v := range values {
					q.Set(k, v)
				}
				q.Set("vnp_SecureHash", sig)
				fmt.Printf("/api/v1/webhooks/vnpay?%s\n", q.Encode())
			case model.ProviderMoMo:
				sig, err := provider.NewMoMo(cfg.Providers.MoMo.AccessKey, cfg.Providers.MoMo.SecretKey).Sign(values)
				if err != nil {
					return err
				}
				values["signature"] = sig
				return printJSON(values)
			default:
				return fmt.Errorf("不支持的渠道: %s", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "回调参数 key=value，可重复")
	return cmd
}
