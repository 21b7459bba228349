package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dot-wallet/internal/service"
	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/pkg/wallet/types"
)

const maxPasswordAttempts = 3

var feeCmd = &cobra.Command{
	Use:   "fee",
	Short: "预估交易手续费 (不签名不广播)",
	Run: func(cmd *cobra.Command, args []string) {
		svc, cc := localService(cmd)
		defer svc.Close()

		quote, err := svc.EstimateFee(context.Background(), txInput(cmd, cc))
		if err != nil {
			fmt.Printf("预估失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("预估手续费: %s (%s Planck)\n", quote.Display, quote.Partial)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "签名并提交交易，等待最终确认",
	Long:  `使用本地 keystore 签名，提交到节点并等待交易进入终态 (finalized / failed / expired)。Ctrl-C 取消。`,
	Run: func(cmd *cobra.Command, args []string) {
		svc, cc := localService(cmd)
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go svc.Run(ctx)

		in := txInput(cmd, cc)
		if quote, err := svc.EstimateFee(ctx, in); err == nil {
			fmt.Printf("预估手续费: %s\n", quote.Display)
		}

		// 1. 确认签名，密码错误可以重试
		view, err := svc.Submit(ctx, in, types.NewPasswordContext(string(readPassword("请输入 Keystore 密码以确认签名: "))))
		for attempt := 1; errors.Is(err, lifecycle.ErrIncorrectSecret) && attempt < maxPasswordAttempts; attempt++ {
			fmt.Println("密码错误，请重试")
			view, err = svc.Sign(ctx, view.ID, types.NewPasswordContext(string(readPassword("密码: "))))
		}
		if err != nil {
			if view != nil {
				_, _ = svc.Cancel(context.Background(), view.ID)
			}
			fmt.Printf("❌ 提交失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("交易已提交 (flow %s)，等待确认...\n", view.ID)

		// 2. 等待终态
		final, err := waitTerminal(ctx, svc, view.ID)
		if err != nil {
			_, _ = svc.Cancel(context.Background(), view.ID)
			fmt.Printf("已停止等待: %v\n", err)
			os.Exit(1)
		}

		out, _ := json.MarshalIndent(final, "", "  ")
		fmt.Println(string(out))
		if final.State != "finalized" {
			os.Exit(1)
		}
		fmt.Println("✅ 交易已最终确认")
	},
}

func waitTerminal(ctx context.Context, svc *service.TxService, id string) (*service.FlowView, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := ""
	for {
		v, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if v.State != last {
			fmt.Printf("  状态: %s\n", v.State)
			last = v.State
		}
		switch v.State {
		case "finalized", "failed", "cancelled", "expired":
			return v, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(feeCmd, sendCmd)
	addTxFlags(feeCmd)
	addTxFlags(sendCmd)
	sendCmd.Flags().Duration("expires-in", 0, "请求有效期 (0 使用默认值)")
}
