package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dot-wallet/pkg/config"
	"dot-wallet/pkg/logger"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "wallet-cli",
	Short: "Polkadot 钱包命令行工具",
	Long: `Substrate 钱包命令行工具。
支持创建/导入 keystore、单位换算、手续费预估以及转账和质押操作。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env)
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// chainFlag 查找 --chain 对应的链配置
func chainFlag(cmd *cobra.Command) config.ChainConfig {
	id, _ := cmd.Flags().GetString("chain")
	cc, ok := config.Global.Chain(id)
	if !ok {
		fmt.Printf("未知的链: %s\n", id)
		os.Exit(1)
	}
	return cc
}

func init() {
	rootCmd.PersistentFlags().String("chain", "polkadot", "链 ID (见配置 chains)")
}
