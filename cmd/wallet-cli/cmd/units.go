package cmd

import (
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"dot-wallet/pkg/wallet/units"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "人类可读金额与最小单位 (Planck) 互转",
}

var toMinimalCmd = &cobra.Command{
	Use:   "to-minimal <amount>",
	Short: "1.5 -> 15000000000",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cc := chainFlag(cmd)
		v, err := units.ToMinimal(args[0], cc.Decimals)
		if err != nil {
			fmt.Printf("换算失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(v.String())
	},
}

var fromMinimalCmd = &cobra.Command{
	Use:   "from-minimal <planck>",
	Short: "15000000000 -> 1.5 DOT",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cc := chainFlag(cmd)
		v, ok := new(big.Int).SetString(args[0], 10)
		if !ok || v.Sign() < 0 {
			fmt.Printf("无效的数值: %s\n", args[0])
			os.Exit(1)
		}
		fmt.Println(units.Format(v, cc.Decimals, cc.Symbol))
	},
}

func init() {
	rootCmd.AddCommand(unitsCmd)
	unitsCmd.AddCommand(toMinimalCmd, fromMinimalCmd)
}
