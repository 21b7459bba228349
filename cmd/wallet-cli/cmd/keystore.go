package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dot-wallet/internal/signer"
	"dot-wallet/pkg/bip39"
	"dot-wallet/pkg/config"
	"dot-wallet/pkg/keystore"
	"dot-wallet/pkg/wallet/types"
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "管理本地 keystore (sr25519)",
}

var keystoreNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新的助记词并加密保存",
	Run: func(cmd *cobra.Command, args []string) {
		words, _ := cmd.Flags().GetInt("words")
		bits := 128
		if words == 24 {
			bits = 256
		}

		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(bits)
		if err != nil {
			fmt.Printf("生成助记词失败: %v\n", err)
			os.Exit(1)
		}
		addr := saveMnemonic(cmd, mnemonic)

		fmt.Print("\n是否需要现在显示助记词以便备份? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))
		if input == "y" || input == "yes" {
			fmt.Println("\n---------------------------------------------------")
			fmt.Println("助记词 (请抄写在纸上并安全保管):")
			fmt.Println(mnemonic)
			fmt.Println("---------------------------------------------------")
		}
		fmt.Printf("地址: %s\n", addr)
	},
}

var keystoreImportCmd = &cobra.Command{
	Use:   "import",
	Short: "导入已有助记词",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print("输入助记词: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("读取助记词失败:", err)
			os.Exit(1)
		}
		mnemonic := bip39.Normalize(string(raw))
		if !bip39.NewMnemonicService().ValidateMnemonic(mnemonic) {
			fmt.Println("助记词无效")
			os.Exit(1)
		}
		fmt.Printf("地址: %s\n", saveMnemonic(cmd, mnemonic))
	},
}

var keystoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已保存的地址",
	Run: func(cmd *cobra.Command, args []string) {
		addrs, err := keystore.NewStore(config.Global.Signer.KeystoreDir).List()
		if err != nil {
			fmt.Printf("读取 keystore 目录失败: %v\n", err)
			os.Exit(1)
		}
		for _, a := range addrs {
			fmt.Println(a)
		}
	},
}

// saveMnemonic 输入两次密码，加密后以链前缀地址保存
func saveMnemonic(cmd *cobra.Command, mnemonic string) string {
	cc := chainFlag(cmd)

	password := readPassword("设置密码: ")
	if len(password) < 6 {
		fmt.Println("密码长度至少需要 6 位。")
		os.Exit(1)
	}
	if string(readPassword("确认密码: ")) != string(password) {
		fmt.Println("两次输入的密码不一致！")
		os.Exit(1)
	}

	addr, err := signer.AddressFromMnemonic(mnemonic, cc.SS58Prefix)
	if err != nil {
		fmt.Printf("派生地址失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("正在加密保存...")
	k, err := keystore.EncryptMnemonic(mnemonic, password)
	if err != nil {
		fmt.Printf("加密失败: %v\n", err)
		os.Exit(1)
	}
	k.Address = addr
	k.Scheme = string(types.SchemeSr25519)

	if err := keystore.NewStore(config.Global.Signer.KeystoreDir).Save(k); err != nil {
		fmt.Printf("保存文件失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n✅ keystore 已保存 (%s)\n", config.Global.Signer.KeystoreDir)
	fmt.Println("⚠️  警告: 请务必记住您的密码！如果丢失密码，您将无法恢复钱包。")
	return addr
}

func readPassword(prompt string) []byte {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("读取密码失败:", err)
		os.Exit(1)
	}
	return b
}

func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(keystoreNewCmd, keystoreImportCmd, keystoreListCmd)
	keystoreNewCmd.Flags().Int("words", 12, "助记词长度 (12 或 24)")
}
