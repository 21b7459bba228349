package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dot-wallet/internal/chain/substrate"
	"dot-wallet/internal/service"
	"dot-wallet/internal/service/history"
	"dot-wallet/internal/service/mq"
	"dot-wallet/internal/signer"
	"dot-wallet/pkg/cache"
	"dot-wallet/pkg/config"
	"dot-wallet/pkg/keystore"
	"dot-wallet/pkg/utils/lock"
	"dot-wallet/pkg/wallet/types"
)

// localService 单进程版 TxService: 内存锁、内存缓存、内存历史，仅支持密码签名
func localService(cmd *cobra.Command) (*service.TxService, config.ChainConfig) {
	cc := chainFlag(cmd)

	fmt.Printf("正在连接 RPC: %s ...\n", cc.RpcUrl)
	client, err := substrate.Dial(cc)
	if err != nil {
		fmt.Printf("连接失败: %v\n", err)
		os.Exit(1)
	}

	router := signer.NewRouter().
		Register(types.SignerPassword, signer.NewKeystoreSigner(keystore.NewStore(config.Global.Signer.KeystoreDir)))

	lc := config.Global.Lifecycle
	svc := service.NewTxService(service.TxDeps{
		Chains:        []service.Chain{{Config: cc, Client: client}},
		Signer:        router,
		History:       history.NewMemoryStore(),
		Locker:        lock.NewLocalLock(),
		Fees:          cache.NewMemoryCache(lc.FeeCacheTTL, time.Minute),
		Producer:      mq.NewMemoryBroker(),
		ResponseTopic: config.Global.Signer.RelayResponseTopic,
		Lifecycle:     lc,
	})
	return svc, cc
}

// txInput 从命令行参数构造交易意图
func txInput(cmd *cobra.Command, cc config.ChainConfig) *service.TxInput {
	action, _ := cmd.Flags().GetString("action")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	amount, _ := cmd.Flags().GetString("amount")
	validators, _ := cmd.Flags().GetStringSlice("validators")
	paraID, _ := cmd.Flags().GetUint32("para-id")

	in := &service.TxInput{
		ChainID:    cc.ID,
		Action:     action,
		From:       from,
		Amount:     amount,
		Target:     to,
		Validators: validators,
		ParaID:     paraID,
	}
	if ttl, _ := cmd.Flags().GetDuration("expires-in"); ttl > 0 {
		in.ExpiresAt = time.Now().Add(ttl)
	}
	return in
}

func addTxFlags(c *cobra.Command) {
	c.Flags().String("action", "transfer", "交易类型: "+strings.Join(actionNames(), ", "))
	c.Flags().String("from", "", "发送方地址 (需要存在于 keystore)")
	c.Flags().String("to", "", "接收方地址 (transfer)")
	c.Flags().String("amount", "", "金额，人类可读格式 (例如 1.5)")
	c.Flags().StringSlice("validators", nil, "验证人地址列表 (nominate)")
	c.Flags().Uint32("para-id", 0, "平行链 ID (contribute)")
	c.MarkFlagRequired("from")
}

func actionNames() []string {
	var out []string
	for _, a := range types.AllActions {
		out = append(out, a.String())
	}
	return out
}
