// Package cli gacha 命令行：启动服务、生成密钥、签发调试令牌。
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gacha",
		Short:         "gacha collection services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewKeygenCommand())
	cmd.AddCommand(NewTokenCommand())
	return cmd
}
