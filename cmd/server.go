package cmd

import (
	"LazyDJ/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 LazyDJ 服务器",
	Long:  `启动 LazyDJ 点歌系统的 HTTP 服务器，提供会话管理、点歌队列与管理员控制 API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
