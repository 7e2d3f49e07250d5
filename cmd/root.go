package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lazydj",
	Short: "LazyDJ 是一个派对协作点歌服务",
	Long:  `LazyDJ 让派对参与者通过共享会话向同一个 Spotify 播放队列点歌，并提供冷却防刷歌与管理员控制`,
	Run: func(cmd *cobra.Command, args []string) {
		// 默认直接启动服务器
		serverCmd.Run(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
