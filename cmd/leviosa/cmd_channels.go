package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leviosa/internal/cs"
)

var naverCmd = &cobra.Command{
	Use:   "naver",
	Short: "Manage the Naver Commerce API connection",
}

var naverConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a Naver Commerce application",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		clientID, _ := cmd.Flags().GetString("client-id")
		secret, _ := cmd.Flags().GetString("client-secret")
		storeID, _ := cmd.Flags().GetString("store-id")

		res, err := a.api.Naver.Connect(ctx, cs.NaverConnectRequest{
			NaverClientID: clientID,
			ClientSecret:  secret,
			StoreID:       storeID,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Connected store %s (client %s).\n", res.Data.StoreID, res.Data.NaverClientID)
		return nil
	},
}

var naverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Naver connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.Naver.Status(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !res.Data.IsConnected {
			fmt.Fprintln(out, "Naver: not connected")
			return nil
		}
		fmt.Fprintf(out, "Naver: connected\n  client: %s\n  store:  %s\n",
			deref(res.Data.NaverClientID, "-"), deref(res.Data.StoreID, "-"))
		return nil
	},
}

var naverDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the Naver connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := a.api.Naver.Disconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Naver disconnected.")
		return nil
	},
}

var talktalkCmd = &cobra.Command{
	Use:   "talktalk",
	Short: "Manage the TalkTalk channel",
}

var talktalkConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Enable TalkTalk with a partner token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		token, _ := cmd.Flags().GetString("token")
		res, err := a.api.TalkTalk.Connect(ctx, cs.TalkTalkConnectRequest{TalkTalkToken: token})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "TalkTalk enabled. Register this webhook in the partner center:\n  %s\n", res.Data.WebhookURL)
		return nil
	},
}

var talktalkStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the TalkTalk channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.TalkTalk.Status(ctx)
		if err != nil {
			return err
		}
		state := "disabled"
		if res.Data.TalkTalkEnabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "TalkTalk: %s\n  webhook: %s\n", state, deref(res.Data.WebhookURL, "-"))
		return nil
	},
}

var talktalkDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disable the TalkTalk channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := a.api.TalkTalk.Disconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "TalkTalk disconnected.")
		return nil
	},
}

func init() {
	naverConnectCmd.Flags().String("client-id", "", "Naver Commerce application id (required)")
	naverConnectCmd.Flags().String("client-secret", "", "Naver Commerce application secret (required)")
	naverConnectCmd.Flags().String("store-id", "", "Smart Store id (required)")
	naverConnectCmd.MarkFlagRequired("client-id")
	naverConnectCmd.MarkFlagRequired("client-secret")
	naverConnectCmd.MarkFlagRequired("store-id")
	naverCmd.AddCommand(naverConnectCmd, naverStatusCmd, naverDisconnectCmd)

	talktalkConnectCmd.Flags().String("token", "", "TalkTalk partner token (required)")
	talktalkConnectCmd.MarkFlagRequired("token")
	talktalkCmd.AddCommand(talktalkConnectCmd, talktalkStatusCmd, talktalkDisconnectCmd)

	rootCmd.AddCommand(naverCmd, talktalkCmd)
}
