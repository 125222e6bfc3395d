package main

import (
	"context"
	"dsg-rpc/command"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print the miner statistics",
	Args:  cobra.NoArgs,
	RunE: runClient(func(ctx context.Context, env *commandEnv, _ []string) (any, error) {
		if len(env.opts) == 0 {
			return env.client.GetStat(ctx)
		}
		var stat command.MinerStat
		err := env.client.Call(ctx, command.GetStat, nil, &stat, env.opts...)
		return stat, err
	}),
}

var dmcKeyCmd = &cobra.Command{
	Use:   "dmc-key <account>",
	Short: "Print the public key the miner holds for a DMC account",
	Args:  cobra.ExactArgs(1),
	RunE: runClient(func(ctx context.Context, env *commandEnv, args []string) (any, error) {
		return env.client.GetDMCKey(ctx, args[0], env.opts...)
	}),
}

var dmcAccountCmd = &cobra.Command{
	Use:   "dmc-account",
	Short: "Print the DMC account the miner is bound to",
	Args:  cobra.NoArgs,
	RunE: runClient(func(ctx context.Context, env *commandEnv, _ []string) (any, error) {
		return env.client.GetDMCAccount(ctx, env.opts...)
	}),
}

var setDMCAccountCmd = &cobra.Command{
	Use:   "set-dmc-account <account> <private-key>",
	Short: "Bind the miner to a DMC account",
	Args:  cobra.ExactArgs(2),
	RunE: runClient(func(ctx context.Context, env *commandEnv, args []string) (any, error) {
		return nil, env.client.SetDMCAccount(ctx, args[0], args[1], env.opts...)
	}),
}

var setHTTPDomainCmd = &cobra.Command{
	Use:   "set-http-domain <domain>",
	Short: "Set the public HTTP domain of the miner",
	Args:  cobra.ExactArgs(1),
	RunE: runClient(func(ctx context.Context, env *commandEnv, args []string) (any, error) {
		return nil, env.client.SetHTTPDomain(ctx, args[0], env.opts...)
	}),
}

func init() {
	rootCmd.AddCommand(statCmd, dmcKeyCmd, dmcAccountCmd, setDMCAccountCmd, setHTTPDomainCmd)
}
