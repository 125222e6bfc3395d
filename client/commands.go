package client

import (
	"context"
	"dsg-rpc/command"
)

// GetStat fetches the miner statistics of the local device.
func (c *Client) GetStat(ctx context.Context) (*command.MinerStat, error) {
	stat := &command.MinerStat{}
	if err := c.Call(ctx, command.GetStat, nil, stat); err != nil {
		return nil, err
	}
	return stat, nil
}

// GetDMCKey returns the public key the miner holds for a DMC account.
func (c *Client) GetDMCKey(ctx context.Context, account string, opts ...CallOption) (string, error) {
	var key string
	if err := c.Call(ctx, command.GetDMCKey, account, &key, opts...); err != nil {
		return "", err
	}
	return key, nil
}

// GetDMCAccount returns the DMC account the miner is bound to.
func (c *Client) GetDMCAccount(ctx context.Context, opts ...CallOption) (string, error) {
	var account string
	if err := c.Call(ctx, command.GetDMCAccount, nil, &account, opts...); err != nil {
		return "", err
	}
	return account, nil
}

// SetDMCAccount binds the miner to a DMC account and its private key.
func (c *Client) SetDMCAccount(ctx context.Context, account, key string, opts ...CallOption) error {
	req := &command.SetDMCAccountReq{DMCAccount: account, DMCKey: key}
	return c.Call(ctx, command.SetDMCAccount, req, nil, opts...)
}

// SetHTTPDomain sets the public HTTP domain the miner serves chunks from.
func (c *Client) SetHTTPDomain(ctx context.Context, domain string, opts ...CallOption) error {
	return c.Call(ctx, command.SetHTTPDomain, domain, nil, opts...)
}
