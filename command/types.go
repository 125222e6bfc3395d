package command

// MinerStat is the reply to GetStat. Counters are decimal strings so that values
// beyond 2^53 survive JSON intact.
type MinerStat struct {
	BillCount   string `json:"bill_count" validate:"required,numeric"`
	OrderCount  string `json:"order_count" validate:"required,numeric"`
	BilledSpace string `json:"billed_space" validate:"required,numeric"`
	SelledSpace string `json:"selled_space" validate:"required,numeric"`
	UsedSpace   string `json:"used_space" validate:"required,numeric"`
}

// SetDMCAccountReq is the body of SetDMCAccount.
type SetDMCAccountReq struct {
	DMCAccount string `json:"dmc_account" validate:"required"`
	DMCKey     string `json:"dmc_key" validate:"required"`
}
