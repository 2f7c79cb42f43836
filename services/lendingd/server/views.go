package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"lendledger/native/lending"
)

// amount decodes from either a JSON number or a decimal string. Responses
// always carry amounts as strings so clients without 64-bit integers keep
// full precision.
type amount uint64

func (a *amount) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: amount required", errBadRequest)
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		raw = []byte(s)
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid amount %q", errBadRequest, raw)
	}
	*a = amount(v)
	return nil
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

type loanView struct {
	ID              lending.LoanID    `json:"id"`
	Borrower        lending.AccountID `json:"borrower"`
	Principal       string            `json:"principal"`
	Collateral      string            `json:"collateral"`
	RateBps         uint32            `json:"rateBps"`
	OriginationTime uint64            `json:"originationTime"`
	State           string            `json:"state"`
}

func newLoanView(rec lending.LoanRecord) loanView {
	return loanView{
		ID:              rec.ID,
		Borrower:        rec.Borrower,
		Principal:       formatUint(rec.Principal),
		Collateral:      formatUint(rec.Collateral),
		RateBps:         rec.RateBps,
		OriginationTime: rec.OriginationTime,
		State:           rec.State.String(),
	}
}

type accountView struct {
	Account           lending.AccountID `json:"account"`
	PoolBalance       string            `json:"poolBalance"`
	BorrowedPrincipal string            `json:"borrowedPrincipal"`
	LockedCollateral  string            `json:"lockedCollateral"`
}

func newAccountView(id lending.AccountID, acc lending.AccountState) accountView {
	return accountView{
		Account:           id,
		PoolBalance:       formatUint(acc.PoolBalance),
		BorrowedPrincipal: formatUint(acc.BorrowedPrincipal),
		LockedCollateral:  formatUint(acc.LockedCollateral),
	}
}

type dueView struct {
	LoanID    lending.LoanID `json:"loanId"`
	Principal string         `json:"principal"`
	Interest  string         `json:"interest"`
	Total     string         `json:"total"`
	Elapsed   uint64         `json:"elapsed"`
}

type paramsView struct {
	Owner                   lending.AccountID `json:"owner"`
	PoolAccount             lending.AccountID `json:"poolAccount"`
	MinCollateralRatioBps   uint64            `json:"minCollateralRatioBps"`
	InterestRateBps         uint32            `json:"interestRateBps"`
	LiquidationThresholdBps uint64            `json:"liquidationThresholdBps"`
	LoanCount               uint64            `json:"loanCount"`
}

func newParamsView(p lending.Parameters) paramsView {
	return paramsView{
		Owner:                   p.Owner,
		PoolAccount:             p.PoolAccount,
		MinCollateralRatioBps:   p.MinCollateralRatioBps,
		InterestRateBps:         p.InterestRateBps,
		LiquidationThresholdBps: p.LiquidationThresholdBps,
		LoanCount:               p.LoanCount(),
	}
}

type eventPayload struct {
	Type       lending.EventType `json:"type"`
	Caller     lending.AccountID `json:"caller"`
	Borrower   lending.AccountID `json:"borrower,omitempty"`
	LoanID     lending.LoanID    `json:"loanId,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Collateral string            `json:"collateral,omitempty"`
	Interest   string            `json:"interest,omitempty"`
	Param      string            `json:"param,omitempty"`
	Value      string            `json:"value,omitempty"`
	Height     uint64            `json:"height"`
}

func optionalUint(v uint64) string {
	if v == 0 {
		return ""
	}
	return formatUint(v)
}

func eventView(ev lending.Event) eventPayload {
	return eventPayload{
		Type:       ev.Type,
		Caller:     ev.Caller,
		Borrower:   ev.Borrower,
		LoanID:     ev.LoanID,
		Amount:     optionalUint(ev.Amount),
		Collateral: optionalUint(ev.Collateral),
		Interest:   optionalUint(ev.Interest),
		Param:      ev.Param,
		Value:      optionalUint(ev.Value),
		Height:     ev.Height,
	}
}
