package portfolio

import "github.com/ksred/klear-trade/internal/types"

// Summary is the read projection served on the portfolio endpoint.
type Summary struct {
	Account   *types.Account   `json:"account"`
	Positions []types.Position `json:"positions"`
	Orders    []types.Order    `json:"orders"`
}
