package index

import "fmt"

// responses
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        *int64        `json:"total,omitempty"`
} // @name TransactionsResponse

type AddressTotalResponse struct {
	AddressHash       AddressHash `json:"addressHash"`
	TotalTransactions int64       `json:"totalTransactions"`
} // @name AddressTotalResponse

type BalancesResponse struct {
	Balances []AddressBalance `json:"balances"`
} // @name BalancesResponse

type TokensResponse struct {
	Tokens []Token `json:"tokens"`
} // @name TokensResponse

type NodesResponse struct {
	Nodes []Node `json:"nodes"`
} // @name NodesResponse

// errors
type RequestError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
} // @name RequestError

func (r RequestError) Error() string {
	return fmt.Sprintf("Error %d: %s", r.Code, r.Message)
}
