package index

import "time"

type HashType string
type AddressHash string
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusConfirmed TransactionStatus = "CONFIRMED"
)

// LegType tags a base transaction inside a multi-party transaction.
type LegType string

const (
	LegInput              LegType = "IBT"
	LegReceiver           LegType = "RBT"
	LegNetworkFee         LegType = "NFFBT"
	LegFullnodeFee        LegType = "FFBT"
	LegTokenMintFee       LegType = "TMBT"
	LegTokenGenerationFee LegType = "TGBT"
)

type BaseTransaction struct {
	Id            int64       `json:"-" msgpack:"id"`
	TransactionId int64       `json:"-" msgpack:"transaction_id"`
	Hash          HashType    `json:"hash" msgpack:"hash"`
	Index         int32       `json:"index" msgpack:"index"`
	AddressHash   AddressHash `json:"addressHash" msgpack:"address_hash"`
	Amount        string      `json:"amount" msgpack:"amount"`
	CurrencyHash  *HashType   `json:"currencyHash,omitempty" msgpack:"currency_hash"`
	Type          LegType     `json:"type" msgpack:"type"`
	CreateTime    time.Time   `json:"createTime" msgpack:"create_time"`
}

// Transaction is read-only here. Status is derived from ConsensusTime on demand.
type Transaction struct {
	Id             int64             `json:"-"`
	Hash           HashType          `json:"hash"`
	Index          *int64            `json:"index,omitempty"`
	Amount         string            `json:"amount"`
	Type           string            `json:"type"`
	AttachmentTime *time.Time        `json:"attachmentTime,omitempty"`
	ConsensusTime  *time.Time        `json:"transactionConsensusUpdateTime,omitempty"`
	CreateTime     time.Time         `json:"createTime"`
	UpdateTime     time.Time         `json:"updateTime"`
	Legs           []BaseTransaction `json:"baseTransactions"`
}

func (t *Transaction) Status() TransactionStatus {
	if t.ConsensusTime != nil {
		return StatusConfirmed
	}
	return StatusPending
}

// LegsOfType returns legs with the given tag in their original order.
func (t *Transaction) LegsOfType(typ LegType) []BaseTransaction {
	res := []BaseTransaction{}
	for _, leg := range t.Legs {
		if leg.Type == typ {
			res = append(res, leg)
		}
	}
	return res
}

type AddressBalance struct {
	AddressHash  AddressHash `json:"addressHash"`
	CurrencyHash HashType    `json:"currencyHash"`
	Balance      string      `json:"balance"`
	UpdateTime   time.Time   `json:"updateTime"`
} // @name AddressBalance

type Token struct {
	Hash           HashType    `json:"hash"`
	Name           string      `json:"name"`
	Symbol         string      `json:"symbol"`
	Description    *string     `json:"description,omitempty"`
	TotalSupply    string      `json:"totalSupply"`
	Scale          int32       `json:"scale"`
	OriginatorHash AddressHash `json:"originatorHash"`
	CreateTime     time.Time   `json:"createTime"`
} // @name Token

type Node struct {
	Hash          HashType  `json:"nodeHash" msgpack:"hash"`
	Type          string    `json:"nodeType" msgpack:"type"`
	Url           *string   `json:"url,omitempty" msgpack:"url"`
	Version       *string   `json:"version,omitempty" msgpack:"version"`
	FeePercentage *float64  `json:"feePercentage,omitempty" msgpack:"fee_percentage"`
	FeeMinimum    *float64  `json:"feeMinimum,omitempty" msgpack:"fee_minimum"`
	FeeMaximum    *float64  `json:"feeMaximum,omitempty" msgpack:"fee_maximum"`
	Uptime        *float64  `json:"uptime,omitempty" msgpack:"uptime"`
	Status        string    `json:"status" msgpack:"status"`
	UpdateTime    time.Time `json:"updateTime" msgpack:"update_time"`
} // @name Node

type ConfirmationTimeStats struct {
	AverageSeconds float64   `json:"average" msgpack:"average"`
	MinimumSeconds float64   `json:"minimum" msgpack:"minimum"`
	MaximumSeconds float64   `json:"maximum" msgpack:"maximum"`
	SampleSize     int64     `json:"sampleSize" msgpack:"sample_size"`
	CreateTime     time.Time `json:"createTime" msgpack:"create_time"`
} // @name ConfirmationTimeStats

type TreasuryTotals struct {
	TotalLocked   string    `json:"totalLocked" msgpack:"total_locked"`
	TotalRewards  string    `json:"totalRewards" msgpack:"total_rewards"`
	TotalLeverage string    `json:"totalLeverage" msgpack:"total_leverage"`
	CreateTime    time.Time `json:"createTime" msgpack:"create_time"`
} // @name TreasuryTotals

type CountSnapshot struct {
	Count      int64     `json:"count" msgpack:"count"`
	CreateTime time.Time `json:"createTime" msgpack:"create_time"`
} // @name CountSnapshot
