package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/transactions": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "transactions"
                ],
                "summary": "Get transactions",
                "operationId": "api_v1_get_transactions",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Address hash in hex.",
                        "name": "address",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Transaction status.",
                        "name": "status",
                        "in": "query",
                        "enum": [
                            "PENDING",
                            "CONFIRMED"
                        ]
                    },
                    {
                        "type": "integer",
                        "description": "Limit number of queried rows.",
                        "name": "limit",
                        "in": "query",
                        "maximum": 1000,
                        "minimum": 1,
                        "default": 100
                    },
                    {
                        "type": "integer",
                        "description": "Skip first N rows.",
                        "name": "offset",
                        "in": "query",
                        "minimum": 0,
                        "default": 0
                    },
                    {
                        "type": "string",
                        "description": "Sort order.",
                        "name": "sort",
                        "in": "query",
                        "enum": [
                            "asc",
                            "desc"
                        ],
                        "default": "desc"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/TransactionsResponse"
                        }
                    },
                    "422": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                },
                "description": "Get latest transactions, optionally filtered by address and status."
            }
        },
        "/api/v1/transactions/{hash}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "transactions"
                ],
                "summary": "Get transaction",
                "operationId": "api_v1_get_transaction",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Transaction hash in hex.",
                        "name": "hash",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/Transaction"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    },
                    "422": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                }
            }
        },
        "/api/v1/addresses/{address}/transactions": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "addresses"
                ],
                "summary": "Get address transactions",
                "operationId": "api_v1_get_address_transactions",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Address hash in hex.",
                        "name": "address",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Limit number of queried rows.",
                        "name": "limit",
                        "in": "query",
                        "maximum": 1000,
                        "minimum": 1,
                        "default": 100
                    },
                    {
                        "type": "integer",
                        "description": "Skip first N rows.",
                        "name": "offset",
                        "in": "query",
                        "minimum": 0,
                        "default": 0
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/TransactionsResponse"
                        }
                    },
                    "422": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                }
            }
        },
        "/api/v1/addresses/{address}/total": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "addresses"
                ],
                "summary": "Get address total",
                "operationId": "api_v1_get_address_total",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Address hash in hex.",
                        "name": "address",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/AddressTotalResponse"
                        }
                    },
                    "422": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                },
                "description": "Get the number of transactions an address took part in."
            }
        },
        "/api/v1/addresses/{address}/balances": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "addresses"
                ],
                "summary": "Get address balances",
                "operationId": "api_v1_get_address_balances",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Address hash in hex.",
                        "name": "address",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/BalancesResponse"
                        }
                    },
                    "422": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                }
            }
        },
        "/api/v1/tokens": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "tokens"
                ],
                "summary": "Get tokens",
                "operationId": "api_v1_get_tokens",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Limit number of queried rows.",
                        "name": "limit",
                        "in": "query",
                        "maximum": 1000,
                        "minimum": 1,
                        "default": 100
                    },
                    {
                        "type": "integer",
                        "description": "Skip first N rows.",
                        "name": "offset",
                        "in": "query",
                        "minimum": 0,
                        "default": 0
                    },
                    {
                        "type": "string",
                        "description": "Sort order.",
                        "name": "sort",
                        "in": "query",
                        "enum": [
                            "asc",
                            "desc"
                        ],
                        "default": "desc"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/TokensResponse"
                        }
                    },
                    "422": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                }
            }
        },
        "/api/v1/tokens/{hash}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "tokens"
                ],
                "summary": "Get token",
                "operationId": "api_v1_get_token",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Currency hash in hex.",
                        "name": "hash",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/Token"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                }
            }
        },
        "/api/v1/nodes": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "nodes"
                ],
                "summary": "Get nodes",
                "operationId": "api_v1_get_nodes",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Node type.",
                        "name": "node_type",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/NodesResponse"
                        }
                    }
                }
            }
        },
        "/api/v1/nodes/{hash}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "nodes"
                ],
                "summary": "Get node",
                "operationId": "api_v1_get_node",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Node hash in hex.",
                        "name": "hash",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/Node"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                },
                "description": "Get node with the latest node-manager data."
            }
        },
        "/api/v1/statistics/confirmation-time": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "statistics"
                ],
                "summary": "Get confirmation time",
                "operationId": "api_v1_get_confirmation_time",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ConfirmationTimeStats"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                },
                "description": "Get average, minimum and maximum confirmation time over the last 24 hours."
            }
        },
        "/api/v1/statistics/treasury-totals": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "statistics"
                ],
                "summary": "Get treasury totals",
                "operationId": "api_v1_get_treasury_totals",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/TreasuryTotals"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/RequestError"
                        }
                    }
                }
            }
        },
        "/api/v1/statistics/active-wallets": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "statistics"
                ],
                "summary": "Get active wallets",
                "operationId": "api_v1_get_active_wallets",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/CountSnapshot"
                        }
                    }
                },
                "description": "Get the number of addresses holding a positive balance."
            }
        }
    },
    "definitions": {
        "BaseTransaction": {
            "type": "object",
            "properties": {
                "hash": {
                    "type": "string"
                },
                "index": {
                    "type": "integer"
                },
                "addressHash": {
                    "type": "string"
                },
                "amount": {
                    "type": "string"
                },
                "currencyHash": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "createTime": {
                    "type": "string"
                }
            }
        },
        "Transaction": {
            "type": "object",
            "properties": {
                "hash": {
                    "type": "string"
                },
                "index": {
                    "type": "integer"
                },
                "amount": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "PENDING",
                        "CONFIRMED"
                    ]
                },
                "attachmentTime": {
                    "type": "string"
                },
                "transactionConsensusUpdateTime": {
                    "type": "string"
                },
                "createTime": {
                    "type": "string"
                },
                "updateTime": {
                    "type": "string"
                },
                "baseTransactions": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/BaseTransaction"
                    }
                }
            }
        },
        "TransactionsResponse": {
            "type": "object",
            "properties": {
                "transactions": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Transaction"
                    }
                },
                "total": {
                    "type": "integer"
                }
            }
        },
        "AddressTotalResponse": {
            "type": "object",
            "properties": {
                "addressHash": {
                    "type": "string"
                },
                "totalTransactions": {
                    "type": "integer"
                }
            }
        },
        "AddressBalance": {
            "type": "object",
            "properties": {
                "addressHash": {
                    "type": "string"
                },
                "currencyHash": {
                    "type": "string"
                },
                "balance": {
                    "type": "string"
                },
                "updateTime": {
                    "type": "string"
                }
            }
        },
        "BalancesResponse": {
            "type": "object",
            "properties": {
                "balances": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/AddressBalance"
                    }
                }
            }
        },
        "Token": {
            "type": "object",
            "properties": {
                "hash": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "symbol": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "totalSupply": {
                    "type": "string"
                },
                "scale": {
                    "type": "integer"
                },
                "originatorHash": {
                    "type": "string"
                },
                "createTime": {
                    "type": "string"
                }
            }
        },
        "TokensResponse": {
            "type": "object",
            "properties": {
                "tokens": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Token"
                    }
                }
            }
        },
        "Node": {
            "type": "object",
            "properties": {
                "nodeHash": {
                    "type": "string"
                },
                "nodeType": {
                    "type": "string"
                },
                "url": {
                    "type": "string"
                },
                "version": {
                    "type": "string"
                },
                "feePercentage": {
                    "type": "number"
                },
                "feeMinimum": {
                    "type": "number"
                },
                "feeMaximum": {
                    "type": "number"
                },
                "uptime": {
                    "type": "number"
                },
                "status": {
                    "type": "string"
                },
                "updateTime": {
                    "type": "string"
                }
            }
        },
        "NodesResponse": {
            "type": "object",
            "properties": {
                "nodes": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Node"
                    }
                }
            }
        },
        "ConfirmationTimeStats": {
            "type": "object",
            "properties": {
                "average": {
                    "type": "number"
                },
                "minimum": {
                    "type": "number"
                },
                "maximum": {
                    "type": "number"
                },
                "sampleSize": {
                    "type": "integer"
                },
                "createTime": {
                    "type": "string"
                }
            }
        },
        "TreasuryTotals": {
            "type": "object",
            "properties": {
                "totalLocked": {
                    "type": "string"
                },
                "totalRewards": {
                    "type": "string"
                },
                "totalLeverage": {
                    "type": "string"
                },
                "createTime": {
                    "type": "string"
                }
            }
        },
        "CountSnapshot": {
            "type": "object",
            "properties": {
                "count": {
                    "type": "integer"
                },
                "createTime": {
                    "type": "string"
                }
            }
        },
        "RequestError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "integer"
                },
                "error": {
                    "type": "string"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "",
	Schemes:          []string{},
	Title:            "COTI Explorer API",
	Description:      "COTI Explorer API serves indexed transactions, balances, tokens, nodes and network statistics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
