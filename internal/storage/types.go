package storage

import "time"

// Beacon is a paid post on the public feed.
type Beacon struct {
	ID             string    `json:"id" bson:"_id"`
	Wallet         string    `json:"wallet" bson:"wallet"`
	Content        string    `json:"content" bson:"content"`
	Topic          string    `json:"topic,omitempty" bson:"topic,omitempty"`
	Signature      string    `json:"signature" bson:"signature"`
	AmountLamports uint64    `json:"amount_lamports" bson:"amount_lamports"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// Tip is a verified wallet-to-wallet tip with its fee split.
type Tip struct {
	ID                string    `json:"id" bson:"_id"`
	FromWallet        string    `json:"from_wallet" bson:"from_wallet"`
	ToWallet          string    `json:"to_wallet" bson:"to_wallet"`
	Message           string    `json:"message,omitempty" bson:"message,omitempty"`
	Signature         string    `json:"signature" bson:"signature"`
	AmountLamports    uint64    `json:"amount_lamports" bson:"amount_lamports"`
	RecipientLamports uint64    `json:"recipient_lamports" bson:"recipient_lamports"`
	TaxLamports       uint64    `json:"tax_lamports" bson:"tax_lamports"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// PlatformTransactionKind classifies platform wallet movements.
type PlatformTransactionKind string

// PlatformDeposit is the only kind the API produces: the verifier
// proves who received a transfer, not who sent it, so outbound
// movements cannot be attested the same way.
const PlatformDeposit PlatformTransactionKind = "deposit"

// PlatformTransaction records a movement on a user's derived platform
// deposit wallet.
type PlatformTransaction struct {
	ID             string                  `json:"id" bson:"_id"`
	UserWallet     string                  `json:"user_wallet" bson:"user_wallet"`
	DepositAddress string                  `json:"deposit_address" bson:"deposit_address"`
	Signature      string                  `json:"signature" bson:"signature"`
	AmountLamports uint64                  `json:"amount_lamports" bson:"amount_lamports"`
	Kind           PlatformTransactionKind `json:"kind" bson:"kind"`
	CreatedAt      time.Time               `json:"created_at" bson:"created_at"`
}
