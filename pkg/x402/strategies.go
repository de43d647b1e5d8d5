package x402

import (
	"github.com/gagliardetto/solana-go"

	"github.com/solbeacon/server/internal/chain"
)

// systemProgramID is the Solana system program, owner of native SOL
// transfers.
var systemProgramID = solana.SystemProgramID.String()

// DetectionStrategy decides whether a confirmed transaction paid at
// least the required lamports to the recipient. Strategies run in
// order; the first match wins.
type DetectionStrategy interface {
	Name() string
	Detect(tx *chain.ConfirmedTransaction, recipient string, lamports uint64) bool
}

// balanceDeltaStrategy is authoritative: it compares the recipient's
// pre and post balances. Overpayment is accepted; the requirement is a
// floor, not an exact match.
type balanceDeltaStrategy struct{}

func (balanceDeltaStrategy) Name() string { return "balance_delta" }

func (balanceDeltaStrategy) Detect(tx *chain.ConfirmedTransaction, recipient string, lamports uint64) bool {
	idx := -1
	for i, account := range tx.Accounts {
		if account == recipient {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
		return false
	}
	post := tx.PostBalances[idx]
	pre := tx.PreBalances[idx]
	return post > pre && post-pre >= lamports
}

// instructionScanStrategy is the fallback for transactions whose
// balance metadata is incomplete. It looks for a system-program
// transfer instruction whose destination is the recipient. It cannot
// see the transferred amount, so it only confirms that a transfer to
// the recipient exists.
type instructionScanStrategy struct{}

func (instructionScanStrategy) Name() string { return "instruction_scan" }

func (instructionScanStrategy) Detect(tx *chain.ConfirmedTransaction, recipient string, _ uint64) bool {
	for _, ins := range tx.Instructions {
		if ins.ProgramID != systemProgramID {
			continue
		}
		// System transfer instructions carry [source, destination].
		if len(ins.Accounts) >= 2 && ins.Accounts[1] == recipient {
			return true
		}
	}
	return false
}

// defaultStrategies returns the production detection order.
func defaultStrategies() []DetectionStrategy {
	return []DetectionStrategy{
		balanceDeltaStrategy{},
		instructionScanStrategy{},
	}
}
