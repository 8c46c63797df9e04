/*
Package ledger is the wallet ledger engine. It is the only code that moves
money between balances.

Every mutation runs in one unit of work:

	lock rows (records first, then wallets in ascending id order)
	read under the lock
	validate
	write balance deltas and transaction rows
	commit

After the commit the engine records metrics, publishes one event per
written transaction and drops the cached history of every touched wallet.
None of these post-commit steps can fail the call.

Usage:

	engine := ledger.NewEngine(ledger.Deps{
	    Repo:    repo,
	    Fees:    fee.Default(),
	    Factory: transaction.NewFactory(approval.NewThresholdPolicy(threshold)),
	}, ledger.Config{BankName: "GAX Bank"})

	legs, err := engine.Transfer(ctx, principal, ledger.TransferRequest{
	    RecipientAccount: "2012345678",
	    Amount:           decimal.NewFromInt(2500),
	    Pin:              "1234",
	})

Balances:

Balance is spendable money and never drops below zero. LedgerBalance only
moves once a movement has posted. Withdrawals and external-settlement debits
lower Balance at request time and post to LedgerBalance on CompleteExternal.

Callers that must combine their own record locks with ledger writes (the
settlement reconciler) use WithinUnit and the Unit methods.
*/
package ledger
