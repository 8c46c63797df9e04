package models

// Permission constants
const (
	PermissionWalletRead  = "wallet:read"
	PermissionWalletWrite = "wallet:write"

	PermissionTransactionRead = "transaction:read"

	// Back-office permissions
	PermissionLedgerCredit       = "ledger:credit"
	PermissionWalletFreeze       = "wallet:freeze"
	PermissionWithdrawalApprove  = "withdrawal:approve"
	PermissionTransactionReverse = "transaction:reverse"
	PermissionTransactionAudit   = "transaction:audit"
)

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionTransactionRead,
			PermissionLedgerCredit,
			PermissionWalletFreeze,
			PermissionWithdrawalApprove,
			PermissionTransactionReverse,
			PermissionTransactionAudit,
		}
	case RoleApprover:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionTransactionRead,
			PermissionWithdrawalApprove,
			PermissionTransactionAudit,
		}
	case RoleCustomer:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionTransactionRead,
		}
	default:
		return []string{}
	}
}
