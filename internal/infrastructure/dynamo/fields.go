package dynamo

// DynamoDB attribute names used in key and condition expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldPK           = "pk"
	fieldOwner        = "owner"
	fieldClaimed      = "claimed"
	fieldSecurityCode = "security_code"
	fieldUpdatedAt    = "updated_at"

	fieldAccountID = "account_id"
	fieldCodeID    = "code_id"
	fieldPurgeAt   = "purge_at"
)
