package migrations

import (
	"github.com/GurakG/Enclave-PSSC/core/migrator"
)

// Migrations contains the list of database migrations to be applied.
// The name of a migration is recorded in the key-value store and sorted
// lexicographically, so prefix names with a YYYYMMDD-HHMMSS timestamp.
var Migrations = []migrator.Migration{
	{
		Name:     "20250815-101500-backfill-oracle-last-seen",
		Function: BackfillOracleLastSeen,
	},
}
