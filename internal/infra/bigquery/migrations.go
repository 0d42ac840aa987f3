package bigquery

import "embed"

// Migrations holds the audit dataset DDL applied by cmd/migrate. Files use
// {{PROJECT_ID}} and {{DATASET_ID}} placeholders.
//
//go:embed migrations/*.sql
var Migrations embed.FS
