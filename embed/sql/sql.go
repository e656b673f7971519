package sql

import _ "embed"

// Schema creates the key/value slot table.
//
//go:embed schema.sql
var Schema string
