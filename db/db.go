// Package db carries the embedded schema DDL.
package db

import _ "embed"

// Schema is the full DDL for the document store. Statements are idempotent so
// Migrate can run on every startup.
//
//go:embed schema.sql
var Schema string
