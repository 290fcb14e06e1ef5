// Package db embeds the database schema so the binary can migrate itself.
package db

import _ "embed"

// Schema holds the DDL for products, promotions, customers, API keys,
// carts, and orders. Applied on startup; all statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
