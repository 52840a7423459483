// Package postgres owns the PostgreSQL connections and schema for onramp.
//
// ConnectionManager hands out the primary for writes and admission counts,
// and round-robins read replicas for lag-tolerant reads. Migrate applies the
// versioned SQL files embedded under migrations/.
package postgres
