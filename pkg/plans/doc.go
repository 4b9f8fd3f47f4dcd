// Package plans holds the plan catalog: the read-only table of plan ids,
// prices, tiers and credit grants that checkout and reconciliation consult.
//
// The built-in table is returned by DefaultCatalog. Deployments that need to
// change prices without a rebuild can point the server at a YAML file loaded
// with LoadFile.
package plans
