// Package ledger keeps per-user credit balances for the three consumable
// pools (cv, letter, spontaneous) and the guard that gates paid actions on
// them.
//
// Balances change in exactly two ways:
//
//   - Grant, called by reconciliation inside the store transaction that marks a
//     payment completed. Counters are replaced by the plan grants and the tier is
//     raised, never lowered.
//   - Debit, called through Guard.Reserve. The check and the decrement happen
//     in one conditional store update so concurrent reservations can never
//     drive a counter negative. Ultra tier balances pass without being
//     decremented.
package ledger
