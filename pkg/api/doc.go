// Package api provides the HTTP REST API server for Joboost.
//
// # Overview
//
// The API is built on gorilla/mux and exposes entitlement management to the
// web client: the plan catalog, credit balances, payment checkout and both
// payment notification paths, the master profile and application board,
// document generation, job recommendations and spontaneous applications.
// Handlers only translate HTTP to service calls; credit checks and settlement
// live in pkg/ledger and pkg/billing.
//
// # Routes
//
//	GET  /api/plans                          plan catalog (auth optional)
//	POST /api/webhook/stripe                 push path, signature checked
//	POST /api/payments/checkout              {plan, origin_url} -> {url, session_id}
//	GET  /api/payments/status/{session_id}   pull path, rate limited per user
//	GET  /api/credits                        balance snapshot
//	GET  /api/profile                        master profile, null until saved
//	POST /api/profile                        create or replace the master profile
//	GET  /api/applications                   applications, newest first
//	POST /api/applications                   {company_name, job_title, ...}
//	GET  /api/applications/{application_id}
//	PUT  /api/applications/{application_id}  partial update
//	DELETE /api/applications/{application_id}
//	PATCH /api/applications/{application_id}/status?status=interview
//	GET  /api/stats                          counts per status
//	GET  /api/stats/timeline                 counts per creation day
//	POST /api/ai/generate                    {application_id, generation_type}
//	GET  /api/recommendations                offers scored against the profile skills
//	POST /api/spontaneous/search             {location, rome, radius}
//	POST /api/spontaneous/send               {company_ids}
//	GET  /api/spontaneous/history            past sends
//
// Every route except the catalog and the webhook requires a Bearer token. The
// first authenticated request of a user creates their free balance.
//
// # Errors
//
// Errors are JSON objects with an "error" message. Exhausted credit pools
// answer 403 with code "upgrade_required" and the pool, available and needed
// amounts in "details". Unknown applications answer 404, and generating
// before the master profile exists answers 400. Provider failures answer 502.
//
// # Usage
//
//	server := api.NewServer(api.Options{
//		Catalog:   catalog,
//		Checkouts: checkoutManager,
//		Payments:  reconciler,
//		Accounts:  ledger,
//		Verifier:  middleware.NewTokenVerifier(secret, issuer),
//	})
//	http.ListenAndServe(":8080", server)
package api
