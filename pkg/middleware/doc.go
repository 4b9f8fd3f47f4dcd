// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Authentication
//
// AuthMiddleware verifies HS256 bearer tokens and stores the user_id claim in
// the request context. It only establishes identity; entitlements are read
// from the ledger by the handlers.
//
//	verifier := middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
//	router.Use(middleware.NewAuthMiddleware(verifier, false).Handler)
//	userID := middleware.UserID(r)
//
// # Rate Limiting
//
// RateLimitMiddleware works over any Limiter. RateLimiter keeps token buckets
// in memory; DistributedRateLimiter shares fixed windows through Redis:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient.GetClient(),
//		middleware.StatusPollRateLimitConfig(), "ratelimit")
//	poll := middleware.NewRateLimitMiddleware(limiter, "status", logger)
//	router.Handle("/api/payments/status/{session_id}", poll.Handler(statusHandler))
//
// Requests are keyed by user id when authenticated, by client IP otherwise.
// Limiter errors fail open unless SetFailOpen(false) is called.
package middleware
