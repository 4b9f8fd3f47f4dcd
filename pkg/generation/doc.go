// Package generation produces cover letters and CVs for an application.
//
// A cover letter is charged to the letter pool and a CV to the cv pool. The
// application and the user's master profile are loaded first, then the
// credit is reserved through the ledger guard, and the generated document is
// saved back on the application:
//
//	svc := generation.NewService(generation.NewChatGenerator(cfg), guard, apps, logger)
//	res, err := svc.Generate(ctx, generation.Request{
//		UserID:        userID,
//		ApplicationID: "app_123",
//		Kind:          generation.KindCoverLetter,
//	})
//
// ledger.ErrInsufficientCredit means the user must upgrade their plan.
// ErrProfileRequired means the master profile must be filled in first.
package generation
