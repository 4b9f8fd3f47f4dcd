// Package applications tracks a user's job applications and master profile.
//
// Applications move across a board of five statuses (todo, applied,
// interview, offer, rejected). Generated CVs and cover letters are attached
// to the application they were written for. Every read and write is scoped
// to the owning user, so another user's application id behaves as unknown.
//
//	svc := applications.NewService(store, logger)
//	app, err := svc.Create(ctx, userID, applications.Input{
//		CompanyName: "Acme",
//		JobTitle:    "Développeur Go",
//	})
//	app, err = svc.SetStatus(ctx, userID, app.ID, "interview")
//	stats, err := svc.Stats(ctx, userID)
package applications
