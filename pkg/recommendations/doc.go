// Package recommendations suggests job offers from Jooble and Adzuna, scored
// against the skills of the user's master profile.
//
//	svc := recommendations.NewService(apps, []recommendations.Source{
//		recommendations.NewJoobleClient(recommendations.JoobleConfig{APIKey: key}, logger),
//		recommendations.NewAdzunaClient(recommendations.AdzunaConfig{AppID: id, AppKey: appKey}, logger),
//	}, logger)
//	res, err := svc.Recommend(ctx, userID)
//
// Jooble serves a fixed sample listing when it has no API key or fails, so
// the page is never empty for a user with a profile.
package recommendations
