// Package client is a Go client for the billing API.
//
// The client never holds a token. A Session owns the signed-in Credential
// and its persistence; callers fetch it and pass it to each call:
//
//	sess, _ := client.NewSession(ctx, client.FileTokenStore{Path: tokenPath})
//	cred, err := sess.Credential()
//	if err != nil {
//		// sign in again
//	}
//	checkout, err := api.Checkout(ctx, cred, subscription.CheckoutInput{PlanID: "starter", Cycle: subscription.CycleMonthly})
//	// ... after the checkout redirect:
//	res, err := api.AwaitActive(ctx, cred)
//
// Answers with status 503 are retried with exponential backoff.
package client
