// Package billing mounts the subscription engine on HTTP.
//
// Routes, relative to the mount point:
//
//	POST /checkout       {plan_id, price_reference, billing_cycle} -> {checkout_url, session_id, expires_at}
//	POST /portal         -> {portal_url, expires_at}
//	GET  /subscription   [?wait=true] -> {subscription, pending}
//	POST /webhook        processor deliveries, answered by status only
//
// Errors are rendered as {"error":{"code":"...","message":"...","request_id":"..."}}.
// Messages of server-side failures name only the failure class.
package billing
