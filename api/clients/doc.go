// Package clients provides the Go client for the custody admin API.
//
// AdminShareClient wraps every bootstrap endpoint. It signs requests with the
// administrator's key, unseals fetched shares and signs submitted ones:
//
//	client, err := clients.NewAdminShareClient("http://localhost:8080/admin", "alice", keyPEM)
//	...
//	share, err := client.GetShare(ctx)
//	...
//	resp, err := client.SubmitShare(ctx, share.SessionID, share.Encoded)
package clients
