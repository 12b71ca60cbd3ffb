// Package redis connects the billing service to Redis through go-redis/v9.
//
// Redis backs two concerns: the processed-event set used to deduplicate
// webhook deliveries, and the pub/sub channel that carries subscription
// transition notifications between replicas.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
