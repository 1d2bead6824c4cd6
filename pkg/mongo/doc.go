// Package mongo connects to MongoDB with the official v2 driver, retrying
// until the deployment answers a ping.
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store := mongostore.New(db)
//
// Healthcheck plugs the client into the readiness endpoint.
package mongo
