// Package inbox stores in-app messages per user and tracks read state.
//
// The IN_APP channel writes one Message per event using a deterministic ID,
// so redelivery of the same event never produces a second inbox entry:
//
//	box := inbox.New(inbox.NewMongoStorage(db))
//	created, err := box.Send(ctx, inbox.Message{
//		ID:     eventID + ":IN_APP",
//		UserID: userID,
//		Body:   "Notification for ORDER_PLACED: {...}",
//	})
//
// MemoryStorage backs tests and single-process development. MongoStorage and
// PostgresStorage are the durable backends. WithDeliverer adds realtime push;
// RedisPublisher publishes each new message on a per-user pub/sub channel.
package inbox
