// Package pg opens PostgreSQL connection pools, applies goose migrations
// from an embedded filesystem, and classifies driver errors.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError maps SQLSTATE 23505 so stores can translate unique
// violations into their own sentinel errors.
package pg
